package rabbitmq

// NotificationsExchange — exchange, через который проходят все уведомления
// брокера: операторские и пользовательские.
const NotificationsExchange = "notifications"

// Маршрутные ключи уведомлений.
const (
	// RoutingKeyOperator — сообщения оператору: новые заявки, итоги
	// автоматической уборки, пропуски уборки.
	RoutingKeyOperator = "operator"
	// RoutingKeyUser — сообщения пользователям: выдача доступа,
	// истечение плана, отзыв.
	RoutingKeyUser = "user"
)

// Имена очередей уведомлений.
const (
	OperatorQueue = "notification.operator"
	UserQueue     = "notification.user"
)

// QueueConfig описывает очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает набор очередей воркера уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: OperatorQueue, RoutingKey: RoutingKeyOperator},
		{QueueName: UserQueue, RoutingKey: RoutingKeyUser},
	}
}
