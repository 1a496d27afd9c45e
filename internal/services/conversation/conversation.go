// Package services реализует диалог покупки: конечный автомат на каждого
// пользователя, ведущий от выбора тарифа через подтверждение оплаты и
// скриншот к заявке для оператора. Состояние диалога хранится в Redis
// и переживает рестарт процесса.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/credential-broker/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credential-broker/internal/lib/sl"
	"github.com/magabrotheeeer/credential-broker/internal/models"
	poolservice "github.com/magabrotheeeer/credential-broker/internal/services/pool"
)

// Состояния диалога покупки.
const (
	// StateChoosingPlan — начальное и возвратное состояние: пользователь
	// выбирает тариф из витрины.
	StateChoosingPlan = "choosing_plan"
	// StateAwaitingPaymentConfirm — тариф выбран, ожидается нажатие
	// «я оплатил» либо отмена.
	StateAwaitingPaymentConfirm = "awaiting_payment_confirm"
	// StateAwaitingScreenshot — оплата подтверждена, ожидается скриншот.
	StateAwaitingScreenshot = "awaiting_screenshot"
)

// ErrWrongState возвращается, когда операция не соответствует текущему
// состоянию диалога пользователя.
var ErrWrongState = errors.New("unexpected conversation state")

// Session — состояние диалога одного пользователя. Выбор тарифа живёт
// только внутри сессии и очищается при отмене, отправке заявки и каждом
// возврате в выбор тарифа.
type Session struct {
	State         string    `json:"state"`
	SelectedDays  int       `json:"selected_days,omitempty"`
	SelectedPrice int       `json:"selected_price,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserRepository определяет методы хранилища пользователей для диалога.
type UserRepository interface {
	UpsertUser(ctx context.Context, userID string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetCredential(ctx context.Context, username string) (*models.Credential, error)
}

// CredentialPool описывает операции пула, на которые опирается диалог.
type CredentialPool interface {
	FindBestFit(ctx context.Context, requiredDays int) (*models.Credential, error)
	Offers(ctx context.Context, pricePerDay int) ([]models.PlanOffer, error)
}

// SessionStore описывает хранилище состояний диалогов.
type SessionStore interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Publisher описывает публикацию заявок в очередь оператора.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// PaymentInstructions — реквизиты, которые показываются пользователю
// после выбора тарифа.
type PaymentInstructions struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Amount  int    `json:"amount"`
	Days    int    `json:"days"`
}

// UserDetails — данные пользователя для экрана «мои данные».
type UserDetails struct {
	IsActive   bool       `json:"is_active"`
	Username   string     `json:"username,omitempty"`
	Secret     string     `json:"secret,omitempty"`
	PlanExpiry *time.Time `json:"plan_expiry,omitempty"`
}

// Service реализует конечный автомат диалога покупки.
type Service struct {
	users       UserRepository
	pool        CredentialPool
	sessions    SessionStore
	pub         Publisher
	log         *slog.Logger
	pricePerDay int
	account     string
	accountName string
	sessionTTL  time.Duration
}

// New создает новый экземпляр Service.
func New(users UserRepository, pool CredentialPool, sessions SessionStore, pub Publisher,
	log *slog.Logger, pricePerDay int, account, accountName string, sessionTTL time.Duration) *Service {
	return &Service{
		users:       users,
		pool:        pool,
		sessions:    sessions,
		pub:         pub,
		log:         log,
		pricePerDay: pricePerDay,
		account:     account,
		accountName: accountName,
		sessionTTL:  sessionTTL,
	}
}

func sessionKey(userID string) string {
	return fmt.Sprintf("conversation:%s", userID)
}

func (s *Service) loadSession(userID string) (*Session, error) {
	var sess Session
	found, err := s.sessions.Get(sessionKey(userID), &sess)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &sess, nil
}

func (s *Service) saveSession(userID string, sess Session) error {
	sess.UpdatedAt = time.Now().UTC()
	return s.sessions.Set(sessionKey(userID), sess, s.sessionTTL)
}

// Start лениво создаёт пользователя, сбрасывает его диалог в выбор тарифа
// и возвращает витрину доступных длительностей. Тарифы без свободной
// учётной записи в витрину не попадают.
func (s *Service) Start(ctx context.Context, userID string) ([]models.PlanOffer, error) {
	if _, err := s.users.UpsertUser(ctx, userID); err != nil {
		return nil, err
	}

	offers, err := s.pool.Offers(ctx, s.pricePerDay)
	if err != nil {
		return nil, err
	}

	if err := s.saveSession(userID, Session{State: StateChoosingPlan}); err != nil {
		s.log.Warn("failed to persist conversation state", sl.Err(err),
			slog.String("user_id", userID))
	}

	s.log.Info("conversation started",
		slog.String("user_id", userID), slog.Int("offers", len(offers)))
	return offers, nil
}

// ChoosePlan проверяет, что выбранная длительность покрывается хотя бы
// одной свободной учётной записью, и переводит диалог в ожидание оплаты.
// При отсутствии подходящей записи диалог остаётся в выборе тарифа,
// а вызывающему уходит ErrOutOfStock.
func (s *Service) ChoosePlan(ctx context.Context, userID string, days int) (*PaymentInstructions, error) {
	sess, err := s.loadSession(userID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.State != StateChoosingPlan {
		return nil, ErrWrongState
	}

	if _, err := s.pool.FindBestFit(ctx, days); err != nil {
		if errors.Is(err, poolservice.ErrOutOfStock) {
			s.log.Info("plan out of stock",
				slog.String("user_id", userID), slog.Int("days", days))
		}
		return nil, err
	}

	price := days * s.pricePerDay
	if err := s.saveSession(userID, Session{
		State:         StateAwaitingPaymentConfirm,
		SelectedDays:  days,
		SelectedPrice: price,
	}); err != nil {
		return nil, err
	}

	s.log.Info("plan selected",
		slog.String("user_id", userID), slog.Int("days", days), slog.Int("price", price))
	return &PaymentInstructions{
		Account: s.account,
		Name:    s.accountName,
		Amount:  price,
		Days:    days,
	}, nil
}

// ConfirmPayment переводит диалог из ожидания оплаты в ожидание скриншота.
func (s *Service) ConfirmPayment(ctx context.Context, userID string) error {
	sess, err := s.loadSession(userID)
	if err != nil {
		return err
	}
	if sess == nil || sess.State != StateAwaitingPaymentConfirm {
		return ErrWrongState
	}

	sess.State = StateAwaitingScreenshot
	if err := s.saveSession(userID, *sess); err != nil {
		return err
	}
	s.log.Info("payment confirmed by user", slog.String("user_id", userID))
	return nil
}

// Cancel сбрасывает диалог в выбор тарифа и очищает выбранный план.
func (s *Service) Cancel(ctx context.Context, userID string) error {
	if err := s.saveSession(userID, Session{State: StateChoosingPlan}); err != nil {
		return err
	}
	s.log.Info("order cancelled", slog.String("user_id", userID))
	return nil
}

// SubmitScreenshot принимает ссылку на скриншот оплаты, формирует заявку
// с готовой командой выдачи и публикует её оператору. Сама выдача доступа
// остаётся ручным действием оператора. Диалог завершается, состояние
// очищается.
func (s *Service) SubmitScreenshot(ctx context.Context, userID, photoRef string) (*models.Order, error) {
	sess, err := s.loadSession(userID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.State != StateAwaitingScreenshot || sess.SelectedDays == 0 {
		return nil, ErrWrongState
	}

	order := &models.Order{
		OrderID:      uuid.New().String(),
		UserID:       userID,
		Days:         sess.SelectedDays,
		Price:        sess.SelectedPrice,
		PhotoRef:     photoRef,
		GrantCommand: fmt.Sprintf("/grant %s %d", userID, sess.SelectedDays),
		SubmittedAt:  time.Now().UTC(),
	}

	err = s.pub.Publish(rabbitmq.RoutingKeyOperator, models.Notification{
		Subject: "New order confirmation",
		Body: fmt.Sprintf("Order %s: user %s, plan %d days, price %d. Grant with: %s",
			order.OrderID, order.UserID, order.Days, order.Price, order.GrantCommand),
		PhotoRef: photoRef,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Invalidate(sessionKey(userID)); err != nil {
		s.log.Warn("failed to clear conversation state", sl.Err(err),
			slog.String("user_id", userID))
	}

	s.log.Info("order submitted",
		slog.String("user_id", userID), slog.String("order_id", order.OrderID))
	return order, nil
}

// Details возвращает пользователю его закреплённую учётную запись и срок
// плана. Просмотр возвращает диалог в выбор тарифа.
func (s *Service) Details(ctx context.Context, userID string) (*UserDetails, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	details := &UserDetails{
		IsActive:   user.IsActive,
		PlanExpiry: user.PlanExpiry,
	}
	if user.AssignedCredential != nil {
		cred, err := s.users.GetCredential(ctx, *user.AssignedCredential)
		if err == nil {
			details.Username = cred.Username
			details.Secret = cred.Secret
		} else {
			// Потерянная учётная запись не должна ломать просмотр.
			s.log.Warn("assigned credential missing", sl.Err(err),
				slog.String("user_id", userID))
			details.Username = *user.AssignedCredential
		}
	}

	if err := s.saveSession(userID, Session{State: StateChoosingPlan}); err != nil {
		s.log.Warn("failed to persist conversation state", sl.Err(err),
			slog.String("user_id", userID))
	}
	return details, nil
}
