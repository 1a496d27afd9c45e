package models

import "time"

// Статусы учётной записи в пуле.
const (
	// StatusAvailable — учётная запись свободна и может быть выдана.
	StatusAvailable = "available"
	// StatusInUse — учётная запись закреплена за пользователем.
	StatusInUse = "in_use"
)

// Credential представляет одну общую учётную запись из пула.
// CredentialExpiry — жёсткий потолок: аренда никогда не должна покрывать
// период после этой даты.
type Credential struct {
	Username         string    `json:"username"`          // Уникальный логин учётной записи
	Secret           string    `json:"secret"`            // Пароль учётной записи
	Status           string    `json:"status"`            // available или in_use
	CredentialExpiry time.Time `json:"credential_expiry"` // Собственный срок жизни учётной записи
}

// RemainingDays возвращает число полных дней до истечения учётной записи
// относительно переданного момента времени. Отрицательные значения
// обрезаются до нуля.
func (c Credential) RemainingDays(now time.Time) int {
	remaining := c.CredentialExpiry.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}

// CredentialInUse — занятая учётная запись вместе с идентификатором
// пользователя, за которым она закреплена. HolderID пуст, если владелец
// не найден (нарушение целостности данных, которое слой выше обязан
// переживать без падения).
type CredentialInUse struct {
	Credential
	HolderID string `json:"holder_id"`
}

// PlanOffer — один пункт витрины тарифов: длительность в днях и цена.
type PlanOffer struct {
	Days  int `json:"days"`
	Price int `json:"price"`
}
