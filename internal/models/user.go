// Package models содержит доменные структуры брокера учётных данных:
// пользователей, учётные записи из пула и уведомления.
// Все даты хранятся как time.Time в UTC; преобразование NULL-значений
// из базы выполняется на границе слоя хранилища.
package models

import "time"

// User представляет пользователя бота. Запись создаётся лениво при первом
// контакте и никогда не удаляется.
//
// Инвариант: AssignedCredential задан тогда и только тогда, когда IsActive
// равен true. Система допускает кратковременное нарушение во время
// многошаговых обновлений, но каждая административная или плановая операция
// обязана сходиться к этому состоянию.
type User struct {
	UserID             string     `json:"user_id"`                       // Внешний непрозрачный идентификатор (chat id транспорта)
	IsActive           bool       `json:"is_active"`                     // Действует ли сейчас аренда
	PlanExpiry         *time.Time `json:"plan_expiry,omitempty"`         // Когда заканчивается текущая аренда, nil — аренды нет
	AssignedCredential *string    `json:"assigned_credential,omitempty"` // Username закреплённой учётной записи, nil — не закреплена
}

// UserInspection агрегирует данные пользователя с закреплённой учётной
// записью для административного просмотра.
type UserInspection struct {
	User       User        `json:"user"`
	Credential *Credential `json:"credential,omitempty"` // nil, если учётная запись не закреплена или потеряна
}
