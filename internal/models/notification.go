package models

import "time"

// Notification — сообщение для отправки через очередь уведомлений.
// UserID заполняется для пользовательских сообщений, чтобы транспорт
// мог доставить их в нужный чат; у операторских сообщений он пуст.
type Notification struct {
	UserID   string `json:"user_id,omitempty"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

// Order — заявка на покупку, сформированная после отправки скриншота оплаты.
// GrantCommand — готовая команда для оператора, выдающая доступ вручную.
type Order struct {
	OrderID      string    `json:"order_id"`
	UserID       string    `json:"user_id"`
	Days         int       `json:"days"`
	Price        int       `json:"price"`
	PhotoRef     string    `json:"photo_ref"`
	GrantCommand string    `json:"grant_command"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
