package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/credential-broker/internal/lib/sl"
	"github.com/magabrotheeeer/credential-broker/internal/lib/smtp"
	"github.com/magabrotheeeer/credential-broker/internal/models"
)

// SenderService доставляет уведомления из очередей по SMTP.
// Операторские сообщения уходят в ящик оператора; пользовательские —
// на адрес-ретранслятор чат-транспорта с идентификатором чата в теме.
type SenderService struct {
	transport     smtp.TransportInterface
	operatorEmail string
	relayEmail    string
	log           *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, operatorEmail, relayEmail string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:     transport,
		operatorEmail: operatorEmail,
		relayEmail:    relayEmail,
		log:           log,
	}
}

// SendOperatorNotification доставляет сообщение из операторской очереди.
func (s *SenderService) SendOperatorNotification(body []byte) error {
	var message models.Notification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	bodyText := message.Body
	if message.PhotoRef != "" {
		bodyText += "\n\nPayment screenshot: " + message.PhotoRef
	}
	return s.sendEmail([]string{s.operatorEmail}, message.Subject, bodyText)
}

// SendUserNotification доставляет сообщение из пользовательской очереди
// на адрес-ретранслятор. Идентификатор чата кладётся в тему, чтобы
// транспорт переслал текст нужному пользователю.
func (s *SenderService) SendUserNotification(body []byte) error {
	var message models.Notification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := fmt.Sprintf("[user:%s] %s", message.UserID, message.Subject)
	return s.sendEmail([]string{s.relayEmail}, subject, message.Body)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", s.transport.GetSMTPUser()), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	_, err = wc.Write([]byte(msg))
	if err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
