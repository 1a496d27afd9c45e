// Package services содержит административные операции оператора:
// выдача и отзыв доступа, освобождение учётных записей, ведение пула
// и просмотр данных пользователя. Операции вызываются напрямую, минуя
// диалог покупки.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/credential-broker/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credential-broker/internal/lib/sl"
	"github.com/magabrotheeeer/credential-broker/internal/models"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// UserRepository определяет методы хранилища пользователей для админки.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SetAccess(ctx context.Context, userID string, active bool, expiry *time.Time) error
	GetCredential(ctx context.Context, username string) (*models.Credential, error)
}

// CredentialPool описывает операции пула, которые дергает админка.
type CredentialPool interface {
	AcquireBestFit(ctx context.Context, userID string, requiredDays int) (*models.Credential, error)
	Free(ctx context.Context, userID string) (string, error)
	Add(ctx context.Context, username, secret string, days int) (*models.Credential, error)
	Edit(ctx context.Context, username, newSecret string, newDays int) error
	ListAvailable(ctx context.Context) ([]*models.Credential, error)
	ListInUse(ctx context.Context) ([]*models.CredentialInUse, error)
}

// LeaseScheduler взводит таймер возврата для каждой выдачи.
type LeaseScheduler interface {
	ScheduleReclaim(ctx context.Context, userID string, delay time.Duration)
}

// Publisher описывает публикацию уведомлений в очередь.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Service реализует административные операции.
type Service struct {
	users     UserRepository
	pool      CredentialPool
	scheduler LeaseScheduler
	pub       Publisher
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(users UserRepository, pool CredentialPool, scheduler LeaseScheduler, pub Publisher, log *slog.Logger) *Service {
	return &Service{
		users:     users,
		pool:      pool,
		scheduler: scheduler,
		pub:       pub,
		log:       log,
	}
}

// GrantAccess выдаёт пользователю доступ на days дней: подбирает и
// закрепляет учётную запись, выставляет флаг и срок плана и взводит
// таймер возврата. Пользователь обязан существовать; отсутствие
// подходящей записи отдаётся как pool.ErrOutOfStock.
func (s *Service) GrantAccess(ctx context.Context, userID string, days int) (*models.Credential, error) {
	const op = "admin.GrantAccess"
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	cred, err := s.pool.AcquireBestFit(ctx, userID, days)
	if err != nil {
		return nil, err
	}

	expiry := time.Now().UTC().AddDate(0, 0, days)
	if err := s.users.SetAccess(ctx, userID, true, &expiry); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.scheduler.ScheduleReclaim(ctx, userID, time.Duration(days)*24*time.Hour)

	s.notify(rabbitmq.RoutingKeyUser, models.Notification{
		UserID:  userID,
		Subject: "Access granted",
		Body: fmt.Sprintf("Your access has been granted for %d days. Check your details to see the assigned login.",
			days),
	})

	s.log.Info("access granted", slog.String("user_id", userID),
		slog.Int("days", days), slog.String("credential", cred.Username))
	return cred, nil
}

// RevokeAccess снимает флаг доступа и срок плана, не освобождая учётную
// запись: оператор возвращает её в пул отдельным вызовом FreeCredential.
func (s *Service) RevokeAccess(ctx context.Context, userID string) error {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.SetAccess(ctx, userID, false, nil); err != nil {
		return err
	}

	s.notify(rabbitmq.RoutingKeyUser, models.Notification{
		UserID:  userID,
		Subject: "Access revoked",
		Body:    "Your access has been revoked by the operator.",
	})

	s.log.Info("access revoked", slog.String("user_id", userID))
	return nil
}

// FreeCredential освобождает учётную запись пользователя и отзывает его
// доступ: освобождённая запись не должна оставаться закреплённой за
// пользователем с действующим флагом. Для пользователя без закрепления
// возвращает repository.ErrNoCredentialAssigned.
func (s *Service) FreeCredential(ctx context.Context, userID string) (string, error) {
	freed, err := s.pool.Free(ctx, userID)
	if err != nil {
		return "", err
	}
	if freed == "" {
		return "", repository.ErrNoCredentialAssigned
	}

	if err := s.users.SetAccess(ctx, userID, false, nil); err != nil &&
		!errors.Is(err, repository.ErrUserNotFound) {
		return "", err
	}

	s.notify(rabbitmq.RoutingKeyUser, models.Notification{
		UserID:  userID,
		Subject: "Plan ended",
		Body:    "Your plan has been ended by the operator.",
	})

	s.log.Info("credential freed by operator",
		slog.String("user_id", userID), slog.String("credential", freed))
	return freed, nil
}

// AddCredential добавляет новую учётную запись в пул.
func (s *Service) AddCredential(ctx context.Context, username, secret string, days int) (*models.Credential, error) {
	return s.pool.Add(ctx, username, secret, days)
}

// EditCredential обновляет пароль и срок жизни существующей записи.
func (s *Service) EditCredential(ctx context.Context, username, newSecret string, newDays int) error {
	return s.pool.Edit(ctx, username, newSecret, newDays)
}

// ListAvailable возвращает свободные учётные записи пула.
func (s *Service) ListAvailable(ctx context.Context) ([]*models.Credential, error) {
	return s.pool.ListAvailable(ctx)
}

// ListInUse возвращает занятые учётные записи вместе с владельцами.
func (s *Service) ListInUse(ctx context.Context) ([]*models.CredentialInUse, error) {
	return s.pool.ListInUse(ctx)
}

// InspectUser возвращает полные данные пользователя вместе с закреплённой
// учётной записью. Потерянная запись (закрепление есть, а записи нет)
// отображается без данных учётки, просмотр при этом не падает.
func (s *Service) InspectUser(ctx context.Context, userID string) (*models.UserInspection, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	inspection := &models.UserInspection{User: *user}
	if user.AssignedCredential != nil {
		cred, err := s.users.GetCredential(ctx, *user.AssignedCredential)
		if err != nil {
			s.log.Warn("assigned credential missing", sl.Err(err),
				slog.String("user_id", userID))
		} else {
			inspection.Credential = cred
		}
	}
	return inspection, nil
}

func (s *Service) notify(routingKey string, msg models.Notification) {
	if err := s.pub.Publish(routingKey, msg); err != nil {
		s.log.Error("failed to publish notification", sl.Err(err),
			slog.String("routing_key", routingKey))
	}
}
