// Package services реализует планировщик аренды: каждый выданный доступ
// получает одноразовый таймер возврата, при рестарте процесса таймеры
// восстанавливаются из plan_expiry активных пользователей, а фоновый
// проход добирает всё, что таймеры пропустили.
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

// UserRepository определяет методы хранилища, нужные планировщику.
type UserRepository interface {
	SetAccess(ctx context.Context, userID string, active bool, expiry *time.Time) error
	ListActiveUsers(ctx context.Context) ([]*models.User, error)
	ListExpiredActiveUsers(ctx context.Context) ([]*models.User, error)
}

// CredentialPool описывает освобождение учётной записи пользователя.
type CredentialPool interface {
	Free(ctx context.Context, userID string) (string, error)
}

// Publisher описывает публикацию уведомлений в очередь.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Scheduler следит за сроками аренды. Таймеры живут в памяти процесса и
// не отменяются: корректность при ручном вмешательстве обеспечивается
// идемпотентностью возврата, а не отменой.
type Scheduler struct {
	repo       UserRepository
	pool       CredentialPool
	pub        Publisher
	log        *slog.Logger
	sweepEvery time.Duration
}

// New создает новый экземпляр Scheduler.
func New(repo UserRepository, pool CredentialPool, pub Publisher, log *slog.Logger, sweepEvery time.Duration) *Scheduler {
	return &Scheduler{
		repo:       repo,
		pool:       pool,
		pub:        pub,
		log:        log,
		sweepEvery: sweepEvery,
	}
}

// ScheduleReclaim взводит одноразовый таймер возврата учётной записи
// пользователя через delay. Таймер не отменяется извне; сработав после
// ручного освобождения, он выполнит только страховочный отзыв доступа.
// Контекст вызывающего отвязывается: выдача приходит из HTTP-обработчика,
// чей контекст гаснет вместе с ответом, а таймер должен пережить запрос.
func (s *Scheduler) ScheduleReclaim(ctx context.Context, userID string, delay time.Duration) {
	s.log.Info("reclaim scheduled",
		slog.String("user_id", userID), slog.Duration("delay", delay))

	reclaimCtx := context.WithoutCancel(ctx)
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		<-timer.C
		if err := s.Reclaim(reclaimCtx, userID); err != nil {
			s.log.Error("scheduled reclaim failed, sweep will retry", sl.Err(err),
				slog.String("user_id", userID))
		}
	}()
}

// Reclaim возвращает учётную запись пользователя в пул и отзывает доступ.
// Если запись уже освобождена вручную, доступ всё равно снимается, а
// оператору уходит уведомление о пропуске уборки: ручное освобождение
// без парного отзыва не должно оставлять is_active навсегда.
func (s *Scheduler) Reclaim(ctx context.Context, userID string) error {
	const op = "lease.Reclaim"
	s.log.Info("executing reclaim", slog.String("user_id", userID))

	freed, err := s.pool.Free(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.SetAccess(ctx, userID, false, nil); err != nil &&
		!errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if freed != "" {
		s.notify(rabbitmq.RoutingKeyOperator, models.Notification{
			Subject: "Automated cleanup complete",
			Body: fmt.Sprintf("Plan for user %s has expired. Credential %s has been freed and is available in the pool.",
				userID, freed),
		})
		s.notify(rabbitmq.RoutingKeyUser, models.Notification{
			UserID:  userID,
			Subject: "Plan expired",
			Body:    "Your plan has expired. Please purchase a new one to continue.",
		})
	} else {
		s.notify(rabbitmq.RoutingKeyOperator, models.Notification{
			Subject: "Plan expired, cleanup skipped",
			Body: fmt.Sprintf("The plan for user %s has ended. No credential was assigned, so automatic cleanup was skipped. Access has been revoked.",
				userID),
		})
	}

	s.log.Info("reclaim complete",
		slog.String("user_id", userID), slog.String("freed", freed))
	return nil
}

// RecoverPending восстанавливает таймеры после рестарта процесса:
// для каждого активного пользователя взводится таймер на остаток срока,
// отрицательный остаток обрезается до нуля и срабатывает сразу.
func (s *Scheduler) RecoverPending(ctx context.Context) error {
	const op = "lease.RecoverPending"
	users, err := s.repo.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	for _, u := range users {
		if u.PlanExpiry == nil {
			// Активный пользователь без срока — расхождение данных,
			// возвращаем немедленно.
			s.log.Warn("active user without plan expiry", slog.String("user_id", u.UserID))
			s.ScheduleReclaim(ctx, u.UserID, 0)
			continue
		}
		remaining := u.PlanExpiry.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		s.ScheduleReclaim(ctx, u.UserID, remaining)
	}

	s.log.Info("pending reclaims recovered", slog.Int("count", len(users)))
	return nil
}

// RunSweep запускает фоновый проход: с заданным интервалом возвращаются
// все просроченные активные аренды, которые таймеры пропустили из-за
// ошибок хранилища или рестартов.
func (s *Scheduler) RunSweep(ctx context.Context) {
	s.runSweepOnce(ctx)

	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runSweepOnce(ctx context.Context) {
	users, err := s.repo.ListExpiredActiveUsers(ctx)
	if err != nil {
		s.log.Error("failed to list expired leases", sl.Err(err))
		return
	}
	if len(users) == 0 {
		return
	}
	s.log.Info("sweep found expired leases", slog.Int("count", len(users)))
	for _, u := range users {
		if err := s.Reclaim(ctx, u.UserID); err != nil {
			s.log.Error("sweep reclaim failed", sl.Err(err),
				slog.String("user_id", u.UserID))
		}
	}
}

func (s *Scheduler) notify(routingKey string, msg models.Notification) {
	if err := s.pub.Publish(routingKey, msg); err != nil {
		s.log.Error("failed to publish notification", sl.Err(err),
			slog.String("routing_key", routingKey))
	}
}
