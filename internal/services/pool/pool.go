// Package services содержит бизнес-логику пула учётных записей:
// подбор по сроку, закрепление, освобождение и ведение витрины.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/credential-broker/internal/models"
	"github.com/magabrotheeeer/credential-broker/internal/storage/repository"
)

// ErrOutOfStock возвращается, когда ни одна свободная учётная запись
// не доживает до конца запрошенного срока аренды.
var ErrOutOfStock = errors.New("no credential satisfies the requested duration")

// CredentialRepository определяет методы хранилища, нужные пулу.
type CredentialRepository interface {
	// FindBestFitCredential возвращает свободную запись с наименьшим сроком,
	// доживающую до minExpiry.
	FindBestFitCredential(ctx context.Context, minExpiry time.Time) (*models.Credential, error)
	// QueryAvailableCredentials возвращает свободные записи, живущие дольше minExpiry.
	QueryAvailableCredentials(ctx context.Context, minExpiry time.Time) ([]*models.Credential, error)
	// QueryInUseCredentials возвращает занятые записи вместе с владельцами.
	QueryInUseCredentials(ctx context.Context) ([]*models.CredentialInUse, error)
	// GetCredential возвращает запись по username.
	GetCredential(ctx context.Context, username string) (*models.Credential, error)
	// InsertCredential добавляет новую запись.
	InsertCredential(ctx context.Context, cred models.Credential) error
	// UpdateCredential обновляет пароль и срок записи.
	UpdateCredential(ctx context.Context, username, newSecret string, newExpiry time.Time) error
	// AssignCredential атомарно закрепляет запись за пользователем.
	AssignCredential(ctx context.Context, userID, username string) error
	// ReleaseCredential снимает закрепление и возвращает запись в пул.
	ReleaseCredential(ctx context.Context, userID string) (string, error)
}

// Pool реализует операции над пулом учётных записей. Дисциплина
// конкуренции — оптимистичная: кандидат выбирается без блокировки,
// закрепление перепроверяется атомарным условным обновлением статуса.
type Pool struct {
	repo CredentialRepository
	log  *slog.Logger
}

// New создает новый экземпляр Pool.
func New(repo CredentialRepository, log *slog.Logger) *Pool {
	return &Pool{
		repo: repo,
		log:  log,
	}
}

// FindBestFit возвращает свободную учётную запись с самым ранним сроком
// жизни среди тех, что покрывают requiredDays от текущего момента.
// Отсутствие кандидата транслируется в ErrOutOfStock.
func (p *Pool) FindBestFit(ctx context.Context, requiredDays int) (*models.Credential, error) {
	minExpiry := time.Now().UTC().AddDate(0, 0, requiredDays)
	cred, err := p.repo.FindBestFitCredential(ctx, minExpiry)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrOutOfStock
		}
		return nil, err
	}
	return cred, nil
}

// ListAvailable возвращает все свободные и не истёкшие учётные записи
// в порядке возрастания срока жизни.
func (p *Pool) ListAvailable(ctx context.Context) ([]*models.Credential, error) {
	return p.repo.QueryAvailableCredentials(ctx, time.Now().UTC())
}

// ListInUse возвращает занятые учётные записи вместе с владельцами.
func (p *Pool) ListInUse(ctx context.Context) ([]*models.CredentialInUse, error) {
	return p.repo.QueryInUseCredentials(ctx)
}

// Add добавляет новую учётную запись со сроком жизни days от текущего
// момента и статусом available.
func (p *Pool) Add(ctx context.Context, username, secret string, days int) (*models.Credential, error) {
	cred := models.Credential{
		Username:         username,
		Secret:           secret,
		Status:           models.StatusAvailable,
		CredentialExpiry: time.Now().UTC().AddDate(0, 0, days),
	}
	if err := p.repo.InsertCredential(ctx, cred); err != nil {
		return nil, err
	}
	p.log.Info("credential added to pool",
		slog.String("username", username), slog.Int("days", days))
	return &cred, nil
}

// Edit обновляет пароль учётной записи и пересчитывает срок её жизни
// как now + newDays. Статус не меняется.
func (p *Pool) Edit(ctx context.Context, username, newSecret string, newDays int) error {
	newExpiry := time.Now().UTC().AddDate(0, 0, newDays)
	if err := p.repo.UpdateCredential(ctx, username, newSecret, newExpiry); err != nil {
		return err
	}
	p.log.Info("credential updated",
		slog.String("username", username), slog.Int("days", newDays))
	return nil
}

// Assign закрепляет конкретную учётную запись за пользователем.
// Проигрыш гонки за запись отдаётся как ErrCredentialUnavailable.
func (p *Pool) Assign(ctx context.Context, userID string, cred *models.Credential) error {
	if err := p.repo.AssignCredential(ctx, userID, cred.Username); err != nil {
		return err
	}
	p.log.Info("credential assigned",
		slog.String("username", cred.Username), slog.String("user_id", userID))
	return nil
}

// AcquireBestFit подбирает и закрепляет учётную запись за пользователем,
// повторяя подбор при проигрыше гонки за кандидата. Когда кандидатов
// не осталось, возвращает ErrOutOfStock: из двух одновременных выдач
// на последнюю подходящую запись успешной будет ровно одна.
func (p *Pool) AcquireBestFit(ctx context.Context, userID string, requiredDays int) (*models.Credential, error) {
	const op = "pool.AcquireBestFit"
	for {
		cred, err := p.FindBestFit(ctx, requiredDays)
		if err != nil {
			return nil, err
		}
		err = p.Assign(ctx, userID, cred)
		if err == nil {
			return cred, nil
		}
		if errors.Is(err, repository.ErrCredentialUnavailable) {
			p.log.Warn("lost race for credential, retrying",
				slog.String("username", cred.Username), slog.String("user_id", userID))
			continue
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
}

// Free освобождает учётную запись пользователя и возвращает её username.
// Для пользователя без закрепления возвращает пустую строку без ошибки:
// освобождение идемпотентно.
func (p *Pool) Free(ctx context.Context, userID string) (string, error) {
	freed, err := p.repo.ReleaseCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNoCredentialAssigned) {
			return "", nil
		}
		return "", err
	}
	p.log.Info("credential freed",
		slog.String("username", freed), slog.String("user_id", userID))
	return freed, nil
}

// Offers строит витрину тарифов по свободным учётным записям: по одному
// предложению на каждое различное число оставшихся полных дней (не менее
// суток), цена — дни на цену дня. Список отсортирован по возрастанию,
// так как записи приходят упорядоченными по сроку жизни.
func (p *Pool) Offers(ctx context.Context, pricePerDay int) ([]models.PlanOffer, error) {
	creds, err := p.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[int]bool)
	var offers []models.PlanOffer
	for _, cred := range creds {
		days := cred.RemainingDays(now)
		if days < 1 || seen[days] {
			continue
		}
		seen[days] = true
		offers = append(offers, models.PlanOffer{
			Days:  days,
			Price: days * pricePerDay,
		})
	}
	if len(offers) == 0 {
		p.log.Info("no purchasable durations available")
	}
	return offers, nil
}
