package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/credential-broker/internal/models"
)

// GetUser возвращает пользователя по его идентификатору.
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, is_active, plan_expiry, assigned_credential
			  FROM users
			  WHERE user_id = $1`
	row := s.DB.QueryRowContext(ctx, query, userID)

	u := &models.User{}
	var planExpiry sql.NullTime
	var assigned sql.NullString
	if err := row.Scan(&u.UserID, &u.IsActive, &planExpiry, &assigned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if planExpiry.Valid {
		u.PlanExpiry = &planExpiry.Time
	}
	if assigned.Valid {
		u.AssignedCredential = &assigned.String
	}
	return u, nil
}

// UpsertUser лениво создаёт пользователя при первом контакте и возвращает
// его актуальную запись. Повторный вызов для существующего пользователя
// ничего не изменяет.
func (s *Storage) UpsertUser(ctx context.Context, userID string) (*models.User, error) {
	const op = "storage.UpsertUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (user_id, is_active)
			  VALUES ($1, false)
			  ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetUser(ctx, userID)
}

// SetAccess выставляет флаг доступа и срок действия плана пользователя.
// Для выдачи доступа expiry обязателен, для отзыва передаётся nil.
func (s *Storage) SetAccess(ctx context.Context, userID string, active bool, expiry *time.Time) error {
	const op = "storage.SetAccess"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET is_active = $2, plan_expiry = $3
			  WHERE user_id = $1`
	result, err := s.DB.ExecContext(ctx, query, userID, active, expiry)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// ListActiveUsers возвращает всех пользователей с действующей арендой.
// Используется планировщиком при восстановлении таймеров после рестарта.
func (s *Storage) ListActiveUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListActiveUsers"
	return s.listUsers(ctx, op, `SELECT user_id, is_active, plan_expiry, assigned_credential
			  FROM users
			  WHERE is_active = true`)
}

// ListExpiredActiveUsers возвращает пользователей, чья аренда уже истекла,
// но флаг доступа ещё не снят. Выборка для фонового прохода планировщика.
func (s *Storage) ListExpiredActiveUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListExpiredActiveUsers"
	return s.listUsers(ctx, op, `SELECT user_id, is_active, plan_expiry, assigned_credential
			  FROM users
			  WHERE is_active = true AND plan_expiry IS NOT NULL AND plan_expiry <= now()`)
}

func (s *Storage) listUsers(ctx context.Context, op, query string) ([]*models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		var u models.User
		var planExpiry sql.NullTime
		var assigned sql.NullString
		if err := rows.Scan(&u.UserID, &u.IsActive, &planExpiry, &assigned); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if planExpiry.Valid {
			u.PlanExpiry = &planExpiry.Time
		}
		if assigned.Valid {
			u.AssignedCredential = &assigned.String
		}
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
