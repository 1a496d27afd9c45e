package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/credential-broker/internal/models"
)

// GetCredential возвращает учётную запись по её username.
func (s *Storage) GetCredential(ctx context.Context, username string) (*models.Credential, error) {
	const op = "storage.GetCredential"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT username, secret, status, credential_expiry
			  FROM credentials
			  WHERE username = $1`
	row := s.DB.QueryRowContext(ctx, query, username)

	c := &models.Credential{}
	if err := row.Scan(&c.Username, &c.Secret, &c.Status, &c.CredentialExpiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// InsertCredential вставляет новую учётную запись со статусом available.
// Нарушение уникальности username транслируется в ErrDuplicateCredential.
func (s *Storage) InsertCredential(ctx context.Context, cred models.Credential) error {
	const op = "storage.InsertCredential"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO credentials (username, secret, status, credential_expiry)
			  VALUES ($1, $2, $3, $4)`
	_, err := s.DB.ExecContext(ctx, query,
		cred.Username, cred.Secret, cred.Status, cred.CredentialExpiry)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, ErrDuplicateCredential)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateCredential обновляет пароль и срок жизни учётной записи,
// не трогая её статус.
func (s *Storage) UpdateCredential(ctx context.Context, username, newSecret string, newExpiry time.Time) error {
	const op = "storage.UpdateCredential"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE credentials
			  SET secret = $2, credential_expiry = $3
			  WHERE username = $1`
	result, err := s.DB.ExecContext(ctx, query, username, newSecret, newExpiry)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrCredentialNotFound)
	}
	return nil
}

// FindBestFitCredential возвращает свободную учётную запись с наименьшим
// сроком жизни среди тех, что доживают до minExpiry. Порядок устойчив:
// при равных сроках побеждает меньший username.
func (s *Storage) FindBestFitCredential(ctx context.Context, minExpiry time.Time) (*models.Credential, error) {
	const op = "storage.FindBestFitCredential"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT username, secret, status, credential_expiry
			  FROM credentials
			  WHERE status = $1 AND credential_expiry >= $2
			  ORDER BY credential_expiry ASC, username ASC
			  LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, models.StatusAvailable, minExpiry)

	c := &models.Credential{}
	if err := row.Scan(&c.Username, &c.Secret, &c.Status, &c.CredentialExpiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// QueryAvailableCredentials возвращает все свободные и не истёкшие
// учётные записи в порядке возрастания срока жизни.
func (s *Storage) QueryAvailableCredentials(ctx context.Context, minExpiry time.Time) ([]*models.Credential, error) {
	const op = "storage.QueryAvailableCredentials"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT username, secret, status, credential_expiry
			  FROM credentials
			  WHERE status = $1 AND credential_expiry > $2
			  ORDER BY credential_expiry ASC, username ASC`
	rows, err := s.DB.QueryContext(ctx, query, models.StatusAvailable, minExpiry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.Username, &c.Secret, &c.Status, &c.CredentialExpiry); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// QueryInUseCredentials возвращает занятые учётные записи вместе
// с пользователями, за которыми они закреплены. Учётная запись без
// владельца попадает в выборку с пустым HolderID: осиротевшая запись —
// нарушение целостности, которое отображается, а не роняет процесс.
func (s *Storage) QueryInUseCredentials(ctx context.Context) ([]*models.CredentialInUse, error) {
	const op = "storage.QueryInUseCredentials"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT c.username, c.secret, c.status, c.credential_expiry, u.user_id
			  FROM credentials c
			  LEFT JOIN users u ON u.assigned_credential = c.username
			  WHERE c.status = $1
			  ORDER BY c.credential_expiry ASC, c.username ASC`
	rows, err := s.DB.QueryContext(ctx, query, models.StatusInUse)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.CredentialInUse
	for rows.Next() {
		var c models.CredentialInUse
		var holder sql.NullString
		if err := rows.Scan(&c.Username, &c.Secret, &c.Status, &c.CredentialExpiry, &holder); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if holder.Valid {
			c.HolderID = holder.String
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// AssignCredential атомарно закрепляет учётную запись за пользователем.
// Смена статуса выполняется условным UPDATE по статусу available: из двух
// конкурирующих закреплений одной записи пройдёт ровно одно, второе
// получит ErrCredentialUnavailable.
func (s *Storage) AssignCredential(ctx context.Context, userID, username string) error {
	const op = "storage.AssignCredential"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE credentials SET status = $2 WHERE username = $1 AND status = $3`,
		username, models.StatusInUse, models.StatusAvailable)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrCredentialUnavailable)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE users SET assigned_credential = $2 WHERE user_id = $1`,
		userID, username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ReleaseCredential снимает закрепление учётной записи с пользователя и
// возвращает её в пул. Возвращает username освобождённой записи.
// Повторный вызов для пользователя без закрепления безопасен и отвечает
// ErrNoCredentialAssigned.
func (s *Storage) ReleaseCredential(ctx context.Context, userID string) (string, error) {
	const op = "storage.ReleaseCredential"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var assigned sql.NullString
	row := tx.QueryRowContext(ctx,
		`SELECT assigned_credential FROM users WHERE user_id = $1 FOR UPDATE`, userID)
	if err := row.Scan(&assigned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !assigned.Valid {
		return "", fmt.Errorf("%s: %w", op, ErrNoCredentialAssigned)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET assigned_credential = NULL WHERE user_id = $1`, userID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE credentials SET status = $2 WHERE username = $1`,
		assigned.String, models.StatusAvailable); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return assigned.String, nil
}
