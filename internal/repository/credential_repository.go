package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/pkg/database"
)

// credentialRepository implements CredentialRepository interface
type credentialRepository struct {
	db *database.Postgres
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *database.Postgres) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, user_id, provider, account_email, access_token, refresh_token,
		token_expires_at, status, last_sync_at, last_error, created_at, updated_at`

// Create creates a new calendar credential
func (r *credentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	query := `
		INSERT INTO calendar_credentials
			(id, user_id, provider, account_email, access_token, refresh_token,
			 token_expires_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}

	now := time.Now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	if cred.Status == "" {
		cred.Status = domain.SyncStatusActive
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.Provider,
		cred.AccountEmail,
		cred.AccessToken,
		cred.RefreshToken,
		cred.TokenExpiresAt,
		cred.Status,
		cred.CreatedAt,
		cred.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("credential for user %s: %w", cred.UserID, ErrDuplicateCredential)
			}
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// GetByUserID retrieves the calendar credential of a user
func (r *credentialRepository) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	query := fmt.Sprintf(`SELECT %s FROM calendar_credentials WHERE user_id = $1`, credentialColumns)

	cred, err := scanCredential(r.db.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential for user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return cred, nil
}

// UpdateTokens stores new (encrypted) token material and expiry
func (r *credentialRepository) UpdateTokens(ctx context.Context, cred *domain.Credential) error {
	query := `
		UPDATE calendar_credentials
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		cred.UserID, cred.AccessToken, cred.RefreshToken, cred.TokenExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	return requireRow(result, cred.UserID)
}

// UpdateStatus sets the sync status. Moving to active clears last_error.
func (r *credentialRepository) UpdateStatus(ctx context.Context, userID string, status domain.SyncStatus) error {
	query := `
		UPDATE calendar_credentials
		SET status = $2,
		    last_error = CASE WHEN $2 = 'active' THEN NULL ELSE last_error END,
		    updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, status)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	return requireRow(result, userID)
}

// SetError marks the credential unhealthy, storing the failure message.
// Token material is left untouched so the user can still disconnect or the
// connection can self-heal on the next refresh.
func (r *credentialRepository) SetError(ctx context.Context, userID, message string) error {
	query := `
		UPDATE calendar_credentials
		SET status = 'error', last_error = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, message)
	if err != nil {
		return fmt.Errorf("failed to set error: %w", err)
	}

	return requireRow(result, userID)
}

// SetSynced marks the credential healthy after a successful sync pass
func (r *credentialRepository) SetSynced(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE calendar_credentials
		SET status = 'active', last_error = NULL, last_sync_at = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("failed to set synced: %w", err)
	}

	return requireRow(result, userID)
}

// ListActive returns credentials eligible for periodic reconciliation:
// active status with a token that is either valid or refreshable
func (r *credentialRepository) ListActive(ctx context.Context) ([]*domain.Credential, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM calendar_credentials
		WHERE status = 'active' AND (token_expires_at > NOW() OR refresh_token <> '')
		ORDER BY created_at
	`, credentialColumns)

	return r.list(ctx, query)
}

// ListNeedingRefresh returns credentials whose token expires before the
// deadline, regardless of status: a proactive refresh can heal an error
// state caused by expiry
func (r *credentialRepository) ListNeedingRefresh(ctx context.Context, deadline time.Time) ([]*domain.Credential, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM calendar_credentials
		WHERE token_expires_at <= $1 AND refresh_token <> ''
		ORDER BY token_expires_at
	`, credentialColumns)

	return r.list(ctx, query, deadline)
}

// Delete removes the credential of a user
func (r *credentialRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM calendar_credentials WHERE user_id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	return requireRow(result, userID)
}

func (r *credentialRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Credential, error) {
	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*domain.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}

	return creds, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	cred := &domain.Credential{}
	var lastSync sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.Provider,
		&cred.AccountEmail,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.TokenExpiresAt,
		&cred.Status,
		&lastSync,
		&lastError,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSync.Valid {
		cred.LastSyncAt = &lastSync.Time
	}
	if lastError.Valid {
		cred.LastError = &lastError.String
	}

	return cred, nil
}

func requireRow(result sql.Result, userID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("credential for user %s: %w", userID, ErrNotFound)
	}
	return nil
}
