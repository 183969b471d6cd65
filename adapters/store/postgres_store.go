package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/layer-3/panadero/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// PostgresStore keeps credentials and the revocation set in PostgreSQL
type PostgresStore struct {
	db *sqlx.DB
}

type credentialRow struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	Email            string    `db:"email"`
	PasswordHash     string    `db:"password_hash"`
	TwoFactorEnabled bool      `db:"two_factor_enabled"`
	TwoFactorSecret  string    `db:"two_factor_secret"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r credentialRow) toCredential() *core.Credential {
	return &core.Credential{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		PasswordHash:     r.PasswordHash,
		TwoFactorEnabled: r.TwoFactorEnabled,
		TwoFactorSecret:  r.TwoFactorSecret,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to the database and verifies the connection
func OpenPostgres(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Migrate applies the embedded schema migrations
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// CreateCredential inserts a credential, mapping the email unique index to core.ErrEmailTaken
func (s *PostgresStore) CreateCredential(ctx context.Context, cred *core.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, name, email, password_hash, two_factor_enabled, two_factor_secret, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, cred.ID, cred.Name, cred.Email, cred.PasswordHash, cred.TwoFactorEnabled, cred.TwoFactorSecret, cred.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return core.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// GetCredential loads a credential by id
func (s *PostgresStore) GetCredential(ctx context.Context, id string) (*core.Credential, error) {
	return s.getCredential(ctx, `
		SELECT id, name, email, password_hash, two_factor_enabled, two_factor_secret, created_at
		FROM credentials
		WHERE id = $1
	`, id)
}

// GetCredentialByEmail loads a credential by its exact email
func (s *PostgresStore) GetCredentialByEmail(ctx context.Context, email string) (*core.Credential, error) {
	return s.getCredential(ctx, `
		SELECT id, name, email, password_hash, two_factor_enabled, two_factor_secret, created_at
		FROM credentials
		WHERE email = $1
	`, email)
}

func (s *PostgresStore) getCredential(ctx context.Context, query string, arg string) (*core.Credential, error) {
	var row credentialRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return row.toCredential(), nil
}

// UpdateTwoFactor sets the second-factor columns of a credential
func (s *PostgresStore) UpdateTwoFactor(ctx context.Context, id string, enabled bool, secret string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET two_factor_enabled = $2, two_factor_secret = $3
		WHERE id = $1
	`, id, enabled, secret)
	if err != nil {
		return fmt.Errorf("failed to update two-factor settings: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return core.ErrNotFound
	}
	return nil
}

// InvalidateToken adds a key to the revocation set
func (s *PostgresStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_key, revoked_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_key) DO UPDATE
		SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)
	`, tokenID, now, now.Add(expiry))
	if err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// ConsumeToken inserts the entry, or replaces an expired one, in a single statement.
// It reports false when a live entry already exists.
func (s *PostgresStore) ConsumeToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_key, revoked_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_key) DO UPDATE
		SET revoked_at = EXCLUDED.revoked_at, expires_at = EXCLUDED.expires_at
		WHERE revoked_tokens.expires_at <= EXCLUDED.revoked_at
	`, tokenID, now, now.Add(expiry))
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	return affected > 0, nil
}

// IsTokenInvalidated checks the revocation set for a live entry
func (s *PostgresStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_key = $1 AND expires_at > $2)
	`, tokenID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return exists, nil
}

// PurgeExpired deletes revocation entries whose tokens can no longer validate
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", err)
	}
	return result.RowsAffected()
}
