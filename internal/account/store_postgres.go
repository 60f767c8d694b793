package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	id "enroll/pkg/domain"
	"enroll/pkg/platform/sentinel"
	"enroll/pkg/platform/tx"
)

// execer is the subset of *sql.DB and *sql.Tx the store needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists accounts in PostgreSQL. Uniqueness of email and
// phone is enforced by database constraints, not application checks: the
// guard closes the common duplicate path early, the constraint closes the
// race the guard cannot (two flows passing the guard before either inserts).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// conn returns the context transaction when one is present, the pool
// otherwise. Callers that need account writes atomic with their own rows run
// inside tx.WithTx.
func (s *PostgresStore) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, acc Account) error {
	const q = `
		INSERT INTO accounts (
			id, provider_subject, name, username, email,
			phone_country_code, phone_local_number,
			email_verified, phone_verified, onboarding_step, created_at
		) VALUES ($1, $2, $3, $4, lower($5), $6, $7, $8, $9, $10, $11)`

	_, err := s.conn(ctx).ExecContext(ctx, q,
		uuid.UUID(acc.ID), acc.ProviderSubject, acc.Name, acc.Username, acc.Email,
		acc.PhoneCountryCode, acc.PhoneLocalNumber,
		acc.EmailVerified, acc.PhoneVerified, acc.OnboardingStep, acc.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("identifier taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (Account, error) {
	const q = `
		SELECT id, provider_subject, name, username, email,
		       phone_country_code, phone_local_number,
		       email_verified, phone_verified, onboarding_step, created_at
		FROM accounts WHERE id = $1`

	var acc Account
	var rawID uuid.UUID
	err := s.conn(ctx).QueryRowContext(ctx, q, uuid.UUID(userID)).Scan(
		&rawID, &acc.ProviderSubject, &acc.Name, &acc.Username, &acc.Email,
		&acc.PhoneCountryCode, &acc.PhoneLocalNumber,
		&acc.EmailVerified, &acc.PhoneVerified, &acc.OnboardingStep, &acc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %s: %w", userID, sentinel.ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	acc.ID = id.UserID(rawID)
	return acc, nil
}

func (s *PostgresStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE email = lower($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ExistsByPhone(ctx context.Context, dialCode, localNumber string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE phone_country_code = $1 AND phone_local_number = $2)`,
		dialCode, localNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check phone exists: %w", err)
	}
	return exists, nil
}
