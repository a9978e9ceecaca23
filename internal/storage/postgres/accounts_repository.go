package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventsphere/server/internal/auth"
	"github.com/eventsphere/server/internal/domain/accounts"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountsRepository struct {
	pool *pgxpool.Pool
}

func NewAccountsRepository(pool *pgxpool.Pool) *AccountsRepository {
	return &AccountsRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, role, is_active, default_lang,
confirmation_token, confirmation_sent_at, created_at, last_login_at`

func (r *AccountsRepository) Create(ctx context.Context, account *accounts.Account) error {
	const query = `
INSERT INTO accounts (id, email, password_hash, role, is_active, default_lang,
                      confirmation_token, confirmation_sent_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.IsActive,
		account.DefaultLang,
		account.ConfirmationToken,
		account.ConfirmationSentAt,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return accounts.ErrEmailTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 LIMIT 1`, email)
}

func (r *AccountsRepository) FindByID(ctx context.Context, id string) (*accounts.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 LIMIT 1`, id)
}

func (r *AccountsRepository) findOne(ctx context.Context, query string, arg any) (*accounts.Account, error) {
	row := r.pool.QueryRow(ctx, query, arg)

	var account accounts.Account
	var role string
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.IsActive,
		&account.DefaultLang,
		&account.ConfirmationToken,
		&account.ConfirmationSentAt,
		&account.CreatedAt,
		&account.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.Role = auth.NormalizeRole(role)
	return &account, nil
}

func (r *AccountsRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (r *AccountsRepository) UpdateLanguage(ctx context.Context, id, lang string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET default_lang = $2 WHERE id = $1`, id, lang)
	if err != nil {
		return fmt.Errorf("update language: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

// PurgeUnconfirmed deletes inactive accounts whose confirmation was sent
// before the cutoff. One DELETE keeps the operation atomic per document and
// idempotent across repeated runs.
func (r *AccountsRepository) PurgeUnconfirmed(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
DELETE FROM accounts
 WHERE is_active = false
   AND confirmation_token IS NOT NULL
   AND confirmation_sent_at <= $1`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge unconfirmed accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}
