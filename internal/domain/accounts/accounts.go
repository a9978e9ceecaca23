// Package accounts holds user accounts: registration, credential checks, and
// the unconfirmed-account lifecycle the purge job enforces.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventsphere/server/internal/auth"
	"github.com/eventsphere/server/internal/domain/ids"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrEmailTaken         = errors.New("account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
)

// BcryptCost is the cost factor for password hashing.
const BcryptCost = 12

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         auth.Role
	IsActive     bool
	DefaultLang  string

	// ConfirmationToken is set while an email confirmation is pending; the
	// purge job removes inactive accounts whose token has outlived its TTL.
	ConfirmationToken  *string
	ConfirmationSentAt *time.Time

	CreatedAt   time.Time
	LastLoginAt *time.Time
}

type Repository interface {
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateLanguage(ctx context.Context, id, lang string) error
	// PurgeUnconfirmed deletes inactive accounts whose confirmation was sent
	// before the cutoff, returning how many were removed.
	PurgeUnconfirmed(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "accounts").Logger(),
	}
}

// Register creates a new active account with the user role. Roles are never
// self-assigned at registration.
func (s *Service) Register(ctx context.Context, email, password, defaultLang string) (*Account, error) {
	if existing, err := s.repo.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint account id: %w", err)
	}

	if defaultLang == "" {
		defaultLang = "en"
	}

	account := &Account{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		Role:         auth.RoleUser,
		IsActive:     true,
		DefaultLang:  defaultLang,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info().Str("account_id", account.ID).Msg("account registered")
	return account, nil
}

// NewAdminAccount builds an active admin account for startup bootstrap. It
// does not persist; the caller owns the Create call and its idempotency
// check.
func NewAdminAccount(email, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint account id: %w", err)
	}

	return &Account{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		Role:         auth.RoleAdmin,
		IsActive:     true,
		DefaultLang:  "en",
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Authenticate verifies credentials. The same error covers unknown email and
// wrong password, so login responses do not leak which one failed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, account.ID, now); err != nil {
		// Login still succeeds; the timestamp is best effort.
		s.logger.Warn().Err(err).Str("account_id", account.ID).Msg("update last login failed")
	}
	account.LastLoginAt = &now

	return account, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) UpdateLanguage(ctx context.Context, id, lang string) error {
	if lang == "" {
		return fmt.Errorf("language must not be empty")
	}
	return s.repo.UpdateLanguage(ctx, id, lang)
}
