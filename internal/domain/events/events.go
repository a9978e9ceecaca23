// Package events holds the event entities the scheduler maintains and the
// thin read/write surface the governed routes expose.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventsphere/server/internal/domain/ids"
	"github.com/eventsphere/server/internal/sanitize"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("event not found")
	ErrInvalidDates = errors.New("event end time must be after start time")
)

type Event struct {
	ID          string
	Name        string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	IsActive    bool
	CreatedBy   string
	CreatedAt   time.Time
}

type Repository interface {
	Create(ctx context.Context, event *Event) error
	ListActive(ctx context.Context) ([]Event, error)
	Deactivate(ctx context.Context, id string) error
	// DeactivatePast flips the active flag off for every event whose end
	// time is before now and which is still active, returning how many
	// changed. Running it twice for the same instant changes nothing the
	// second time.
	DeactivatePast(ctx context.Context, now time.Time) (int64, error)
}

type CreateParams struct {
	Name        string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	CreatedBy   string
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Event, error) {
	// Names are plain text; descriptions keep safe formatting only.
	params.Name = sanitize.Text(params.Name)
	params.Description = sanitize.HTML(params.Description)
	if params.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if !params.EndTime.After(params.StartTime) {
		return nil, ErrInvalidDates
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint event id: %w", err)
	}

	event := &Event{
		ID:          id,
		Name:        params.Name,
		Description: params.Description,
		StartTime:   params.StartTime,
		EndTime:     params.EndTime,
		IsActive:    true,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info().Str("event_id", event.ID).Msg("event created")
	return event, nil
}

func (s *Service) ListActive(ctx context.Context) ([]Event, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.repo.Deactivate(ctx, id)
}
