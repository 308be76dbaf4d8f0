// Package inventory implements the inventory session state machine, the
// reconciliation of readings against expected assets, and the gated
// synchronization with the external asset registry.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/internal/lock"
	"github.com/mamadbah2/fieldinventory/internal/registry"
	"github.com/mamadbah2/fieldinventory/internal/repository"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	maxCASAttempts  = 3
)

// Service owns every mutation of inventory sessions.
type Service struct {
	store    repository.InventoryStore
	registry registry.Registry
	gate     lock.Gate
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires a new inventory service. A nil gate falls back to an
// in-process gate.
func NewService(store repository.InventoryStore, reg registry.Registry, gate lock.Gate, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = lock.NewLocalGate()
	}
	return &Service{
		store:    store,
		registry: reg,
		gate:     gate,
		validate: models.NewValidator(),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateSession opens a new session in draft.
func (s *Service) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.InventorySession, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := models.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := models.InventorySession{
		ID:          s.newID(),
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.SessionDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session %s: %w", req.Code, err)
	}

	s.logger.Info("inventory session created", zap.String("session_id", session.ID), zap.String("code", session.Code))
	return &session, nil
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, id string) (*models.InventorySession, error) {
	return s.store.GetSession(ctx, id)
}

// ListSessions returns every session, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]models.InventorySession, error) {
	return s.store.ListSessions(ctx)
}

// Start moves a draft or paused session to in_progress. Starting a session
// that is already in progress succeeds without change.
func (s *Service) Start(ctx context.Context, id string) (*models.InventorySession, error) {
	return s.apply(ctx, id, models.OpStart)
}

// Pause suspends an in-progress session.
func (s *Service) Pause(ctx context.Context, id string) (*models.InventorySession, error) {
	return s.apply(ctx, id, models.OpPause)
}

// Complete finalizes a session. It does not require every expected asset to
// be read; partial completion shows up in the statistics.
func (s *Service) Complete(ctx context.Context, id string) (*models.InventorySession, error) {
	return s.apply(ctx, id, models.OpComplete)
}

// Cancel abandons a session that is not yet terminal.
func (s *Service) Cancel(ctx context.Context, id string) (*models.InventorySession, error) {
	return s.apply(ctx, id, models.OpCancel)
}

func (s *Service) apply(ctx context.Context, id string, op models.SessionOp) (*models.InventorySession, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		session, err := s.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}

		next, changed, err := session.Status.Transition(op)
		if err != nil {
			return nil, err
		}
		if !changed {
			return session, nil
		}

		now := s.now().UTC()
		err = s.store.UpdateSessionStatus(ctx, id, session.Status, next, now)
		if errors.Is(err, repository.ErrStaleStatus) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s session %s: %w", op, id, err)
		}

		s.logger.Info("inventory session transitioned",
			zap.String("session_id", id),
			zap.String("op", string(op)),
			zap.String("from", string(session.Status)),
			zap.String("to", string(next)))

		session.Status = next
		session.UpdatedAt = now
		return session, nil
	}
	return nil, fmt.Errorf("%s session %s: %w", op, id, repository.ErrStaleStatus)
}

// DeleteSession physically removes a session that has no readings.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.logger.Info("inventory session deleted", zap.String("session_id", id))
	return nil
}

// ListExpectedAssets returns a page of the session's expected assets.
func (s *Service) ListExpectedAssets(ctx context.Context, id string, filter models.ExpectedAssetFilter) (*models.ExpectedAssetPage, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, err
	}

	if filter.Skip < 0 {
		filter.Skip = 0
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	items, total, err := s.store.ListExpectedAssets(ctx, id, filter)
	if err != nil {
		return nil, err
	}
	return &models.ExpectedAssetPage{Items: items, Total: total, Skip: filter.Skip, Limit: filter.Limit}, nil
}

// Statistics recomputes the completion projection of a session.
func (s *Service) Statistics(ctx context.Context, id string) (*models.Statistics, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	counts, err := s.store.Counts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("statistics for %s: %w", id, err)
	}
	stats := models.ComputeStatistics(counts)
	return &stats, nil
}
