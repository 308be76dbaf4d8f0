// Package readingsession manages the short-lived device reading sessions
// that bind a companion scanning app to one user.
package readingsession

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
	"github.com/mamadbah2/fieldinventory/internal/repository"
)

// ReadingCommitter registers device reads into an inventory session.
type ReadingCommitter interface {
	RegisterReading(ctx context.Context, sessionID string, req models.RegisterReadingRequest) (*models.Reading, bool, error)
}

// Options bounds the timeout a caller may request.
type Options struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// Service implements the device reading session lifecycle. The store is the
// authority on status; expiry is additionally derived from the clock on
// every access.
type Service struct {
	store     repository.ReadingSessionStore
	committer ReadingCommitter
	opts      Options
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService wires a new reading session service. committer may be nil when
// device sessions are never bound to an inventory session.
func NewService(store repository.ReadingSessionStore, committer ReadingCommitter, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Minute
	}
	if opts.MaxTimeout < opts.DefaultTimeout {
		opts.MaxTimeout = opts.DefaultTimeout
	}
	return &Service{
		store:     store,
		committer: committer,
		opts:      opts,
		validate:  models.NewValidator(),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Create starts a device session for the caller. It fails with
// models.ErrSessionConflict if the caller already owns an ACTIVE one.
func (s *Service) Create(ctx context.Context, caller models.Caller, req models.CreateReadingSessionRequest) (*models.DeviceReadingSession, error) {
	if caller.UserID == "" {
		return nil, &models.ValidationError{Field: "user", Message: "is required"}
	}
	req.ReadingType = models.ReadingType(strings.ToUpper(string(req.ReadingType)))
	if err := models.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.opts.DefaultTimeout
	}
	if timeout > s.opts.MaxTimeout {
		timeout = s.opts.MaxTimeout
	}

	now := s.now().UTC()
	if current, err := s.store.FindActiveReadingSession(ctx, caller.UserID); err == nil {
		if current.IsActive(now) {
			return nil, models.ErrSessionConflict
		}
		if err := s.expire(ctx, *current, now); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup active reading session: %w", err)
	}

	session := models.DeviceReadingSession{
		ID:             s.newID(),
		ReadingType:    req.ReadingType,
		Status:         models.DeviceActive,
		UserID:         caller.UserID,
		ProjectID:      req.ProjectID,
		Location:       req.Location,
		TimeoutSeconds: int(timeout / time.Second),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertReadingSession(ctx, session); err != nil {
		if errors.Is(err, models.ErrSessionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create reading session: %w", err)
	}

	s.logger.Info("reading session started",
		zap.String("session_id", session.ID),
		zap.String("user_id", session.UserID),
		zap.String("type", string(session.ReadingType)),
		zap.Int("timeout_seconds", session.TimeoutSeconds))
	return &session, nil
}

// Get returns a session with its effective status.
func (s *Service) Get(ctx context.Context, id string) (*models.DeviceReadingSession, error) {
	session, err := s.store.GetReadingSession(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Status = session.EffectiveStatus(s.now())
	return session, nil
}

// Active returns the caller's ACTIVE session, expiring it on the way if its
// time is up.
func (s *Service) Active(ctx context.Context, caller models.Caller) (*models.DeviceReadingSession, error) {
	session, err := s.store.FindActiveReadingSession(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !session.IsActive(now) {
		if err := s.expire(ctx, *session, now); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("active reading session: %w", models.ErrNotFound)
	}
	return session, nil
}

// Readings returns the full current set of reads of a session.
func (s *Service) Readings(ctx context.Context, id string) (*models.ReadingsSnapshot, error) {
	session, err := s.store.GetReadingSession(ctx, id)
	if err != nil {
		return nil, err
	}
	readings, err := s.store.ListSessionReadings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list session readings: %w", err)
	}
	return &models.ReadingsSnapshot{
		SessionID: session.ID,
		Status:    session.EffectiveStatus(s.now()),
		ExpiresAt: session.ExpiresAt(),
		Readings:  readings,
	}, nil
}

// RecordReading attributes a device read to the caller's ACTIVE session.
func (s *Service) RecordReading(ctx context.Context, caller models.Caller, req models.DeviceReadingRequest) (*models.SessionReading, error) {
	req.Identifier = models.NormalizeIdentifier(req.Identifier)
	if err := models.ValidateStruct(s.validate, req); err != nil {
		return nil, err
	}

	session, err := s.store.FindActiveReadingSession(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !session.IsActive(now) {
		if err := s.expire(ctx, *session, now); err != nil {
			return nil, err
		}
		return nil, &models.TransitionError{Entity: "reading_session", From: string(models.DeviceExpired), Op: "record_reading"}
	}

	reading := models.SessionReading{
		ID:         s.newID(),
		SessionID:  session.ID,
		Identifier: req.Identifier,
		ReadAt:     now,
	}
	if err := s.store.InsertSessionReading(ctx, reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

// Complete ends an ACTIVE session. The stored status is re-read and the
// expiry re-checked, so a session whose time ran out is rejected with
// models.ErrInvalidTransition even if no sweep has marked it yet. Reads of a
// session bound to an inventory session are committed into it.
func (s *Service) Complete(ctx context.Context, caller models.Caller, id string) (*models.DeviceReadingSession, error) {
	session, err := s.finish(ctx, caller, id, models.DeviceCompleted)
	if err != nil {
		return nil, err
	}
	if session.ProjectID != "" && s.committer != nil {
		s.commit(ctx, *session)
	}
	return session, nil
}

// Cancel aborts an ACTIVE session; its reads are kept but never committed.
func (s *Service) Cancel(ctx context.Context, caller models.Caller, id string) (*models.DeviceReadingSession, error) {
	return s.finish(ctx, caller, id, models.DeviceCancelled)
}

func (s *Service) finish(ctx context.Context, caller models.Caller, id string, to models.DeviceSessionStatus) (*models.DeviceReadingSession, error) {
	session, err := s.store.GetReadingSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanManage(*session) {
		return nil, fmt.Errorf("reading session %s: %w", id, models.ErrNotFound)
	}

	now := s.now().UTC()
	op := strings.ToLower(string(to))
	effective := session.EffectiveStatus(now)
	if effective != models.DeviceActive {
		if effective == models.DeviceExpired && session.Status == models.DeviceActive {
			if err := s.expire(ctx, *session, now); err != nil {
				return nil, err
			}
		}
		return nil, &models.TransitionError{Entity: "reading_session", From: string(effective), Op: op}
	}

	err = s.store.UpdateReadingSessionStatus(ctx, id, models.DeviceActive, to, now)
	if errors.Is(err, repository.ErrStaleStatus) {
		current, getErr := s.store.GetReadingSession(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &models.TransitionError{Entity: "reading_session", From: string(current.Status), Op: op}
	}
	if err != nil {
		return nil, fmt.Errorf("%s reading session %s: %w", op, id, err)
	}

	s.logger.Info("reading session finished", zap.String("session_id", id), zap.String("status", string(to)))
	session.Status = to
	session.UpdatedAt = now
	return session, nil
}

func (s *Service) commit(ctx context.Context, session models.DeviceReadingSession) {
	readings, err := s.store.ListSessionReadings(ctx, session.ID)
	if err != nil {
		s.logger.Error("failed to load device reads for commit", zap.String("session_id", session.ID), zap.Error(err))
		return
	}

	committed := 0
	for _, r := range readings {
		_, created, err := s.committer.RegisterReading(ctx, session.ProjectID, models.RegisterReadingRequest{
			Identifier: r.Identifier,
			ReadMethod: session.ReadingType.ReadMethod(),
		})
		if err != nil {
			s.logger.Warn("device read not committed",
				zap.String("session_id", session.ID),
				zap.String("inventory_session_id", session.ProjectID),
				zap.String("identifier", r.Identifier),
				zap.Error(err))
			continue
		}
		if created {
			committed++
		}
	}

	s.logger.Info("device reads committed",
		zap.String("session_id", session.ID),
		zap.String("inventory_session_id", session.ProjectID),
		zap.Int("reads", len(readings)),
		zap.Int("committed", committed))
}

// ExpireOverdue marks every ACTIVE session past its expiry as EXPIRED and
// returns how many were changed.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	sessions, err := s.store.ListActiveReadingSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active reading sessions: %w", err)
	}

	now := s.now().UTC()
	expired := 0
	for _, session := range sessions {
		if session.IsActive(now) {
			continue
		}
		if err := s.expire(ctx, session, now); err != nil {
			s.logger.Warn("failed to expire reading session", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, session models.DeviceReadingSession, now time.Time) error {
	err := s.store.UpdateReadingSessionStatus(ctx, session.ID, models.DeviceActive, models.DeviceExpired, now)
	if err != nil && !errors.Is(err, repository.ErrStaleStatus) {
		return fmt.Errorf("expire reading session %s: %w", session.ID, err)
	}
	if err == nil {
		s.logger.Info("reading session expired", zap.String("session_id", session.ID), zap.String("user_id", session.UserID))
	}
	return nil
}
