package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// RegisterReading reconciles a scanned identifier against the session's
// expected assets and stores the resulting reading.
//
// Readings are immutable and unique per (session, identifier), and an
// expected asset holds at most one reading whichever of its keys was
// scanned. A repeat returns the existing reading with created false, which
// keeps replays of buffered offline readings from double counting.
func (s *Service) RegisterReading(ctx context.Context, sessionID string, req models.RegisterReadingRequest) (*models.Reading, bool, error) {
	req.Identifier = models.NormalizeIdentifier(req.Identifier)
	req.PhysicalCondition = strings.TrimSpace(req.PhysicalCondition)
	if req.ReadMethod == "" {
		req.ReadMethod = models.ReadManual
	}
	if err := models.ValidateStruct(s.validate, req); err != nil {
		return nil, false, err
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}

	if existing, err := s.store.FindReading(ctx, sessionID, req.Identifier); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup reading: %w", err)
	}

	if session.Status != models.SessionInProgress {
		return nil, false, &models.TransitionError{Entity: "inventory_session", From: string(session.Status), Op: "register_reading"}
	}

	reading := models.Reading{
		ID:                s.newID(),
		SessionID:         sessionID,
		Identifier:        req.Identifier,
		ReadMethod:        req.ReadMethod,
		PhysicalCondition: req.PhysicalCondition,
		Observations:      req.Observations,
		Category:          models.ReadingUnregistered,
		ReadAt:            s.now().UTC(),
	}

	asset, err := s.store.FindExpectedAsset(ctx, sessionID, req.Identifier)
	switch {
	case err == nil:
		if existing, err := s.store.FindAssetReading(ctx, sessionID, asset.ID); err == nil {
			return existing, false, nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, false, fmt.Errorf("lookup asset reading: %w", err)
		}
		assetID := asset.ID
		reading.ExpectedAssetID = &assetID
		reading.Category = models.ReadingFound
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, false, fmt.Errorf("match identifier: %w", err)
	}

	if err := s.store.InsertReading(ctx, reading); err != nil {
		if errors.Is(err, models.ErrSessionConflict) {
			// lost a race with a registration of the same identifier or asset
			if existing, findErr := s.store.FindReading(ctx, sessionID, req.Identifier); findErr == nil {
				return existing, false, nil
			}
			if reading.ExpectedAssetID != nil {
				if existing, findErr := s.store.FindAssetReading(ctx, sessionID, *reading.ExpectedAssetID); findErr == nil {
					return existing, false, nil
				}
			}
		}
		return nil, false, fmt.Errorf("store reading: %w", err)
	}

	if reading.ExpectedAssetID != nil {
		if err := s.store.MarkAssetVerified(ctx, *reading.ExpectedAssetID, reading.ReadAt); err != nil {
			return nil, false, fmt.Errorf("mark asset verified: %w", err)
		}
	}

	s.logger.Debug("reading registered",
		zap.String("session_id", sessionID),
		zap.String("identifier", reading.Identifier),
		zap.String("category", string(reading.Category)),
		zap.String("method", string(reading.ReadMethod)))

	return &reading, true, nil
}

// ListReadings returns every reading of a session.
func (s *Service) ListReadings(ctx context.Context, sessionID string) ([]models.Reading, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListReadings(ctx, sessionID)
}
