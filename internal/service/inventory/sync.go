package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// SyncExpected pulls the registry snapshot into the session's expected
// assets, upserting by asset code. Re-running it with unchanged registry
// data inserts nothing. Rows that fail are counted, not rolled back.
func (s *Service) SyncExpected(ctx context.Context, sessionID string, limit int) (*models.SyncBatch, error) {
	release, err := s.gate.Acquire(ctx, "pull:"+sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.AllowsSync() {
		return nil, &models.TransitionError{Entity: "inventory_session", From: string(session.Status), Op: "sync_expected"}
	}

	assets, err := s.registry.FetchAssets(ctx, limit)
	if err != nil {
		s.logger.Warn("registry pull failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, asSyncFailure(err)
	}

	var stats models.SyncStatistics
	now := s.now().UTC()
	for _, ra := range assets {
		code := strings.TrimSpace(ra.AssetCode)
		if code == "" {
			stats.Errors++
			continue
		}

		inserted, err := s.store.UpsertExpectedAsset(ctx, models.ExpectedAsset{
			ID:           s.newID(),
			SessionID:    sessionID,
			AssetCode:    code,
			Description:  ra.Description,
			RFIDCode:     ra.RFIDCode,
			Barcode:      ra.Barcode,
			ExpectedUL:   ra.UL,
			ExpectedUA:   ra.UA,
			Category:     ra.Category,
			IsWrittenOff: ra.WrittenOff,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		switch {
		case err != nil:
			stats.Errors++
			s.logger.Warn("expected asset upsert failed", zap.String("asset_code", code), zap.Error(err))
		case inserted:
			stats.Inserted++
		default:
			stats.Updated++
		}
	}

	s.logger.Info("expected assets synchronized",
		zap.String("session_id", sessionID),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors))

	return &models.SyncBatch{
		Success:    stats.Errors == 0,
		Message:    fmt.Sprintf("%d inserted, %d updated, %d errors", stats.Inserted, stats.Updated, stats.Errors),
		Statistics: stats,
	}, nil
}

// UploadResults pushes the reconciliation of a completed session to the
// registry and returns the transmission receipt.
func (s *Service) UploadResults(ctx context.Context, sessionID string, includePhotos bool) (*models.TransmissionReceipt, error) {
	release, err := s.gate.Acquire(ctx, "push:"+sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionCompleted {
		return nil, &models.TransitionError{Entity: "inventory_session", From: string(session.Status), Op: "upload_results"}
	}

	upload, err := s.buildUpload(ctx, *session, includePhotos)
	if err != nil {
		return nil, err
	}

	receipt, err := s.registry.SubmitResults(ctx, upload)
	if err != nil {
		s.logger.Warn("registry push failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, asSyncFailure(err)
	}

	s.logger.Info("results transmitted",
		zap.String("session_id", sessionID),
		zap.String("transmission_number", receipt.TransmissionNumber),
		zap.Int("items_sent", receipt.ItemsSent))
	return receipt, nil
}

func (s *Service) buildUpload(ctx context.Context, session models.InventorySession, includePhotos bool) (models.ResultUpload, error) {
	assets, err := s.store.AllExpectedAssets(ctx, session.ID)
	if err != nil {
		return models.ResultUpload{}, err
	}
	readings, err := s.store.ListReadings(ctx, session.ID)
	if err != nil {
		return models.ResultUpload{}, err
	}

	byAsset := make(map[string]models.Reading, len(readings))
	items := make([]models.ResultItem, 0, len(assets)+len(readings))
	var unregistered []models.ResultItem
	for _, r := range readings {
		if r.ExpectedAssetID != nil {
			byAsset[*r.ExpectedAssetID] = r
			continue
		}
		readAt := r.ReadAt
		unregistered = append(unregistered, models.ResultItem{
			Identifier:        r.Identifier,
			Status:            models.ResultUnregistered,
			ReadMethod:        r.ReadMethod,
			PhysicalCondition: r.PhysicalCondition,
			Observations:      r.Observations,
			ReadAt:            &readAt,
		})
	}

	for _, a := range assets {
		item := models.ResultItem{AssetCode: a.AssetCode}
		r, read := byAsset[a.ID]
		switch {
		case read:
			readAt := r.ReadAt
			item.Status = models.ResultFound
			item.Identifier = r.Identifier
			item.ReadMethod = r.ReadMethod
			item.PhysicalCondition = r.PhysicalCondition
			item.Observations = r.Observations
			item.ReadAt = &readAt
		case a.IsWrittenOff:
			item.Status = models.ResultWrittenOff
		default:
			item.Status = models.ResultNotFound
		}
		items = append(items, item)
	}

	return models.ResultUpload{
		SessionID:     session.ID,
		SessionCode:   session.Code,
		IncludePhotos: includePhotos,
		Items:         append(items, unregistered...),
	}, nil
}

func asSyncFailure(err error) error {
	var failure *models.SyncFailure
	if errors.As(err, &failure) {
		return failure
	}
	return &models.SyncFailure{Reason: "registry error", RawDetail: err.Error()}
}
