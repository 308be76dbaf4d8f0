// Package repository declares the narrow persistence surface used by the
// inventory and reading session services.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// ErrStaleStatus is returned by compare-and-set status updates when the
// stored status no longer matches the expected one.
var ErrStaleStatus = errors.New("status changed concurrently")

// InventoryStore persists inventory sessions, expected assets and readings.
type InventoryStore interface {
	CreateSession(ctx context.Context, session models.InventorySession) error
	GetSession(ctx context.Context, id string) (*models.InventorySession, error)
	ListSessions(ctx context.Context) ([]models.InventorySession, error)
	UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) error
	DeleteSession(ctx context.Context, id string) error

	// UpsertExpectedAsset inserts or updates by (session_id, asset_code) and
	// reports whether a new row was created. The verified flag of an
	// existing row is preserved.
	UpsertExpectedAsset(ctx context.Context, asset models.ExpectedAsset) (bool, error)
	ListExpectedAssets(ctx context.Context, sessionID string, filter models.ExpectedAssetFilter) ([]models.ExpectedAsset, int64, error)
	AllExpectedAssets(ctx context.Context, sessionID string) ([]models.ExpectedAsset, error)
	FindExpectedAsset(ctx context.Context, sessionID, identifier string) (*models.ExpectedAsset, error)
	MarkAssetVerified(ctx context.Context, assetID string, at time.Time) error

	// InsertReading stores a reading; a second reading with the same
	// (session_id, identifier), or a second found reading of the same
	// expected asset, is rejected with models.ErrSessionConflict.
	InsertReading(ctx context.Context, reading models.Reading) error
	FindReading(ctx context.Context, sessionID, identifier string) (*models.Reading, error)
	FindAssetReading(ctx context.Context, sessionID, assetID string) (*models.Reading, error)
	ListReadings(ctx context.Context, sessionID string) ([]models.Reading, error)
	Counts(ctx context.Context, sessionID string) (models.SessionCounts, error)
}

// ReadingSessionStore persists device reading sessions and their reads.
type ReadingSessionStore interface {
	// InsertReadingSession fails with models.ErrSessionConflict when the
	// user already has an ACTIVE session.
	InsertReadingSession(ctx context.Context, session models.DeviceReadingSession) error
	GetReadingSession(ctx context.Context, id string) (*models.DeviceReadingSession, error)
	FindActiveReadingSession(ctx context.Context, userID string) (*models.DeviceReadingSession, error)
	ListActiveReadingSessions(ctx context.Context) ([]models.DeviceReadingSession, error)
	UpdateReadingSessionStatus(ctx context.Context, id string, from, to models.DeviceSessionStatus, at time.Time) error
	InsertSessionReading(ctx context.Context, reading models.SessionReading) error
	ListSessionReadings(ctx context.Context, sessionID string) ([]models.SessionReading, error)
}

// Store is the full persistent session store.
type Store interface {
	InventoryStore
	ReadingSessionStore
	Close(ctx context.Context) error
}
