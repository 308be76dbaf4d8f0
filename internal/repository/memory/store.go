// Package memory is an in-process Store used by tests and by local runs
// with STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/internal/repository"
)

// Store keeps all entities in maps guarded by a single mutex.
type Store struct {
	mu              sync.RWMutex
	sessions        map[string]models.InventorySession
	assets          map[string]models.ExpectedAsset
	readings        map[string]models.Reading
	readingSessions map[string]models.DeviceReadingSession
	sessionReadings map[string][]models.SessionReading
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions:        make(map[string]models.InventorySession),
		assets:          make(map[string]models.ExpectedAsset),
		readings:        make(map[string]models.Reading),
		readingSessions: make(map[string]models.DeviceReadingSession),
		sessionReadings: make(map[string][]models.SessionReading),
	}
}

func (s *Store) CreateSession(ctx context.Context, session models.InventorySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Code == session.Code {
			return models.ErrSessionConflict
		}
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.InventorySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &session, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]models.InventorySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.InventorySession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	if session.Status != from {
		return repository.ErrStaleStatus
	}
	session.Status = to
	session.UpdatedAt = at
	s.sessions[id] = session
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return models.ErrNotFound
	}
	for _, r := range s.readings {
		if r.SessionID == id {
			return models.ErrSessionHasReadings
		}
	}
	delete(s.sessions, id)
	for assetID, a := range s.assets {
		if a.SessionID == id {
			delete(s.assets, assetID)
		}
	}
	return nil
}

func (s *Store) UpsertExpectedAsset(ctx context.Context, asset models.ExpectedAsset) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset.MatchKeys = asset.Keys()
	for id, existing := range s.assets {
		if existing.SessionID == asset.SessionID && existing.AssetCode == asset.AssetCode {
			asset.ID = id
			asset.Verified = existing.Verified
			asset.CreatedAt = existing.CreatedAt
			s.assets[id] = asset
			return false, nil
		}
	}
	s.assets[asset.ID] = asset
	return true, nil
}

func (s *Store) sessionAssets(sessionID string) []models.ExpectedAsset {
	out := make([]models.ExpectedAsset, 0)
	for _, a := range s.assets {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetCode < out[j].AssetCode })
	return out
}

func (s *Store) ListExpectedAssets(ctx context.Context, sessionID string, filter models.ExpectedAssetFilter) ([]models.ExpectedAsset, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]models.ExpectedAsset, 0)
	for _, a := range s.sessionAssets(sessionID) {
		if filter.Verified != nil && a.Verified != *filter.Verified {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.AssetCode), search) &&
			!strings.Contains(strings.ToLower(a.Description), search) {
			continue
		}
		matched = append(matched, a)
	}

	total := int64(len(matched))
	if filter.Skip >= len(matched) {
		return []models.ExpectedAsset{}, total, nil
	}
	matched = matched[filter.Skip:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *Store) AllExpectedAssets(ctx context.Context, sessionID string) ([]models.ExpectedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionAssets(sessionID), nil
}

func (s *Store) FindExpectedAsset(ctx context.Context, sessionID, identifier string) (*models.ExpectedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.sessionAssets(sessionID) {
		if a.Matches(identifier) {
			return &a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) MarkAssetVerified(ctx context.Context, assetID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[assetID]
	if !ok {
		return models.ErrNotFound
	}
	a.Verified = true
	a.UpdatedAt = at
	s.assets[assetID] = a
	return nil
}

func (s *Store) InsertReading(ctx context.Context, reading models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.readings {
		if r.SessionID != reading.SessionID {
			continue
		}
		if r.Identifier == reading.Identifier || sameAsset(r.ExpectedAssetID, reading.ExpectedAssetID) {
			return models.ErrSessionConflict
		}
	}
	s.readings[reading.ID] = reading
	return nil
}

func (s *Store) FindReading(ctx context.Context, sessionID, identifier string) (*models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.readings {
		if r.SessionID == sessionID && r.Identifier == identifier {
			return &r, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) FindAssetReading(ctx context.Context, sessionID, assetID string) (*models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.readings {
		if r.SessionID == sessionID && r.ExpectedAssetID != nil && *r.ExpectedAssetID == assetID {
			return &r, nil
		}
	}
	return nil, models.ErrNotFound
}

func sameAsset(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (s *Store) ListReadings(ctx context.Context, sessionID string) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Reading, 0)
	for _, r := range s.readings {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadAt.Before(out[j].ReadAt) })
	return out, nil
}

func (s *Store) Counts(ctx context.Context, sessionID string) (models.SessionCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c models.SessionCounts
	for _, a := range s.assets {
		if a.SessionID != sessionID {
			continue
		}
		c.Expected++
		if a.IsWrittenOff {
			c.WrittenOff++
		}
	}
	for _, r := range s.readings {
		if r.SessionID != sessionID {
			continue
		}
		switch r.Category {
		case models.ReadingFound:
			c.Found++
		case models.ReadingUnregistered:
			c.Unregistered++
		}
	}
	return c, nil
}

func (s *Store) InsertReadingSession(ctx context.Context, session models.DeviceReadingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Status == models.DeviceActive {
		for _, existing := range s.readingSessions {
			if existing.UserID == session.UserID && existing.Status == models.DeviceActive {
				return models.ErrSessionConflict
			}
		}
	}
	s.readingSessions[session.ID] = session
	return nil
}

func (s *Store) GetReadingSession(ctx context.Context, id string) (*models.DeviceReadingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.readingSessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &session, nil
}

func (s *Store) FindActiveReadingSession(ctx context.Context, userID string) (*models.DeviceReadingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.readingSessions {
		if session.UserID == userID && session.Status == models.DeviceActive {
			return &session, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) ListActiveReadingSessions(ctx context.Context) ([]models.DeviceReadingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DeviceReadingSession, 0)
	for _, session := range s.readingSessions {
		if session.Status == models.DeviceActive {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *Store) UpdateReadingSessionStatus(ctx context.Context, id string, from, to models.DeviceSessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.readingSessions[id]
	if !ok {
		return models.ErrNotFound
	}
	if session.Status != from {
		return repository.ErrStaleStatus
	}
	session.Status = to
	session.UpdatedAt = at
	s.readingSessions[id] = session
	return nil
}

func (s *Store) InsertSessionReading(ctx context.Context, reading models.SessionReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.readingSessions[reading.SessionID]; !ok {
		return models.ErrNotFound
	}
	s.sessionReadings[reading.SessionID] = append(s.sessionReadings[reading.SessionID], reading)
	return nil
}

func (s *Store) ListSessionReadings(ctx context.Context, sessionID string) ([]models.SessionReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	readings := s.sessionReadings[sessionID]
	out := make([]models.SessionReading, len(readings))
	copy(out, readings)
	return out, nil
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error { return nil }
