package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// newTestRepository connects to MONGODB_TEST_URI and uses a throwaway database.
func newTestRepository(t *testing.T) *MongoDBRepository {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	repo, err := NewMongoDBRepository(ctx, uri, "fieldinventory_test_"+uuid.NewString()[:8], nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = repo.db.Drop(ctx)
		_ = repo.Close(ctx)
	})
	return repo
}

func draftSession(code string) models.InventorySession {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.InventorySession{ID: uuid.NewString(), Code: code, Name: code, Status: models.SessionDraft, CreatedAt: now, UpdatedAt: now}
}

func TestDeleteSessionRestoresWhenReadingArrives(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	session := draftSession("SES-201")
	require.NoError(t, repo.CreateSession(ctx, session))

	repo.afterSessionRemoved = func(id string) {
		require.NoError(t, repo.InsertReading(ctx, models.Reading{
			ID: uuid.NewString(), SessionID: id, Identifier: "X-1",
			Category: models.ReadingUnregistered, ReadAt: time.Now().UTC(),
		}))
	}

	err := repo.DeleteSession(ctx, session.ID)
	assert.True(t, errors.Is(err, models.ErrSessionHasReadings))

	restored, err := repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Code, restored.Code)
}

func TestDeleteSession(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	session := draftSession("SES-202")
	require.NoError(t, repo.CreateSession(ctx, session))

	require.NoError(t, repo.DeleteSession(ctx, session.ID))
	_, err := repo.GetSession(ctx, session.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	err = repo.DeleteSession(ctx, session.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestOneReadingPerAsset(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	assetID := "asset-1"

	require.NoError(t, repo.InsertReading(ctx, models.Reading{ID: "r1", SessionID: "s1", Identifier: "PAT-001", ExpectedAssetID: &assetID, Category: models.ReadingFound}))
	err := repo.InsertReading(ctx, models.Reading{ID: "r2", SessionID: "s1", Identifier: "E2001", ExpectedAssetID: &assetID, Category: models.ReadingFound})
	assert.True(t, errors.Is(err, models.ErrSessionConflict))

	require.NoError(t, repo.InsertReading(ctx, models.Reading{ID: "r3", SessionID: "s1", Identifier: "X-1", Category: models.ReadingUnregistered}))
	require.NoError(t, repo.InsertReading(ctx, models.Reading{ID: "r4", SessionID: "s1", Identifier: "X-2", Category: models.ReadingUnregistered}))

	found, err := repo.FindAssetReading(ctx, "s1", assetID)
	require.NoError(t, err)
	assert.Equal(t, "r1", found.ID)
}
