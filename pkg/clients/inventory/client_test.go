package inventory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fieldinventory/internal/client/offline"
	"github.com/mamadbah2/fieldinventory/internal/config"
	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/internal/repository/memory"
	"github.com/mamadbah2/fieldinventory/internal/server/handlers"
	"github.com/mamadbah2/fieldinventory/internal/server/router"
	invsvc "github.com/mamadbah2/fieldinventory/internal/service/inventory"
	"github.com/mamadbah2/fieldinventory/internal/service/readingsession"
)

type stubRegistry struct {
	pushErr error
}

func (s *stubRegistry) FetchAssets(ctx context.Context, limit int) ([]models.RegistryAsset, error) {
	return []models.RegistryAsset{
		{AssetCode: "PAT-001", Description: "Desk"},
		{AssetCode: "PAT-002", Description: "Chair", Barcode: "7891"},
		{AssetCode: "PAT-003", Description: "Lamp"},
	}, nil
}

func (s *stubRegistry) SubmitResults(ctx context.Context, upload models.ResultUpload) (*models.TransmissionReceipt, error) {
	if s.pushErr != nil {
		return nil, s.pushErr
	}
	return &models.TransmissionReceipt{Success: true, TransmissionNumber: "TX-1", InventoryID: upload.SessionCode, ItemsSent: len(upload.Items)}, nil
}

type switchableNetwork struct {
	down atomic.Bool
}

func (n *switchableNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	if n.down.Load() {
		return nil, errors.New("network is unreachable")
	}
	return http.DefaultTransport.RoundTrip(req)
}

type fixture struct {
	client  *Client
	network *switchableNetwork
}

func newFixture(t *testing.T, reg *stubRegistry, user string) *fixture {
	t.Helper()
	store := memory.NewStore()
	inv := invsvc.NewService(store, reg, nil, nil)
	rs := readingsession.NewService(store, inv, readingsession.Options{}, nil)
	srv := httptest.NewServer(router.New(
		handlers.NewSessionHandler(inv, nil),
		handlers.NewReadingSessionHandler(rs, "inventario", nil),
		nil,
	))
	t.Cleanup(srv.Close)

	network := &switchableNetwork{}
	tr, err := offline.NewTransport(offline.Options{Base: network})
	require.NoError(t, err)

	client, err := NewClient(config.ClientConfig{APIBaseURL: srv.URL, UserID: user}, tr, nil)
	require.NoError(t, err)
	return &fixture{client: client, network: network}
}

func startedSession(t *testing.T, c *Client, code string) *models.InventorySession {
	t.Helper()
	ctx := context.Background()
	session, err := c.CreateSession(ctx, models.CreateSessionRequest{Code: code, Name: "Inventory " + code})
	require.NoError(t, err)
	batch, err := c.SyncExpected(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 3, batch.Statistics.Inserted)
	_, err = c.Transition(ctx, session.ID, models.OpStart)
	require.NoError(t, err)
	return session
}

func TestStatisticsServedFromCacheWhenOffline(t *testing.T) {
	f := newFixture(t, &stubRegistry{}, "alice")
	ctx := context.Background()
	session := startedSession(t, f.client, "SES-001")

	_, err := f.client.RegisterReading(ctx, session.ID, models.RegisterReadingRequest{Identifier: "7891"})
	require.NoError(t, err)

	stats, origin, err := f.client.Statistics(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, origin.FromCache)
	assert.InDelta(t, 33.3, stats.CompletionPercentage, 0.001)

	f.network.down.Store(true)

	cached, origin, err := f.client.Statistics(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, origin.FromCache)
	assert.Equal(t, stats, cached)
	assert.False(t, f.client.Online())

	_, _, err = f.client.ListExpected(ctx, session.ID, models.ExpectedAssetFilter{Search: "desk"})
	assert.ErrorIs(t, err, models.ErrOfflineUnavailable)

	_, err = f.client.Transition(ctx, session.ID, models.OpPause)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrOfflineUnavailable)
}

func TestCacheSessionForOffline(t *testing.T) {
	f := newFixture(t, &stubRegistry{}, "alice")
	ctx := context.Background()
	session := startedSession(t, f.client, "SES-002")

	snapshot, err := f.client.CacheSessionForOffline(ctx, session.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.ExpectedAssets)

	f.network.down.Store(true)

	got, origin, err := f.client.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, origin.FromCache)
	assert.Equal(t, session.ID, got.ID)

	page, origin, err := f.client.ListExpected(ctx, session.ID, models.ExpectedAssetFilter{})
	require.NoError(t, err)
	assert.True(t, origin.FromCache)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, int64(3), page.Total)

	_, origin, err = f.client.Statistics(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, origin.FromCache)
}

func TestErrorsMapToSentinels(t *testing.T) {
	reg := &stubRegistry{pushErr: &models.SyncFailure{Reason: "registry down", RawDetail: "timeout"}}
	f := newFixture(t, reg, "alice")
	ctx := context.Background()
	session := startedSession(t, f.client, "SES-003")

	_, _, err := f.client.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.client.RegisterReading(ctx, session.ID, models.RegisterReadingRequest{Identifier: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.client.Transition(ctx, session.ID, models.OpComplete)
	require.NoError(t, err)
	_, err = f.client.Transition(ctx, session.ID, models.OpStart)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.client.SyncExpected(ctx, session.ID, 0)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.client.UploadResults(ctx, session.ID, false)
	var syncErr *models.SyncFailure
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "registry down", syncErr.Reason)
	assert.Equal(t, "timeout", syncErr.RawDetail)
}

func TestReadingSessionLifecycle(t *testing.T) {
	f := newFixture(t, &stubRegistry{}, "alice")
	ctx := context.Background()

	view, err := f.client.CreateReadingSession(ctx, models.CreateReadingSessionRequest{ReadingType: models.ReadingTypeBarcode, TimeoutSeconds: 120})
	require.NoError(t, err)
	assert.Equal(t, models.DeviceActive, view.Status)
	assert.Equal(t, "inventario://reading?type=BARCODE&session_id="+view.ID, view.DeepLink)
	assert.True(t, view.CreatedAt.Add(2*time.Minute).Equal(view.ExpiresAt))

	_, err = f.client.CreateReadingSession(ctx, models.CreateReadingSessionRequest{ReadingType: models.ReadingTypeRFID})
	assert.ErrorIs(t, err, models.ErrSessionConflict)

	_, err = f.client.RecordDeviceReading(ctx, "7891")
	require.NoError(t, err)

	snapshot, err := f.client.SessionReadings(ctx, view.ID)
	require.NoError(t, err)
	assert.Len(t, snapshot.Readings, 1)

	active, err := f.client.ActiveReadingSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, view.ID, active.ID)

	done, err := f.client.CancelReadingSession(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceCancelled, done.Status)

	_, err = f.client.CompleteReadingSession(ctx, view.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.client.ActiveReadingSession(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
