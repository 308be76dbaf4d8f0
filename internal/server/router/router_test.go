package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/internal/repository/memory"
	"github.com/mamadbah2/fieldinventory/internal/server/handlers"
	"github.com/mamadbah2/fieldinventory/internal/server/router"
	"github.com/mamadbah2/fieldinventory/internal/service/inventory"
	"github.com/mamadbah2/fieldinventory/internal/service/readingsession"
)

type stubRegistry struct {
	assets  []models.RegistryAsset
	pushErr error
}

func (s *stubRegistry) FetchAssets(ctx context.Context, limit int) ([]models.RegistryAsset, error) {
	return s.assets, nil
}

func (s *stubRegistry) SubmitResults(ctx context.Context, upload models.ResultUpload) (*models.TransmissionReceipt, error) {
	if s.pushErr != nil {
		return nil, s.pushErr
	}
	return &models.TransmissionReceipt{Success: true, TransmissionNumber: "TX-42", InventoryID: upload.SessionCode, ItemsSent: len(upload.Items)}, nil
}

func newEngine(t *testing.T, reg *stubRegistry) *gin.Engine {
	t.Helper()
	store := memory.NewStore()
	inv := inventory.NewService(store, reg, nil, nil)
	rs := readingsession.NewService(store, inv, readingsession.Options{}, nil)
	return router.New(
		handlers.NewSessionHandler(inv, nil),
		handlers.NewReadingSessionHandler(rs, "inventario", nil),
		nil,
	)
}

func do(t *testing.T, r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(handlers.HeaderUserID, user)
	}
	if user == "root" {
		req.Header.Set(handlers.HeaderUserRole, "admin")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthz(t *testing.T) {
	r := newEngine(t, &stubRegistry{})
	w := do(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInventoryFlow(t *testing.T) {
	reg := &stubRegistry{assets: []models.RegistryAsset{
		{AssetCode: "PAT-001", Description: "Desk"},
		{AssetCode: "PAT-002", Description: "Chair"},
		{AssetCode: "PAT-003", Description: "Lamp"},
	}}
	r := newEngine(t, reg)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "alice", map[string]string{"code": "SES-001", "name": "HQ"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	session := decode[models.InventorySession](t, w)
	base := "/api/v1/sessions/" + session.ID

	w = do(t, r, http.MethodPost, base+"/sync-expected", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	batch := decode[models.SyncBatch](t, w)
	assert.Equal(t, 3, batch.Statistics.Inserted)

	w = do(t, r, http.MethodPost, base+"/readings", "alice", map[string]string{"identifier": "PAT-001"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.CodeInvalidTransition, decode[map[string]any](t, w)["error"])

	w = do(t, r, http.MethodPost, base+"/start", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, base+"/readings", "alice", map[string]string{"identifier": "pat-001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, r, http.MethodPost, base+"/readings", "alice", map[string]string{"identifier": "PAT-001"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, base+"/statistics", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.Statistics](t, w)
	assert.Equal(t, int64(3), stats.TotalExpected)
	assert.Equal(t, int64(1), stats.TotalFound)
	assert.Equal(t, int64(2), stats.TotalNotFound)
	assert.InDelta(t, 33.3, stats.CompletionPercentage, 0.001)

	w = do(t, r, http.MethodGet, base+"/expected?verified=true", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.ExpectedAssetPage](t, w)
	assert.Equal(t, int64(1), page.Total)

	w = do(t, r, http.MethodGet, base+"/expected?limit=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, base+"/upload-results", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, base+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, base+"/sync-expected", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, base+"/upload-results?include_photos=true", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode[models.TransmissionReceipt](t, w)
	assert.Equal(t, "TX-42", receipt.TransmissionNumber)
	assert.Equal(t, 3, receipt.ItemsSent)
}

func TestUploadFailureIsBadGateway(t *testing.T) {
	reg := &stubRegistry{pushErr: &models.SyncFailure{Reason: "registry unavailable", RawDetail: "503"}}
	r := newEngine(t, reg)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "alice", map[string]string{"code": "SES-9", "name": "Annex"})
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/api/v1/sessions/" + decode[models.InventorySession](t, w).ID

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/start", "alice", nil).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/complete", "alice", nil).Code)

	w = do(t, r, http.MethodPost, base+"/upload-results", "alice", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, models.CodeSyncFailure, body["error"])
	assert.Equal(t, "registry unavailable", body["reason"])

	w = do(t, r, http.MethodGet, base, "alice", nil)
	assert.Equal(t, models.SessionCompleted, decode[models.InventorySession](t, w).Status)
}

func TestDeleteRequiresAdmin(t *testing.T) {
	r := newEngine(t, &stubRegistry{})

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "alice", map[string]string{"code": "SES-2", "name": "Depot"})
	require.Equal(t, http.StatusCreated, w.Code)
	path := "/api/v1/sessions/" + decode[models.InventorySession](t, w).ID

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodDelete, path, "alice", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, path, "root", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, path, "alice", nil).Code)
}

func TestCreateSessionRejectsMissingFields(t *testing.T) {
	r := newEngine(t, &stubRegistry{})
	w := do(t, r, http.MethodPost, "/api/v1/sessions", "alice", map[string]string{"name": "no code"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.CodeValidation, decode[map[string]any](t, w)["error"])
}

func TestReadingSessionFlow(t *testing.T) {
	r := newEngine(t, &stubRegistry{assets: []models.RegistryAsset{{AssetCode: "PAT-001", RFIDCode: "E2001"}}})

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "alice", map[string]string{"code": "SES-3", "name": "Store"})
	require.Equal(t, http.StatusCreated, w.Code)
	invID := decode[models.InventorySession](t, w).ID
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/sessions/"+invID+"/sync-expected", "alice", nil).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/sessions/"+invID+"/start", "alice", nil).Code)

	w = do(t, r, http.MethodPost, "/api/v1/reading-sessions", "alice", map[string]any{"reading_type": "RFID", "project_id": invID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	id := created["id"].(string)
	assert.Equal(t, "inventario://reading?type=RFID&session_id="+id, created["deep_link"])
	assert.Equal(t, "ACTIVE", created["status"])

	w = do(t, r, http.MethodPost, "/api/v1/reading-sessions", "alice", map[string]any{"reading_type": "BARCODE"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.CodeSessionConflict, decode[map[string]any](t, w)["error"])

	w = do(t, r, http.MethodGet, "/api/v1/reading-sessions/active", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode[map[string]any](t, w)["id"])

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/reading-sessions/active", "bob", nil).Code)

	w = do(t, r, http.MethodPost, "/api/v1/reading-sessions/active/readings", "alice", map[string]string{"identifier": "e2001"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/reading-sessions/"+id+"/readings", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := decode[models.ReadingsSnapshot](t, w)
	require.Len(t, snapshot.Readings, 1)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/api/v1/reading-sessions/"+id+"/complete", "bob", nil).Code)

	w = do(t, r, http.MethodPost, "/api/v1/reading-sessions/"+id+"/complete", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", decode[map[string]any](t, w)["status"])

	w = do(t, r, http.MethodGet, "/api/v1/sessions/"+invID+"/statistics", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[models.Statistics](t, w).TotalFound)

	w = do(t, r, http.MethodPost, "/api/v1/reading-sessions/"+id+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
