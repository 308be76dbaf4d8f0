package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fieldinventory/internal/config"
	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

func TestFetchAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []models.RegistryAsset{{AssetCode: "PAT-1"}, {AssetCode: "PAT-2"}},
		})
	}))
	defer srv.Close()

	client := NewClient(config.RegistryConfig{BaseURL: srv.URL, Token: "secret"})
	assets, err := client.FetchAssets(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestSubmitResultsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid","message":"inventory closed"}`))
	}))
	defer srv.Close()

	client := NewClient(config.RegistryConfig{BaseURL: srv.URL})
	_, err := client.SubmitResults(context.Background(), models.ResultUpload{SessionCode: "SES-1"})

	var failure *models.SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "inventory closed", failure.RawDetail)
	assert.Contains(t, failure.Reason, "422")
}

func TestSubmitResultsReceipt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var upload models.ResultUpload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&upload))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.TransmissionReceipt{TransmissionNumber: "T-9", ItemsSent: len(upload.Items)})
	}))
	defer srv.Close()

	client := NewClient(config.RegistryConfig{BaseURL: srv.URL})
	receipt, err := client.SubmitResults(context.Background(), models.ResultUpload{
		SessionCode: "SES-1",
		Items:       []models.ResultItem{{AssetCode: "A"}, {AssetCode: "B"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "T-9", receipt.TransmissionNumber)
	assert.Equal(t, "SES-1", receipt.InventoryID)
	assert.Equal(t, 2, receipt.ItemsSent)
	assert.True(t, receipt.Success)
}
