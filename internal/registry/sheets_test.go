package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

type fakeSheets struct {
	rows     [][]interface{}
	appended [][]interface{}
	err      error
}

func (f *fakeSheets) AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, rows...)
	return nil
}

func (f *fakeSheets) ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error) {
	return f.rows, f.err
}

func TestSheetsRegistryFetchAssets(t *testing.T) {
	repo := &fakeSheets{rows: [][]interface{}{
		{"asset_code", "description", "rfid", "barcode", "ul", "ua", "category", "written_off"},
		{"PAT-1", "Desk", "E2001", "", "UL1", "UA1", "furniture", "no"},
		{},
		{"PAT-2", "Chair"},
		{"PAT-3", "Old printer", "", "", "", "", "it", "TRUE"},
	}}
	reg := NewSheetsRegistry(repo, "Assets!A:H", "Results!A:G", nil)

	assets, err := reg.FetchAssets(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, "E2001", assets[0].RFIDCode)
	assert.Equal(t, "", assets[1].Category)
	assert.True(t, assets[2].WrittenOff)

	limited, err := reg.FetchAssets(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSheetsRegistrySubmitResults(t *testing.T) {
	repo := &fakeSheets{}
	reg := NewSheetsRegistry(repo, "Assets!A:H", "Results!A:G", nil)
	reg.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	receipt, err := reg.SubmitResults(context.Background(), models.ResultUpload{
		SessionCode: "SES-001",
		Items: []models.ResultItem{
			{AssetCode: "PAT-1", Status: models.ResultFound},
			{AssetCode: "PAT-2", Status: models.ResultNotFound},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.ItemsSent)
	assert.Equal(t, "SES-001", receipt.InventoryID)
	assert.Contains(t, receipt.TransmissionNumber, "TX-20240301120000-")
	assert.Len(t, repo.appended, 2)
}

func TestSheetsRegistryFailure(t *testing.T) {
	reg := NewSheetsRegistry(&fakeSheets{err: errors.New("quota exceeded")}, "A", "B", nil)

	_, err := reg.FetchAssets(context.Background(), 0)
	var failure *models.SyncFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "quota exceeded", failure.RawDetail)
}
