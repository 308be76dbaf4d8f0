package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
	"github.com/mamadbah2/fieldinventory/internal/repository/sheets"
)

const transmissionLayout = "20060102150405"

// SheetsRegistry uses a spreadsheet as the asset registry: one tab lists the
// assets, another receives the uploaded results.
//
// Assets columns: asset_code, description, rfid_code, barcode, ul, ua,
// category, written_off.
type SheetsRegistry struct {
	repo         sheets.Repository
	assetsRange  string
	resultsRange string
	logger       *zap.Logger
	now          func() time.Time
}

var _ Registry = (*SheetsRegistry)(nil)

// NewSheetsRegistry wires a spreadsheet-backed registry.
func NewSheetsRegistry(repo sheets.Repository, assetsRange, resultsRange string, logger *zap.Logger) *SheetsRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetsRegistry{
		repo:         repo,
		assetsRange:  assetsRange,
		resultsRange: resultsRange,
		logger:       logger,
		now:          time.Now,
	}
}

// FetchAssets reads the assets tab, skipping a header row if present.
func (r *SheetsRegistry) FetchAssets(ctx context.Context, limit int) ([]models.RegistryAsset, error) {
	rows, err := r.repo.ReadRange(ctx, r.assetsRange)
	if err != nil {
		return nil, &models.SyncFailure{Reason: "registry spreadsheet unavailable", RawDetail: err.Error()}
	}

	assets := make([]models.RegistryAsset, 0, len(rows))
	for i, row := range rows {
		if i == 0 && strings.EqualFold(cell(row, 0), "asset_code") {
			continue
		}
		if len(row) == 0 {
			continue
		}
		assets = append(assets, models.RegistryAsset{
			AssetCode:   cell(row, 0),
			Description: cell(row, 1),
			RFIDCode:    cell(row, 2),
			Barcode:     cell(row, 3),
			UL:          cell(row, 4),
			UA:          cell(row, 5),
			Category:    cell(row, 6),
			WrittenOff:  parseFlag(cell(row, 7)),
		})
		if limit > 0 && len(assets) >= limit {
			break
		}
	}

	r.logger.Debug("registry assets read", zap.Int("rows", len(rows)), zap.Int("assets", len(assets)))
	return assets, nil
}

// SubmitResults appends one row per result item to the results tab.
func (r *SheetsRegistry) SubmitResults(ctx context.Context, upload models.ResultUpload) (*models.TransmissionReceipt, error) {
	now := r.now().UTC()
	number := fmt.Sprintf("TX-%s-%s", now.Format(transmissionLayout), uuid.NewString()[:8])

	rows := make([][]interface{}, 0, len(upload.Items))
	for _, item := range upload.Items {
		readAt := ""
		if item.ReadAt != nil {
			readAt = item.ReadAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []interface{}{
			number, upload.SessionCode, string(item.Status), item.AssetCode, item.Identifier, readAt, item.Observations,
		})
	}

	if err := r.repo.AppendRows(ctx, r.resultsRange, rows); err != nil {
		return nil, &models.SyncFailure{Reason: "registry spreadsheet rejected results", RawDetail: err.Error()}
	}

	return &models.TransmissionReceipt{
		Success:            true,
		Message:            fmt.Sprintf("%d items written to %s", len(rows), r.resultsRange),
		TransmissionNumber: number,
		InventoryID:        upload.SessionCode,
		ItemsSent:          len(rows),
	}, nil
}

func cell(row []interface{}, idx int) string {
	if idx >= len(row) || row[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

func parseFlag(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y", "sim", "x":
		return true
	}
	return false
}
