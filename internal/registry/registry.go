// Package registry adapts the external asset registry that owns the
// expected-asset snapshot and receives reconciled results.
package registry

import (
	"context"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// Registry is the opaque collaborator behind pull and push synchronization.
// Implementations report failures as *models.SyncFailure.
type Registry interface {
	// FetchAssets returns at most limit assets (all when limit <= 0).
	FetchAssets(ctx context.Context, limit int) ([]models.RegistryAsset, error)
	// SubmitResults transmits the reconciliation of a completed session.
	SubmitResults(ctx context.Context, upload models.ResultUpload) (*models.TransmissionReceipt, error)
}
