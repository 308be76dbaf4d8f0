package registry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/fieldinventory/internal/config"
	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// APIClient is a resty-backed client of an HTTP asset registry.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a registry API client using the provided configuration values.
func NewClient(cfg config.RegistryConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	return &APIClient{httpClient: restyClient}
}

type assetsResponse struct {
	Items []models.RegistryAsset `json:"items"`
}

// apiError represents a registry error payload.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FetchAssets lists registry assets.
func (c *APIClient) FetchAssets(ctx context.Context, limit int) ([]models.RegistryAsset, error) {
	result := new(assetsResponse)
	apiErr := new(apiError)

	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	resp, err := req.Get("/assets")
	if err != nil {
		return nil, &models.SyncFailure{Reason: "registry unreachable", RawDetail: err.Error()}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, registryFailure("registry rejected asset listing", resp, apiErr)
	}

	return result.Items, nil
}

// SubmitResults posts the reconciliation outcome and returns the receipt.
func (c *APIClient) SubmitResults(ctx context.Context, upload models.ResultUpload) (*models.TransmissionReceipt, error) {
	result := new(models.TransmissionReceipt)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(upload).
		SetResult(result).
		SetError(apiErr).
		Post("/inventories/results")
	if err != nil {
		return nil, &models.SyncFailure{Reason: "registry unreachable", RawDetail: err.Error()}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, registryFailure("registry rejected results", resp, apiErr)
	}

	if result.ItemsSent == 0 {
		result.ItemsSent = len(upload.Items)
	}
	if result.InventoryID == "" {
		result.InventoryID = upload.SessionCode
	}
	result.Success = true
	return result, nil
}

func registryFailure(reason string, resp *resty.Response, apiErr *apiError) *models.SyncFailure {
	detail := apiErr.Message
	if detail == "" {
		detail = apiErr.Error
	}
	if detail == "" {
		detail = resp.String()
	}
	return &models.SyncFailure{
		Reason:    fmt.Sprintf("%s (status %d)", reason, resp.StatusCode()),
		RawDetail: detail,
	}
}
