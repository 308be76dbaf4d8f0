// Package inventory is a resty client of the field inventory HTTP API.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/client/offline"
	"github.com/mamadbah2/fieldinventory/internal/config"
	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

const apiPrefix = "/api/v1"

// Origin tells whether a read was answered by the network or replayed from
// the offline cache.
type Origin struct {
	FromCache bool
	CachedAt  time.Time
}

// APIError is a non-2xx answer of the API. It unwraps to the matching
// sentinel of the models package.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return models.SentinelForCode(e.Code) }

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Reason    string `json:"reason"`
	RawDetail string `json:"raw_detail"`
}

type listBody[T any] struct {
	Items []T `json:"items"`
}

// Client talks to the inventory API on behalf of one field operator.
type Client struct {
	httpClient *resty.Client
	offline    *offline.Transport
	basePath   string
	logger     *zap.Logger
}

// NewClient builds an API client. When tr is non-nil every request goes
// through it and the offline cache operations become available.
func NewClient(cfg config.ClientConfig, tr *offline.Transport, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.APIBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}

	restyClient := resty.New()
	if tr != nil {
		restyClient.SetTransport(tr)
	}
	restyClient.
		SetBaseURL(base.String()).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	if cfg.UserID != "" {
		restyClient.SetHeader("X-User-ID", cfg.UserID)
	}

	return &Client{
		httpClient: restyClient,
		offline:    tr,
		basePath:   base.Path,
		logger:     logger,
	}, nil
}

// Online reports the connectivity observed on the last request. Without an
// offline transport the client always reports online.
func (c *Client) Online() bool {
	return c.offline == nil || c.offline.Online()
}

func (c *Client) sessionPath(id string, parts ...string) string {
	return apiPrefix + "/sessions/" + url.PathEscape(id) + strings.Join(parts, "")
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, query url.Values) (*resty.Response, error) {
	req := c.httpClient.R().
		SetContext(ctx).
		SetError(&errorBody{})
	if result != nil {
		req.SetResult(result)
	}
	if body != nil {
		req.SetBody(body)
	}
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return resp, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *resty.Response) error {
	body, _ := resp.Error().(*errorBody)
	if body == nil || body.Error == "" {
		body = &errorBody{}
		if err := json.Unmarshal(resp.Body(), body); err != nil || body.Error == "" {
			return &APIError{Status: resp.StatusCode(), Code: models.CodeInternal, Message: resp.String()}
		}
	}
	if body.Error == models.CodeSyncFailure {
		return &models.SyncFailure{Reason: body.Reason, RawDetail: body.RawDetail}
	}
	if body.Error == models.CodeOffline {
		return fmt.Errorf("%s: %w", resp.Request.URL, models.ErrOfflineUnavailable)
	}
	return &APIError{Status: resp.StatusCode(), Code: body.Error, Message: body.Message}
}

func originOf(resp *resty.Response) Origin {
	if resp == nil || resp.Header().Get(offline.HeaderFromCache) != "true" {
		return Origin{}
	}
	cachedAt, _ := time.Parse(time.RFC3339, resp.Header().Get(offline.HeaderCachedAt))
	return Origin{FromCache: true, CachedAt: cachedAt}
}

// CreateSession opens a new inventory session in draft.
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.InventorySession, error) {
	out := new(models.InventorySession)
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/sessions", req, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]models.InventorySession, error) {
	out := new(listBody[models.InventorySession])
	if _, err := c.do(ctx, http.MethodGet, apiPrefix+"/sessions", nil, out, nil); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetSession may be answered from the offline cache.
func (c *Client) GetSession(ctx context.Context, id string) (*models.InventorySession, Origin, error) {
	out := new(models.InventorySession)
	resp, err := c.do(ctx, http.MethodGet, c.sessionPath(id), nil, out, nil)
	if err != nil {
		return nil, Origin{}, err
	}
	return out, originOf(resp), nil
}

// Transition applies a lifecycle operation (start, pause, complete, cancel).
func (c *Client) Transition(ctx context.Context, id string, op models.SessionOp) (*models.InventorySession, error) {
	out := new(models.InventorySession)
	if _, err := c.do(ctx, http.MethodPost, c.sessionPath(id, "/", string(op)), nil, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// ListExpected returns one page of expected assets and may be answered from
// the offline cache.
func (c *Client) ListExpected(ctx context.Context, id string, filter models.ExpectedAssetFilter) (*models.ExpectedAssetPage, Origin, error) {
	query := url.Values{}
	if filter.Skip > 0 {
		query.Set("skip", strconv.Itoa(filter.Skip))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Verified != nil {
		query.Set("verified", strconv.FormatBool(*filter.Verified))
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}

	out := new(models.ExpectedAssetPage)
	resp, err := c.do(ctx, http.MethodGet, c.sessionPath(id, "/expected"), nil, out, query)
	if err != nil {
		return nil, Origin{}, err
	}
	return out, originOf(resp), nil
}

// SyncExpected pulls the expected asset list from the registry.
func (c *Client) SyncExpected(ctx context.Context, id string, limit int) (*models.SyncBatch, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	out := new(models.SyncBatch)
	if _, err := c.do(ctx, http.MethodPost, c.sessionPath(id, "/sync-expected"), nil, out, query); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadResults pushes the reconciliation of a completed session.
func (c *Client) UploadResults(ctx context.Context, id string, includePhotos bool) (*models.TransmissionReceipt, error) {
	query := url.Values{"include_photos": {strconv.FormatBool(includePhotos)}}
	out := new(models.TransmissionReceipt)
	if _, err := c.do(ctx, http.MethodPost, c.sessionPath(id, "/upload-results"), nil, out, query); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterReading records a manual reading. Replaying an identifier already
// registered in the session returns the existing reading.
func (c *Client) RegisterReading(ctx context.Context, id string, req models.RegisterReadingRequest) (*models.Reading, error) {
	out := new(models.Reading)
	if _, err := c.do(ctx, http.MethodPost, c.sessionPath(id, "/readings"), req, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListReadings(ctx context.Context, id string) ([]models.Reading, error) {
	out := new(listBody[models.Reading])
	if _, err := c.do(ctx, http.MethodGet, c.sessionPath(id, "/readings"), nil, out, nil); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Statistics may be answered from the offline cache.
func (c *Client) Statistics(ctx context.Context, id string) (*models.Statistics, Origin, error) {
	out := new(models.Statistics)
	resp, err := c.do(ctx, http.MethodGet, c.sessionPath(id, "/statistics"), nil, out, nil)
	if err != nil {
		return nil, Origin{}, err
	}
	return out, originOf(resp), nil
}

// CreateReadingSession starts a device session for the configured user.
func (c *Client) CreateReadingSession(ctx context.Context, req models.CreateReadingSessionRequest) (*models.DeviceReadingSessionView, error) {
	out := new(models.DeviceReadingSessionView)
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/reading-sessions", req, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ActiveReadingSession(ctx context.Context) (*models.DeviceReadingSessionView, error) {
	out := new(models.DeviceReadingSessionView)
	if _, err := c.do(ctx, http.MethodGet, apiPrefix+"/reading-sessions/active", nil, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetReadingSession(ctx context.Context, id string) (*models.DeviceReadingSessionView, error) {
	out := new(models.DeviceReadingSessionView)
	if _, err := c.do(ctx, http.MethodGet, apiPrefix+"/reading-sessions/"+url.PathEscape(id), nil, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionReadings returns the full current reading set of a device session.
func (c *Client) SessionReadings(ctx context.Context, id string) (*models.ReadingsSnapshot, error) {
	out := new(models.ReadingsSnapshot)
	if _, err := c.do(ctx, http.MethodGet, apiPrefix+"/reading-sessions/"+url.PathEscape(id)+"/readings", nil, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordDeviceReading attributes a read to the user's active device session.
func (c *Client) RecordDeviceReading(ctx context.Context, identifier string) (*models.SessionReading, error) {
	out := new(models.SessionReading)
	req := models.DeviceReadingRequest{Identifier: identifier}
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/reading-sessions/active/readings", req, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteReadingSession and CancelReadingSession are checked against the
// authoritative status by the server, whatever the local countdown says.
func (c *Client) CompleteReadingSession(ctx context.Context, id string) (*models.DeviceReadingSessionView, error) {
	return c.finishReadingSession(ctx, id, "complete")
}

func (c *Client) CancelReadingSession(ctx context.Context, id string) (*models.DeviceReadingSessionView, error) {
	return c.finishReadingSession(ctx, id, "cancel")
}

func (c *Client) finishReadingSession(ctx context.Context, id, op string) (*models.DeviceReadingSessionView, error) {
	out := new(models.DeviceReadingSessionView)
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/reading-sessions/"+url.PathEscape(id)+"/"+op, nil, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// OfflineSnapshot summarizes what CacheSessionForOffline stored.
type OfflineSnapshot struct {
	Session        models.InventorySession
	ExpectedAssets int
}

// CacheSessionForOffline fetches a session with all its expected assets and
// statistics and stores them in the offline cache under their plain request
// paths, so they can be served later without network.
func (c *Client) CacheSessionForOffline(ctx context.Context, id string, pageSize int) (*OfflineSnapshot, error) {
	if c.offline == nil {
		return nil, errors.New("offline cache is not configured")
	}
	if pageSize <= 0 {
		pageSize = 500
	}

	session, origin, err := c.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if origin.FromCache {
		return nil, fmt.Errorf("cache session %s: %w", id, models.ErrOfflineUnavailable)
	}

	all := make([]models.ExpectedAsset, 0)
	var total int64
	for {
		page, origin, err := c.ListExpected(ctx, id, models.ExpectedAssetFilter{Skip: len(all), Limit: pageSize})
		if err != nil {
			return nil, err
		}
		if origin.FromCache {
			return nil, fmt.Errorf("cache session %s: %w", id, models.ErrOfflineUnavailable)
		}
		all = append(all, page.Items...)
		total = page.Total
		if len(page.Items) == 0 || int64(len(all)) >= total {
			break
		}
	}

	stats, _, err := c.Statistics(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.prime(c.sessionPath(id), session); err != nil {
		return nil, err
	}
	if err := c.prime(c.sessionPath(id, "/expected"), models.ExpectedAssetPage{Items: all, Total: total, Limit: len(all)}); err != nil {
		return nil, err
	}
	if err := c.prime(c.sessionPath(id, "/statistics"), stats); err != nil {
		return nil, err
	}

	c.logger.Info("session cached for offline use",
		zap.String("session_id", id),
		zap.Int("expected_assets", len(all)))
	return &OfflineSnapshot{Session: *session, ExpectedAssets: len(all)}, nil
}

func (c *Client) prime(path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	c.offline.Prime(c.basePath+path, body)
	return nil
}
