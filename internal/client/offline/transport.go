// Package offline provides a network-first HTTP transport that falls back to
// the last known good response of read endpoints when the network is down,
// and publishes a signal when connectivity comes back.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	// HeaderFromCache marks responses served from the offline cache.
	HeaderFromCache = "X-From-Cache"
	// HeaderCachedAt carries the time the cached response was stored.
	HeaderCachedAt = "X-Cached-At"
	// HeaderOffline marks the synthetic response returned when the network is
	// down and nothing is cached.
	HeaderOffline = "X-Offline"

	defaultCacheSize = 256
)

// OfflineBody is the body of the synthetic offline response.
var OfflineBody = []byte(`{"error":"offline"}`)

// DefaultAllowList matches session detail, expected asset listing and
// statistics paths.
var DefaultAllowList = []*regexp.Regexp{
	regexp.MustCompile(`/sessions/[^/]+$`),
	regexp.MustCompile(`/sessions/[^/]+/expected$`),
	regexp.MustCompile(`/sessions/[^/]+/statistics$`),
}

type cachedResponse struct {
	status   int
	header   http.Header
	body     []byte
	storedAt time.Time
}

// Options configures a Transport.
type Options struct {
	// Base performs the actual round trips; http.DefaultTransport when nil.
	Base http.RoundTripper
	// CacheSize bounds the number of cached responses.
	CacheSize int
	// AllowList selects the request paths eligible for offline fallback;
	// DefaultAllowList when nil.
	AllowList []*regexp.Regexp
	Logger    *zap.Logger
}

// Transport is an http.RoundTripper implementing network-first caching for
// an allow-list of GET endpoints.
type Transport struct {
	base   http.RoundTripper
	cache  *lru.Cache[string, *cachedResponse]
	allow  []*regexp.Regexp
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	online      bool
	subscribers []chan struct{}
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport builds an offline-aware transport.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.AllowList == nil {
		opts.AllowList = DefaultAllowList
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, *cachedResponse](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create offline cache: %w", err)
	}

	return &Transport{
		base:   opts.Base,
		cache:  cache,
		allow:  opts.AllowList,
		logger: opts.Logger,
		now:    time.Now,
		online: true,
	}, nil
}

// RoundTrip tries the network first. Successful responses of allow-listed
// GET requests are cached; on network failure they are replayed from the
// cache, or answered with a synthetic 503 when nothing is cached. Other
// requests get no fallback.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	eligible := t.eligible(req)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if canceled(req, err) {
			return nil, err
		}
		t.setOnline(false)
		if !eligible {
			return nil, err
		}

		key := cacheKey(req)
		if entry, ok := t.cache.Get(key); ok {
			t.logger.Debug("serving cached response", zap.String("key", key), zap.Time("stored_at", entry.storedAt))
			return entry.response(req), nil
		}
		t.logger.Warn("offline and no cached response", zap.String("key", key), zap.Error(err))
		return offlineResponse(req), nil
	}

	t.setOnline(true)
	if !eligible || resp.StatusCode != http.StatusOK {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	t.store(cacheKey(req), resp.StatusCode, resp.Header, body)
	return resp, nil
}

// canceled reports whether the round trip ended because the caller gave up.
// Timeouts, including the deadline http.Client puts on the request context,
// count as network failures.
func canceled(req *http.Request, err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(req.Context().Err(), context.Canceled)
}

// Prime stores body as the cached response of a GET on requestURI (path and
// query), as if it had been fetched.
func (t *Transport) Prime(requestURI string, body []byte) {
	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=utf-8")
	t.store(requestURI, http.StatusOK, header, body)
}

// Cached reports whether a response is cached for requestURI.
func (t *Transport) Cached(requestURI string) bool {
	return t.cache.Contains(requestURI)
}

// Online reports the connectivity observed on the last round trip.
func (t *Transport) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

// Subscribe returns a channel that receives a value each time connectivity
// is restored. Signals are coalesced for slow readers.
func (t *Transport) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	t.subscribers = append(t.subscribers, ch)
	t.mu.Unlock()
	return ch
}

// Monitor probes healthURL every interval while offline so that a
// reconnect is noticed even when nothing else is being fetched. It returns
// when ctx is done.
func (t *Transport) Monitor(ctx context.Context, healthURL string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.Online() {
				continue
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
			if err != nil {
				t.logger.Error("invalid health url", zap.String("url", healthURL), zap.Error(err))
				return
			}
			if resp, err := t.RoundTrip(req); err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}
}

func (t *Transport) setOnline(online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.online == online {
		return
	}
	t.online = online
	if !online {
		t.logger.Warn("connectivity lost")
		return
	}

	t.logger.Info("connectivity restored", zap.Int("subscribers", len(t.subscribers)))
	for _, ch := range t.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (t *Transport) eligible(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	for _, re := range t.allow {
		if re.MatchString(req.URL.Path) {
			return true
		}
	}
	return false
}

func (t *Transport) store(key string, status int, header http.Header, body []byte) {
	t.cache.Add(key, &cachedResponse{
		status:   status,
		header:   header.Clone(),
		body:     body,
		storedAt: t.now().UTC(),
	})
}

func cacheKey(req *http.Request) string {
	return req.URL.RequestURI()
}

func (c *cachedResponse) response(req *http.Request) *http.Response {
	header := c.header.Clone()
	header.Set(HeaderFromCache, "true")
	header.Set(HeaderCachedAt, c.storedAt.Format(time.RFC3339))
	return &http.Response{
		Status:        strconv.Itoa(c.status) + " " + http.StatusText(c.status),
		StatusCode:    c.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(c.body)),
		ContentLength: int64(len(c.body)),
		Request:       req,
	}
}

func offlineResponse(req *http.Request) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set(HeaderOffline, "true")
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(OfflineBody)),
		ContentLength: int64(len(OfflineBody)),
		Request:       req,
	}
}
