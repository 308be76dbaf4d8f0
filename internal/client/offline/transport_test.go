package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyNetwork struct {
	down  atomic.Bool
	calls atomic.Int32
	body  string
	code  int
}

func (n *flakyNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	if n.down.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	code := n.code
	if code == 0 {
		code = http.StatusOK
	}
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(n.body)),
		Request:    req,
	}, nil
}

func newTestTransport(t *testing.T, net *flakyNetwork) *Transport {
	t.Helper()
	tr, err := NewTransport(Options{Base: net, CacheSize: 8})
	require.NoError(t, err)
	return tr
}

func get(t *testing.T, tr http.RoundTripper, url string) (*http.Response, string, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body), nil
}

func TestServesCachedStatisticsWhenOffline(t *testing.T) {
	net := &flakyNetwork{body: `{"total_expected":3}`}
	tr := newTestTransport(t, net)
	url := "http://api/api/v1/sessions/s1/statistics"

	resp, body, err := get(t, tr, url)
	require.NoError(t, err)
	assert.Equal(t, `{"total_expected":3}`, body)
	assert.Empty(t, resp.Header.Get(HeaderFromCache))

	net.down.Store(true)
	resp, body, err = get(t, tr, url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"total_expected":3}`, body)
	assert.Equal(t, "true", resp.Header.Get(HeaderFromCache))
	assert.NotEmpty(t, resp.Header.Get(HeaderCachedAt))
	assert.False(t, tr.Online())
}

func TestSyntheticOfflineResponse(t *testing.T) {
	net := &flakyNetwork{}
	net.down.Store(true)
	tr := newTestTransport(t, net)

	resp, body, err := get(t, tr, "http://api/api/v1/sessions/s1/expected?skip=0&limit=50")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"error":"offline"}`, body)
	assert.Equal(t, "true", resp.Header.Get(HeaderOffline))
}

func TestCacheIsKeyedByQuery(t *testing.T) {
	net := &flakyNetwork{body: `{"items":[]}`}
	tr := newTestTransport(t, net)

	_, _, err := get(t, tr, "http://api/api/v1/sessions/s1/expected?skip=0")
	require.NoError(t, err)

	net.down.Store(true)
	resp, _, err := get(t, tr, "http://api/api/v1/sessions/s1/expected?skip=100")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _, err = get(t, tr, "http://api/api/v1/sessions/s1/expected?skip=0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNoFallbackOutsideAllowList(t *testing.T) {
	net := &flakyNetwork{body: `{}`}
	tr := newTestTransport(t, net)

	_, _, err := get(t, tr, "http://api/api/v1/sessions/s1/readings")
	require.NoError(t, err)

	net.down.Store(true)
	_, _, err = get(t, tr, "http://api/api/v1/sessions/s1/readings")
	assert.Error(t, err)

	req, err := http.NewRequest(http.MethodPost, "http://api/api/v1/sessions/s1/statistics", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	assert.Error(t, err)
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	net := &flakyNetwork{body: `{"error":"not_found"}`, code: http.StatusNotFound}
	tr := newTestTransport(t, net)

	_, _, err := get(t, tr, "http://api/api/v1/sessions/missing")
	require.NoError(t, err)
	assert.False(t, tr.Cached("/api/v1/sessions/missing"))
}

func TestPrimeCachesAheadOfTime(t *testing.T) {
	net := &flakyNetwork{}
	net.down.Store(true)
	tr := newTestTransport(t, net)

	tr.Prime("/api/v1/sessions/s1", []byte(`{"id":"s1"}`))
	assert.True(t, tr.Cached("/api/v1/sessions/s1"))

	resp, body, err := get(t, tr, "http://api/api/v1/sessions/s1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"s1"}`, body)
	assert.Equal(t, "true", resp.Header.Get(HeaderFromCache))
}

func TestReconnectSignal(t *testing.T) {
	net := &flakyNetwork{body: `{}`}
	tr := newTestTransport(t, net)
	signal := tr.Subscribe()

	_, _, err := get(t, tr, "http://api/healthz")
	require.NoError(t, err)
	select {
	case <-signal:
		t.Fatal("no signal expected while continuously online")
	default:
	}

	net.down.Store(true)
	_, _, _ = get(t, tr, "http://api/healthz")
	assert.False(t, tr.Online())

	net.down.Store(false)
	_, _, err = get(t, tr, "http://api/healthz")
	require.NoError(t, err)

	select {
	case <-signal:
	case <-time.After(time.Second):
		t.Fatal("expected reconnect signal")
	}
	assert.True(t, tr.Online())
}

func TestMonitorDetectsReconnect(t *testing.T) {
	net := &flakyNetwork{body: `{"status":"ok"}`}
	net.down.Store(true)
	tr := newTestTransport(t, net)
	signal := tr.Subscribe()

	_, _, _ = get(t, tr, "http://api/healthz")
	require.False(t, tr.Online())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Monitor(ctx, "http://api/healthz", 10*time.Millisecond)

	net.down.Store(false)
	select {
	case <-signal:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not notice reconnect")
	}
}

func TestClientTimeoutFallsBackToCache(t *testing.T) {
	var hang atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hang.Load() {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_expected":3}`))
	}))
	defer srv.Close()

	tr, err := NewTransport(Options{Base: srv.Client().Transport, CacheSize: 8})
	require.NoError(t, err)
	client := &http.Client{Transport: tr, Timeout: 300 * time.Millisecond}

	resp, err := client.Get(srv.URL + "/api/v1/sessions/s1/statistics")
	require.NoError(t, err)
	resp.Body.Close()

	hang.Store(true)
	resp, err = client.Get(srv.URL + "/api/v1/sessions/s1/statistics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(HeaderFromCache))
	assert.JSONEq(t, `{"total_expected":3}`, string(body))
	assert.False(t, tr.Online())

	resp, err = client.Get(srv.URL + "/api/v1/sessions/s2/statistics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(HeaderOffline))
}

func TestCallerCancellationSkipsFallback(t *testing.T) {
	net := &flakyNetwork{body: `{"total_expected":3}`}
	tr := newTestTransport(t, net)
	url := "http://api/api/v1/sessions/s1/statistics"

	_, _, err := get(t, tr, url)
	require.NoError(t, err)

	net.down.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	_, err = tr.RoundTrip(req)
	require.Error(t, err)
	assert.True(t, tr.Online())
}
