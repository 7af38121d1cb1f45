package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxAttempts:     5,
		MinBackoff:      time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		Timeout:         2 * time.Second,
		MaxConns:        4,
		MaxConnsPerHost: 2,
	}
}

func newTestClient(opts ...Option) *Client {
	opts = append([]Option{WithLogger(log.WithField("component", "gateway-test"))}, opts...)
	return New(testConfig(), opts...)
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts int
	failures int
	results  []string
}

func (o *recordingObserver) ObserveAttempt(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) ObserveResult(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, outcome)
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"items":[1,2]}}`))
	}))
	defer srv.Close()

	res := newTestClient().Do(context.Background(), Request{URL: srv.URL})
	require.True(t, res.OK())
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var payload struct {
		Result struct {
			Items []int `json:"items"`
		} `json:"result"`
	}
	require.NoError(t, res.Decode(&payload))
	require.Equal(t, []int{1, 2}, payload.Result.Items)
}

func TestDo_SendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserAgent = "stockwatch/test"
	res := New(cfg).Do(context.Background(), Request{URL: srv.URL})
	require.True(t, res.OK())
	require.Equal(t, "stockwatch/test", got)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	observer := &recordingObserver{}
	res := newTestClient(WithObserver(observer)).Do(context.Background(), Request{URL: srv.URL})
	require.True(t, res.OK())
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, 3, observer.attempts)
	require.Equal(t, 2, observer.failures)
	require.Equal(t, []string{"success"}, observer.results)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	res := newTestClient().Do(context.Background(), Request{URL: srv.URL})
	require.Equal(t, OutcomeTransportError, res.Outcome)
	require.Equal(t, 5, res.Attempts)
	require.Equal(t, int32(5), calls.Load())
	require.ErrorIs(t, res.Err, ErrTransport)

	var v map[string]any
	require.ErrorIs(t, res.Decode(&v), ErrNoData)
}

func TestDo_InvalidJSONIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	res := newTestClient().Do(context.Background(), Request{URL: srv.URL})
	require.True(t, res.OK())
	require.Equal(t, 2, res.Attempts)
}

func TestDo_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "null", "  \n"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		res := newTestClient().Do(context.Background(), Request{URL: srv.URL})
		srv.Close()

		require.Equal(t, OutcomeEmpty, res.Outcome, "body=%q", body)
		require.Equal(t, 1, res.Attempts)
		var v map[string]any
		require.ErrorIs(t, res.Decode(&v), ErrNoData)
	}
}

func TestDo_SendsBodyHeadersAndQuery(t *testing.T) {
	type payload struct {
		LastID string `json:"last_id"`
		Limit  int    `json:"limit"`
	}

	var (
		gotMethod, gotPath, gotQuery, gotKey, gotType string
		got                                           payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("visibility")
		gotKey = r.Header.Get("Api-Key")
		gotType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	res := newTestClient().Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/v2/product/list",
		Query:   url.Values{"visibility": {"VISIBLE"}},
		Headers: map[string]string{"Api-Key": "secret"},
		Body:    payload{LastID: "abc", Limit: 1000},
	})
	require.True(t, res.OK())
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/v2/product/list", gotPath)
	require.Equal(t, "VISIBLE", gotQuery)
	require.Equal(t, "secret", gotKey)
	require.Equal(t, "application/json", gotType)
	require.Equal(t, payload{LastID: "abc", Limit: 1000}, got)
}

func TestDo_CanceledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestClient().Do(ctx, Request{URL: srv.URL})
	require.Equal(t, OutcomeTransportError, res.Outcome)
	require.True(t, errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, ErrTransport))
	require.LessOrEqual(t, calls.Load(), int32(1))
}

func TestDo_InvalidURL(t *testing.T) {
	res := newTestClient().Do(context.Background(), Request{URL: "://bad"})
	require.Equal(t, OutcomeTransportError, res.Outcome)
	require.Equal(t, 0, res.Attempts)
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "success", OutcomeSuccess.String())
	require.Equal(t, "empty", OutcomeEmpty.String())
	require.Equal(t, "transport_error", OutcomeTransportError.String())
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{MinBackoff: 3 * time.Second, MaxBackoff: time.Second}.withDefaults()
	require.Equal(t, uint(5), cfg.MaxAttempts)
	require.Equal(t, 3*time.Second, cfg.MaxBackoff)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Equal(t, 100, cfg.MaxConns)
	require.Equal(t, 10, cfg.MaxConnsPerHost)
	require.Equal(t, 300*time.Second, cfg.DNSCacheTTL)
}
