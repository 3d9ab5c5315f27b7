package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/orchestrator"
)

type stubTransformer struct {
	markup string
	req    orchestrator.Request
	panic  bool
}

func (s *stubTransformer) TransformReport(_ context.Context, markup string, req orchestrator.Request) (string, *orchestrator.Report) {
	if s.panic {
		panic("boom")
	}
	s.markup, s.req = markup, req
	return "<div>" + markup + "</div>", &orchestrator.Report{
		Strategy: orchestrator.StrategyBatch,
		Islands:  []orchestrator.Island{{ID: "rv-1", Name: "Card", OK: true}, {ID: "rv-2", Name: "Chart"}},
		Failures: []errors.RenderFailure{{Component: "Chart", IslandID: "rv-2"}},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestTransformEndpoint(t *testing.T) {
	stub := &stubTransformer{}
	h := New(Options{Transformer: stub}).Handler()

	w := do(t, h, http.MethodPost, PathTransform,
		`{"markup":"<Card/>","data":{"user":"ada"},"select":{"Card":["user"]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	var resp TransformResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "<div><Card/></div>", resp.HTML)
	assert.Equal(t, "batch", resp.Strategy)
	assert.Equal(t, 2, resp.Islands)
	assert.Equal(t, []string{"Chart"}, resp.Failed)

	assert.Equal(t, "<Card/>", stub.markup)
	assert.Equal(t, "ada", stub.req.Data["user"])
	require.NotNil(t, stub.req.Selector)
	assert.Equal(t, []string{"user"}, stub.req.Selector.Select("Card").Keys)
	assert.Empty(t, stub.req.Selector.Select("Other").Keys)
}

func TestTransformWithoutSelectSendsAllData(t *testing.T) {
	stub := &stubTransformer{}
	h := New(Options{Transformer: stub}).Handler()

	w := do(t, h, http.MethodPost, PathTransform, `{"markup":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, stub.req.Selector)
}

func TestTransformRejectsBadBodies(t *testing.T) {
	h := New(Options{Transformer: &stubTransformer{}, MaxBodyBytes: 32}).Handler()

	w := do(t, h, http.MethodPost, PathTransform, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errors.ErrCodeValidationFailed)

	w = do(t, h, http.MethodPost, PathTransform, `{"markup":"`+strings.Repeat("a", 100)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, h, http.MethodGet, PathTransform, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestTransformWithoutTransformer(t *testing.T) {
	w := do(t, New(Options{}).Handler(), http.MethodPost, PathTransform, `{"markup":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	w := do(t, New(Options{}).Handler(), http.MethodGet, PathHealth, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	hm := monitoring.NewHealthMonitor(nil, time.Second)
	hm.RegisterCheck(monitoring.PingChecker("backend", true, func(context.Context) error {
		return errors.NewTransportError(errors.ErrCodeConnection, "refused", nil)
	}))
	w = do(t, New(Options{Health: hm}).Handler(), http.MethodGet, PathHealth, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := monitoring.NewMetrics()
	metrics.IncBatchFallback()

	w := do(t, New(Options{Metrics: metrics}).Handler(), http.MethodGet, PathMetrics, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reactiveviews_batch_fallbacks_total 1")

	w = do(t, New(Options{}).Handler(), http.MethodGet, PathMetrics, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := New(Options{Transformer: &stubTransformer{panic: true}}).Handler()
	w := do(t, h, http.MethodPost, PathTransform, `{"markup":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := New(Options{}).Handler()
	req := httptest.NewRequest(http.MethodGet, PathHealth, nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestServeAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Options{Host: "127.0.0.1"})
	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), l) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + PathHealth)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}
