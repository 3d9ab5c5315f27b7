package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/props"
	"github.com/elisoncampos/reactive-views-sub000/internal/types"
)

func spec(name, path string) types.ComponentSpec {
	m := props.NewMap()
	m.Set("title", props.String(name))
	return types.ComponentSpec{Name: name, Path: path, Props: m}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	c := New(url, Options{ConnectTimeout: time.Second, ReadTimeout: time.Second, BatchTimeout: 2 * time.Second})
	t.Cleanup(c.Close)
	return c
}

func TestRenderSendsWireFormat(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathRender, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"html":"<p>hi</p>"}`)
	}))
	defer srv.Close()

	html, err := newClient(t, srv.URL).Render(context.Background(), spec("Card", "/app/Card.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", html)
	assert.JSONEq(t, `"/app/Card.tsx"`, string(got["componentPath"]))
	assert.JSONEq(t, `{"title":"Card"}`, string(got["props"]))
}

func TestRenderNilPropsSendsEmptyObject(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"html":""}`)
	}))
	defer srv.Close()

	html, err := newClient(t, srv.URL).Render(context.Background(), types.ComponentSpec{Name: "X", Path: "/x.tsx"})
	require.NoError(t, err)
	assert.Equal(t, "", html)
	assert.JSONEq(t, `{}`, string(got["props"]))
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		check   func(error) bool
		message string
	}{
		{"string error", 200, `{"error":"boom"}`, errors.IsApplication, "boom"},
		{"object error", 200, `{"error":{"message":"kaput","stack":"at X"}}`, errors.IsApplication, "kaput"},
		{"non-2xx with message", 500, `{"error":"server exploded"}`, errors.IsApplication, "server exploded"},
		{"non-2xx plain", 502, `bad gateway`, errors.IsApplication, "backend returned status 502: bad gateway"},
		{"malformed", 200, `<html>`, errors.IsProtocol, ""},
		{"empty object", 200, `{}`, errors.IsProtocol, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))
			defer srv.Close()

			_, err := newClient(t, srv.URL).Render(context.Background(), spec("Card", "/Card.tsx"))
			require.Error(t, err)
			assert.True(t, tc.check(err), err.Error())
			if tc.message != "" {
				assert.Equal(t, tc.message, errors.UserMessage(err))
			}
		})
	}
}

func TestRenderErrorKeepsStack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"error":{"message":"kaput","stack":"at Card (Card.tsx:3)"}}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Render(context.Background(), spec("Card", "/Card.tsx"))
	var ve *errors.ViewError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "at Card (Card.tsx:3)", ve.Stack)
	assert.Equal(t, "Card", ve.Component)
}

func TestRenderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url).Render(context.Background(), spec("Card", "/Card.tsx"))
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeConnection))
}

func TestRenderTimeoutIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, 200, `{"html":"late"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, Options{ReadTimeout: 30 * time.Millisecond})
	defer c.Close()

	_, err := c.Render(context.Background(), spec("Slow", "/Slow.tsx"))
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeTimeout))
	assert.EqualValues(t, 1, calls.Load())
}

// hijackFirst drops the connection without answering on the first n requests.
func hijackFirst(n int32, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= n {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		writeJSON(w, 200, `{"html":"<b>ok</b>"}`)
	}
}

func TestBrokenConnectionRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(hijackFirst(1, &calls))
	defer srv.Close()

	metrics := monitoring.NewMetrics()
	c := New(srv.URL, Options{ReadTimeout: time.Second, Metrics: metrics})
	defer c.Close()

	html, err := c.Render(context.Background(), spec("Card", "/Card.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "<b>ok</b>", html)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBrokenConnectionSurfacesAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(hijackFirst(100, &calls))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Render(context.Background(), spec("Card", "/Card.tsx"))
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeBrokenConnection))
	assert.EqualValues(t, 2, calls.Load())
}

func TestBatchRenderIndexAligned(t *testing.T) {
	var req batchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathBatchRender, r.URL.Path)
		var raw struct {
			Components []struct {
				ComponentPath string `json:"componentPath"`
			} `json:"components"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		req.Components = make([]componentRequest, len(raw.Components))
		for i, c := range raw.Components {
			req.Components[i].ComponentPath = c.ComponentPath
		}
		writeJSON(w, 200, `{"results":[{"html":"A"},{"error":"E"},{"html":"B"}]}`)
	}))
	defer srv.Close()

	specs := []types.ComponentSpec{spec("A", "/A.tsx"), spec("E", "/E.tsx"), spec("B", "/B.tsx")}
	results, err := newClient(t, srv.URL).BatchRender(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "A", results[0].HTML)
	assert.False(t, results[1].OK())
	assert.True(t, errors.IsApplication(results[1].Err))
	assert.Equal(t, "E", errors.UserMessage(results[1].Err))
	assert.Equal(t, "B", results[2].HTML)

	require.Len(t, req.Components, 3)
	assert.Equal(t, "/E.tsx", req.Components[1].ComponentPath)
}

func TestBatchRenderWholeCallFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		code   string
	}{
		{"server error", 500, `{"error":"down"}`, errors.IsTransport, errors.ErrCodeBadStatus},
		{"malformed", 200, `not json`, errors.IsProtocol, errors.ErrCodeMalformedBody},
		{"missing results", 200, `{}`, errors.IsProtocol, errors.ErrCodeMalformedBody},
		{"short", 200, `{"results":[{"html":"A"}]}`, errors.IsProtocol, errors.ErrCodeLengthMismatch},
		{"long", 200, `{"results":[{"html":"A"},{"html":"B"},{"html":"C"}]}`, errors.IsProtocol, errors.ErrCodeLengthMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))
			defer srv.Close()

			results, err := newClient(t, srv.URL).BatchRender(context.Background(),
				[]types.ComponentSpec{spec("A", "/A.tsx"), spec("B", "/B.tsx")})
			require.Error(t, err)
			assert.Nil(t, results)
			assert.True(t, tc.check(err), err.Error())
			assert.True(t, errors.HasErrorCode(err, tc.code), err.Error())
		})
	}
}

func TestBatchRenderEmptyMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	results, err := newClient(t, srv.URL).BatchRender(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, calls.Load())
}

func TestRenderTreeWireFormat(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathRenderTree, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, 200, `{"html":"<section>combined</section>"}`)
	}))
	defer srv.Close()

	inner := &types.TreeNode{Spec: spec("Inner", "/Inner.tsx")}
	root := &types.TreeNode{
		Spec:            spec("Outer", "/Outer.tsx"),
		Children:        []*types.TreeNode{inner},
		LiteralChildren: []string{"<h1>Title</h1>", "<p>x</p>"},
	}

	html, err := newClient(t, srv.URL).RenderTree(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "<section>combined</section>", html)

	assert.Equal(t, "/Outer.tsx", body["componentPath"])
	assert.Equal(t, "<h1>Title</h1><p>x</p>", body["htmlChildren"])
	children := body["children"].([]interface{})
	require.Len(t, children, 1)
	child := children[0].(map[string]interface{})
	assert.Equal(t, "/Inner.tsx", child["componentPath"])
	assert.Equal(t, "", child["htmlChildren"])
	assert.Empty(t, child["children"])
}

func TestRenderTreeUnresolvedFailsWithoutCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	root := &types.TreeNode{
		Spec:     spec("Outer", "/Outer.tsx"),
		Children: []*types.TreeNode{{Spec: types.ComponentSpec{Name: "Ghost"}}},
	}

	_, err := newClient(t, srv.URL).RenderTree(context.Background(), root)
	require.Error(t, err)
	assert.True(t, errors.IsResolution(err))
	assert.Zero(t, calls.Load())
}

func TestRenderTreeBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"error":{"message":"Inner threw"}}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).RenderTree(context.Background(), &types.TreeNode{Spec: spec("Outer", "/Outer.tsx")})
	require.Error(t, err)
	assert.True(t, errors.IsApplication(err))
	assert.Equal(t, "Inner threw", errors.UserMessage(err))
}

func TestHealth(t *testing.T) {
	healthy := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathHealth, r.URL.Path)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeBadStatus))

	healthy.Store(true)
	assert.NoError(t, c.Health(context.Background()))
}

func TestConcurrentCallsQueue(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		writeJSON(w, 200, `{"html":"x"}`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Render(context.Background(), spec("Card", "/Card.tsx"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxInFlight.Load())
}
