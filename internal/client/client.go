// Package client talks to the rendering backend over HTTP. A Client keeps one
// persistent connection to one backend URL and serialises requests on it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/elisoncampos/reactive-views-sub000/internal/errors"
	"github.com/elisoncampos/reactive-views-sub000/internal/logging"
	"github.com/elisoncampos/reactive-views-sub000/internal/monitoring"
	"github.com/elisoncampos/reactive-views-sub000/internal/props"
	"github.com/elisoncampos/reactive-views-sub000/internal/types"
	"github.com/elisoncampos/reactive-views-sub000/internal/version"
)

// Backend endpoints.
const (
	PathRender      = "/render"
	PathBatchRender = "/batch-render"
	PathRenderTree  = "/render-tree"
	PathHealth      = "/health"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// Options configures a Client.
type Options struct {
	ConnectTimeout time.Duration
	// ReadTimeout bounds single renders and health checks
	ReadTimeout time.Duration
	// BatchTimeout bounds batch and tree renders; never below ReadTimeout
	BatchTimeout time.Duration
	Logger       logging.Logger
	Metrics      *monitoring.Metrics
}

// DefaultOptions returns the timeouts used when none are configured.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    5 * time.Second,
		BatchTimeout:   15 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.BatchTimeout < o.ReadTimeout {
		o.BatchTimeout = o.ReadTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	return o
}

// Client renders components against one backend.
type Client struct {
	baseURL string
	opts    Options
	logger  logging.Logger

	// mu guards the connection and the send/receive section
	mu         sync.Mutex
	transport  *http.Transport
	httpClient *http.Client
}

// New creates a Client for baseURL (e.g. "http://127.0.0.1:5175").
func New(baseURL string, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		logger:  opts.Logger.WithComponent("render_client").With("backend", baseURL),
	}
	c.reconnect()
	return c
}

// BaseURL returns the backend URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// reconnect drops the current connection and builds a fresh transport.
// Callers hold mu, except New.
func (c *Client) reconnect() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	dialer := &net.Dialer{
		Timeout:   c.opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	c.transport = &http.Transport{
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     1,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
	c.httpClient = &http.Client{Transport: c.transport}
}

// Close releases the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport.CloseIdleConnections()
}

// wire types

type componentRequest struct {
	ComponentPath string     `json:"componentPath"`
	Props         *props.Map `json:"props"`
}

type batchRequest struct {
	Components []componentRequest `json:"components"`
}

type treeRequest struct {
	ComponentPath string         `json:"componentPath"`
	Props         *props.Map     `json:"props"`
	Children      []*treeRequest `json:"children"`
	HTMLChildren  string         `json:"htmlChildren"`
}

type renderResponse struct {
	HTML  *string       `json:"html"`
	Error *backendError `json:"error"`
}

type batchResponse struct {
	Results []renderResponse `json:"results"`
}

// backendError accepts either a bare string or {message, stack}.
type backendError struct {
	Message string
	Stack   string
}

func (e *backendError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Message = s
		return nil
	}
	var obj struct {
		Message string `json:"message"`
		Stack   string `json:"stack"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("error field is neither string nor object: %w", err)
	}
	e.Message = obj.Message
	e.Stack = obj.Stack
	return nil
}

func (e *backendError) toError(component string) *errors.ViewError {
	msg := e.Message
	if msg == "" {
		msg = "backend reported an error"
	}
	err := errors.NewApplicationError(msg).WithStack(e.Stack)
	if component != "" {
		err = err.WithComponent(component)
	}
	return err
}

func propsOrEmpty(m *props.Map) *props.Map {
	if m == nil {
		return props.NewMap()
	}
	return m
}

// Render renders one component. A backend-reported failure or a non-2xx
// status yields an application error; connection problems yield a transport
// error and an unreadable body a protocol error.
func (c *Client) Render(ctx context.Context, spec types.ComponentSpec) (string, error) {
	body := componentRequest{ComponentPath: spec.Path, Props: propsOrEmpty(spec.Props)}

	status, raw, err := c.post(ctx, PathRender, body, c.opts.ReadTimeout)
	if err != nil {
		return "", err
	}

	if !isSuccess(status) {
		return "", statusError(status, raw, spec.Name)
	}

	var resp renderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", malformed(PathRender, err)
	}
	return resp.result(spec.Name)
}

func (r renderResponse) result(component string) (string, error) {
	switch {
	case r.Error != nil:
		return "", r.Error.toError(component)
	case r.HTML != nil:
		return *r.HTML, nil
	default:
		return "", errors.NewProtocolError(errors.ErrCodeMalformedBody,
			"response carries neither html nor error", nil).WithComponent(component)
	}
}

// BatchRender renders specs in one call. The returned results are
// index-aligned with specs. A non-2xx status, an unreadable body or a result
// count that differs from len(specs) fails the whole call.
func (c *Client) BatchRender(ctx context.Context, specs []types.ComponentSpec) ([]types.RenderResult, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	body := batchRequest{Components: make([]componentRequest, len(specs))}
	for i, spec := range specs {
		body.Components[i] = componentRequest{ComponentPath: spec.Path, Props: propsOrEmpty(spec.Props)}
	}

	status, raw, err := c.post(ctx, PathBatchRender, body, c.opts.BatchTimeout)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, errors.NewTransportError(errors.ErrCodeBadStatus,
			fmt.Sprintf("batch render returned status %d", status), nil).
			WithContext("status", status)
	}

	var resp batchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, malformed(PathBatchRender, err)
	}
	if resp.Results == nil {
		return nil, malformed(PathBatchRender, stderrors.New("missing results array"))
	}
	if len(resp.Results) != len(specs) {
		return nil, errors.NewProtocolError(errors.ErrCodeLengthMismatch,
			fmt.Sprintf("batch render returned %d results for %d components", len(resp.Results), len(specs)), nil).
			WithContext("expected", len(specs)).
			WithContext("actual", len(resp.Results))
	}

	results := make([]types.RenderResult, len(specs))
	for i, item := range resp.Results {
		html, err := item.result(specs[i].Name)
		if err != nil {
			results[i] = types.ErrorResult(err)
			continue
		}
		results[i] = types.HTMLResult(html)
	}
	return results, nil
}

// RenderTree renders a nested component tree in one call. Every node must be
// resolved; an unresolved node fails the call before anything is sent.
func (c *Client) RenderTree(ctx context.Context, root *types.TreeNode) (string, error) {
	if root == nil {
		return "", errors.NewValidationError(errors.ErrCodeValidationFailed, "empty component tree")
	}
	if missing := root.Unresolved(); len(missing) > 0 {
		return "", errors.NewResolutionError(missing[0]).
			WithContext("root", root.Spec.Name).
			WithContext("unresolved", missing)
	}

	status, raw, err := c.post(ctx, PathRenderTree, buildTreeRequest(root), c.opts.BatchTimeout)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", statusError(status, raw, root.Spec.Name)
	}

	var resp renderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", malformed(PathRenderTree, err)
	}
	return resp.result(root.Spec.Name)
}

func buildTreeRequest(node *types.TreeNode) *treeRequest {
	req := &treeRequest{
		ComponentPath: node.Spec.Path,
		Props:         propsOrEmpty(node.Spec.Props),
		Children:      make([]*treeRequest, 0, len(node.Children)),
		HTMLChildren:  node.LiteralHTML(),
	}
	for _, child := range node.Children {
		req.Children = append(req.Children, buildTreeRequest(child))
	}
	return req
}

// Health checks GET /health. Any 2xx is healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathHealth, nil)
	if err != nil {
		return errors.WrapInternal(err, errors.ErrCodeInternalError, "building health request")
	}
	req.Header.Set("User-Agent", version.UserAgent())

	status, _, err := c.roundTrip(req, PathHealth, c.opts.ReadTimeout)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return errors.NewTransportError(errors.ErrCodeBadStatus,
			fmt.Sprintf("health check returned status %d", status), nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, timeout time.Duration) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, errors.WrapInternal(err, errors.ErrCodeInternalError, "encoding request for "+path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errors.WrapInternal(err, errors.ErrCodeInternalError, "building request for "+path)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	return c.roundTrip(req, path, timeout)
}

// roundTrip sends req holding the connection lock. A broken connection is
// replaced and the request retried exactly once; timeouts are not retried.
func (c *Client) roundTrip(req *http.Request, path string, timeout time.Duration) (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	status, body, err := c.send(req, timeout)
	if err != nil && isBrokenConnection(err) {
		c.logger.Warn(req.Context(), err, "Backend connection broken, reconnecting", "path", path)
		c.opts.Metrics.IncBackendRetry()
		c.reconnect()

		retry, rerr := rewind(req)
		if rerr != nil {
			err = rerr
		} else {
			status, body, err = c.send(retry, timeout)
		}
	}
	c.opts.Metrics.ObserveBackendRequest(path, err, time.Since(start))

	if err != nil {
		return 0, nil, classify(path, err)
	}

	c.logger.Debug(req.Context(), "Backend request completed",
		"path", path,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds())
	return status, body, nil
}

func (c *Client) send(req *http.Request, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return retry, nil
}

// isBrokenConnection reports errors caused by a connection the peer dropped.
// Refused connections and timeouts are not broken connections.
func isBrokenConnection(err error) bool {
	if isTimeout(err) {
		return false
	}
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, net.ErrClosed)
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func classify(path string, err error) error {
	var ve *errors.ViewError
	if stderrors.As(err, &ve) {
		return err
	}

	switch {
	case isTimeout(err):
		return errors.NewTransportError(errors.ErrCodeTimeout, "backend request to "+path+" timed out", err)
	case isBrokenConnection(err):
		return errors.NewTransportError(errors.ErrCodeBrokenConnection, "backend connection broken during "+path, err)
	default:
		return errors.NewTransportError(errors.ErrCodeConnection, "backend unreachable for "+path, err)
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// statusError turns a non-2xx single render into an application error,
// preferring the backend's own message when the body carries one.
func statusError(status int, raw []byte, component string) error {
	var resp renderResponse
	if err := json.Unmarshal(raw, &resp); err == nil && resp.Error != nil && resp.Error.Message != "" {
		return resp.Error.toError(component).WithContext("status", status)
	}

	msg := fmt.Sprintf("backend returned status %d", status)
	if text := strings.TrimSpace(string(raw)); text != "" {
		msg += ": " + logging.SanitizeForLog(text)
	}
	err := errors.NewApplicationError(msg).WithContext("status", status)
	if component != "" {
		err = err.WithComponent(component)
	}
	return err
}

func malformed(path string, cause error) error {
	return errors.NewProtocolError(errors.ErrCodeMalformedBody, "malformed response from "+path, cause)
}
