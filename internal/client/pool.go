package client

import (
	"context"
	"strings"
	"sync"
)

// Pool hands out one Client per backend URL so requests to the same backend
// share a connection.
type Pool struct {
	opts Options

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates an empty pool whose clients use opts.
func NewPool(opts Options) *Pool {
	return &Pool{
		opts:    opts,
		clients: make(map[string]*Client),
	}
}

// Get returns the client for baseURL, creating it on first use.
func (p *Pool) Get(baseURL string) *Client {
	key := strings.TrimRight(baseURL, "/")

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c
	}
	c := New(key, p.opts)
	p.clients[key] = c
	return c
}

// Len returns the number of distinct backends in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close closes every client and empties the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// EndpointSource yields the backend URL, starting the backend if needed.
type EndpointSource interface {
	EnsureRunning(ctx context.Context) (string, error)
}

// StaticEndpoint is an EndpointSource for an externally managed backend.
type StaticEndpoint string

func (s StaticEndpoint) EnsureRunning(context.Context) (string, error) {
	return string(s), nil
}

// Provider resolves the backend endpoint before each use and returns the
// pooled client for it.
type Provider struct {
	pool   *Pool
	source EndpointSource
}

// NewProvider creates a Provider.
func NewProvider(pool *Pool, source EndpointSource) *Provider {
	return &Provider{pool: pool, source: source}
}

// Client ensures the backend is available and returns its client.
func (p *Provider) Client(ctx context.Context) (*Client, error) {
	url, err := p.source.EnsureRunning(ctx)
	if err != nil {
		return nil, err
	}
	return p.pool.Get(url), nil
}
