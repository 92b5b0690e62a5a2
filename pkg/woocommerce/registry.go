package woocommerce

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/httpclient"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/ratelimit"
)

// ServerSource loads server rows for the registry
type ServerSource interface {
	GetServer(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error)
	ListEnabledServers(ctx context.Context) ([]*models.WooCommerceServer, error)
}

// Registry hands out one Client per enabled server and caches them.
// Invalidate must be called whenever a server row changes credentials or URL.
type Registry struct {
	source     ServerSource
	httpClient *httpclient.Client
	limiter    *ratelimit.Manager
	recorder   RequestRecorder
	logger     ectologger.Logger
	pageLength int

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

// NewRegistry creates a client registry
func NewRegistry(source ServerSource, httpClient *httpclient.Client, limiter *ratelimit.Manager, recorder RequestRecorder, pageLength int, logger ectologger.Logger) *Registry {
	return &Registry{
		source:     source,
		httpClient: httpClient,
		limiter:    limiter,
		recorder:   recorder,
		logger:     logger,
		pageLength: pageLength,
		clients:    make(map[uuid.UUID]*Client),
	}
}

// Get returns the client for a server, building it on first use. Disabled
// servers yield a SyncDisabledError.
func (r *Registry) Get(ctx context.Context, serverID uuid.UUID) (*Client, error) {
	r.mu.RLock()
	client, ok := r.clients[serverID]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	server, err := r.source.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if !server.Enabled {
		return nil, &SyncDisabledError{ServerID: serverID.String(), Reason: "server is disabled"}
	}

	client, err = NewClient(server, r.httpClient, r.logger,
		WithPageLength(r.pageLength),
		WithRateLimiter(r.limiter),
		WithRequestRecorder(r.recorder),
	)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// Another goroutine may have built one in the meantime; keep the first.
	if existing, ok := r.clients[serverID]; ok {
		client = existing
	} else {
		r.clients[serverID] = client
	}
	r.mu.Unlock()

	return client, nil
}

// All returns clients for every enabled server
func (r *Registry) All(ctx context.Context) ([]*Client, error) {
	servers, err := r.source.ListEnabledServers(ctx)
	if err != nil {
		return nil, err
	}

	clients := make([]*Client, 0, len(servers))
	for _, server := range servers {
		client, err := r.Get(ctx, server.ID)
		if err != nil {
			if IsSyncDisabled(err) {
				continue
			}
			return nil, err
		}
		clients = append(clients, client)
	}

	return clients, nil
}

// Invalidate drops the cached client for a server
func (r *Registry) Invalidate(serverID uuid.UUID) {
	r.mu.Lock()
	delete(r.clients, serverID)
	r.mu.Unlock()
}
