package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/cache"
	"github.com/wooconduit/conduit/pkg/expressions"
	"github.com/wooconduit/conduit/pkg/kafka"
	"github.com/wooconduit/conduit/pkg/mapper"
	"github.com/wooconduit/conduit/pkg/metrics"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/redis"
	"github.com/wooconduit/conduit/pkg/repositories"
	"github.com/wooconduit/conduit/pkg/tracing"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

var (
	// ErrLockContended is returned when another run holds the identity lock
	ErrLockContended = errors.New("sync already running for this identity")

	// ErrServerNotFound is returned when no configured server matches a domain
	ErrServerNotFound = errors.New("no server configured for domain")

	// ErrParentDepthExceeded is returned when a variation's parent chain is
	// deeper than the configured guard allows
	ErrParentDepthExceeded = errors.New("variation parent chain too deep")
)

// RemoteClient is the slice of the WooCommerce client the engine drives
type RemoteClient interface {
	Domain() string
	Server() *models.WooCommerceServer
	PageLength() int
	Get(ctx context.Context, resource string, id int64) (*woocommerce.Record, error)
	List(ctx context.Context, resource string, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, error)
	Update(ctx context.Context, resource string, id int64, payload map[string]interface{}) (*woocommerce.Record, error)
	ListVariations(ctx context.Context, parentID int64, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, error)
	GetVariation(ctx context.Context, parentID, variationID int64) (*woocommerce.Record, error)
	UpdateVariation(ctx context.Context, parentID, variationID int64, payload map[string]interface{}) (*woocommerce.Record, error)
}

// ClientSource resolves a RemoteClient for a server
type ClientSource interface {
	Get(ctx context.Context, serverID uuid.UUID) (RemoteClient, error)
}

type registrySource struct {
	registry *woocommerce.Registry
}

func (s registrySource) Get(ctx context.Context, serverID uuid.UUID) (RemoteClient, error) {
	return s.registry.Get(ctx, serverID)
}

// NewCachedRegistrySource wraps registry clients with the list cache so
// repeated polling passes reuse recent pages instead of re-listing the store.
func NewCachedRegistrySource(registry *woocommerce.Registry, lists *cache.ListCache) ClientSource {
	return cachedRegistrySource{registry: registry, lists: lists}
}

type cachedRegistrySource struct {
	registry *woocommerce.Registry
	lists    *cache.ListCache
}

func (s cachedRegistrySource) Get(ctx context.Context, serverID uuid.UUID) (RemoteClient, error) {
	client, err := s.registry.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return cachedClient{Client: client, lists: s.lists}, nil
}

type cachedClient struct {
	*woocommerce.Client
	lists *cache.ListCache
}

func (c cachedClient) List(ctx context.Context, resource string, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, error) {
	return c.lists.ListThrough(ctx, c.Client, resource, opts, false)
}

func (c cachedClient) ListVariations(ctx context.Context, parentID int64, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, error) {
	return c.lists.ListThrough(ctx, c.Client, fmt.Sprintf("products/%d/variations", parentID), opts, false)
}

// NewRegistrySource adapts a client registry into a ClientSource
func NewRegistrySource(registry *woocommerce.Registry) ClientSource {
	return registrySource{registry: registry}
}

// Config holds sync engine tunables
type Config struct {
	MaxRunTime         time.Duration
	LockTTL            time.Duration
	FetchVariations    bool
	VariationBatchSize int
	MaxVariations      int
	MaxParentDepth     int

	// MinOrderDate filters out orders created before the cutover, zero
	// disables the filter
	MinOrderDate time.Time
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		MaxRunTime:         10 * time.Minute,
		LockTTL:            2 * time.Minute,
		FetchVariations:    true,
		VariationBatchSize: 50,
		MaxVariations:      500,
		MaxParentDepth:     3,
	}
}

// Engine reconciles local entities with their WooCommerce counterparts.
// Each run covers one (entity, remote record) pair under a per-identity
// advisory lock; hash comparison decides the direction and last-write-wins
// decides the winner.
type Engine struct {
	clients ClientSource
	locker  *redis.Locker
	fields  *mapper.FieldMapper

	serverRepo    repositories.ServerRepo
	itemRepo      repositories.ItemRepo
	orderRepo     repositories.OrderRepo
	customerRepo  repositories.CustomerRepo
	paymentRepo   repositories.PaymentRepo
	syncStateRepo repositories.SyncStateRepo

	producer *kafka.Producer

	productRules  []models.FieldMappingRule
	customerRules []models.FieldMappingRule

	config Config
	logger ectologger.Logger
}

// NewEngine creates a sync engine
func NewEngine(
	clients ClientSource,
	locker *redis.Locker,
	fields *mapper.FieldMapper,
	serverRepo repositories.ServerRepo,
	itemRepo repositories.ItemRepo,
	orderRepo repositories.OrderRepo,
	customerRepo repositories.CustomerRepo,
	paymentRepo repositories.PaymentRepo,
	syncStateRepo repositories.SyncStateRepo,
	producer *kafka.Producer,
	config Config,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		clients:       clients,
		locker:        locker,
		fields:        fields,
		serverRepo:    serverRepo,
		itemRepo:      itemRepo,
		orderRepo:     orderRepo,
		customerRepo:  customerRepo,
		paymentRepo:   paymentRepo,
		syncStateRepo: syncStateRepo,
		producer:      producer,
		productRules:  mapper.DefaultProductRules(),
		customerRules: mapper.DefaultCustomerRules(),
		config:        config,
		logger:        logger,
	}
}

// productRulesFor layers the server's configured item field map over the
// built-in product rules
func (e *Engine) productRulesFor(server *models.WooCommerceServer) []models.FieldMappingRule {
	return mapper.MergeRules(e.productRules, server.Settings.GetValue().ItemFieldMap)
}

// serverForIdentity resolves the server owning a composite identity
func (e *Engine) serverForIdentity(ctx context.Context, identity string) (*models.WooCommerceServer, int64, error) {
	domain, remoteID, err := woocommerce.ParseIdentity(identity)
	if err != nil {
		return nil, 0, err
	}

	server, err := e.serverRepo.GetByDomain(ctx, domain)
	if err != nil {
		return nil, 0, err
	}
	if server == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrServerNotFound, domain)
	}

	return server, remoteID, nil
}

// withIdentityLock runs fn under the per-identity advisory lock. Contention
// is a typed error so queued callers can retry instead of doubling up.
func (e *Engine) withIdentityLock(ctx context.Context, identity string, fn func() error) error {
	lock, err := e.locker.Acquire(ctx, identity, e.config.LockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return fmt.Errorf("%w: %s", ErrLockContended, identity)
		}
		return fmt.Errorf("failed to acquire sync lock for %s: %w", identity, err)
	}
	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			e.logger.WithContext(ctx).WithError(releaseErr).Warnf("Failed to release sync lock: %s", identity)
		}
	}()

	return fn()
}

// mappingContext builds the expression context for one record pair
func (e *Engine) mappingContext(identity string, resource models.SyncResource, direction string, record *woocommerce.Record, local interface{}, server *models.WooCommerceServer) *expressions.Context {
	mctx := expressions.NewContext()
	if record != nil {
		mctx.WithRemote(record.Data)
	}
	if local != nil {
		mctx.WithLocal(local)
	}
	mctx.WithServer(settingsMap(server))
	mctx.Meta = &expressions.ContextMeta{
		Identity:  identity,
		Resource:  string(resource),
		Direction: direction,
		Timestamp: time.Now().UTC(),
	}
	return mctx
}

// settingsMap exposes server settings to mapping expressions
func settingsMap(server *models.WooCommerceServer) map[string]interface{} {
	if server == nil {
		return nil
	}

	b, err := json.Marshal(server.Settings.GetValue())
	if err != nil {
		return nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// logDiagnostics dumps both sides of a failed run before the error is
// re-raised. The snapshots make sync bugs debuggable after the fact.
func (e *Engine) logDiagnostics(ctx context.Context, identity string, local interface{}, record *woocommerce.Record, err error) {
	localJSON, _ := json.Marshal(local)

	var remoteJSON []byte
	if record != nil {
		remoteJSON, _ = json.Marshal(record.Data)
	}

	e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"identity": identity,
		"local":    string(localJSON),
		"remote":   string(remoteJSON),
	}).Errorf("Sync run failed: %s", identity)
}

// publishOutcome emits the sync event, best effort
func (e *Engine) publishOutcome(ctx context.Context, server *models.WooCommerceServer, outcome *Outcome) {
	status := "success"
	errMsg := ""
	if outcome.Failed() {
		status = "failed"
		errMsg = outcome.Error.Error()
	}

	metrics.RecordSyncRun(server.ID.String(), string(outcome.Resource), string(outcome.Action), status, outcome.Duration.Seconds())

	if e.producer == nil {
		return
	}

	msg := &kafka.SyncEventMessage{
		ServerID:   server.ID.String(),
		Domain:     server.Domain,
		Resource:   string(outcome.Resource),
		Identity:   outcome.Identity,
		RunID:      outcome.RunID,
		Action:     string(outcome.Action),
		Error:      errMsg,
		DurationMs: outcome.Duration.Milliseconds(),
	}

	if outcome.Failed() {
		_ = e.producer.PublishSyncError(ctx, msg)
		return
	}
	_ = e.producer.PublishSyncEvent(ctx, msg)
}

// run wraps one sync run with the lock, timing, diagnostics and events
func (e *Engine) run(ctx context.Context, server *models.WooCommerceServer, resource models.SyncResource, identity string, fn func(ctx context.Context) (Action, error)) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncEngine.run")
	defer span.End()

	runID := uuid.New().String()
	outcome := &Outcome{
		Identity: identity,
		Resource: resource,
		RunID:    runID,
	}

	start := time.Now()
	err := e.withIdentityLock(ctx, identity, func() error {
		runCtx := ctx
		if e.config.MaxRunTime > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, e.config.MaxRunTime)
			defer cancel()
		}

		action, runErr := fn(runCtx)
		outcome.Action = action
		return runErr
	})
	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Action = ActionFailed
		outcome.Error = err
	}

	e.publishOutcome(ctx, server, outcome)
	return outcome, err
}
