package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/wooconduit/conduit/pkg/metrics"
	"github.com/wooconduit/conduit/pkg/redis"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

const keyPrefix = "conduit:listcache:"

// ListCache memoizes remote list responses so repeated polling passes don't
// hammer the store. Reads fail open: a broken cache degrades to a remote
// round trip, never to an error.
type ListCache struct {
	client *redis.Client
	logger ectologger.Logger
	ttl    time.Duration
}

// NewListCache creates a list cache with the given TTL
func NewListCache(client *redis.Client, ttl time.Duration, logger ectologger.Logger) *ListCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ListCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// cachedPage is the stored shape of one list page
type cachedPage struct {
	Records []*woocommerce.Record `json:"records"`
	Total   int                   `json:"total"`
}

// Key builds the canonical cache key for a list call. Query parameters are
// flattened in sorted order so equivalent calls built in different orders
// share an entry.
func Key(domain, resource string, opts woocommerce.ListOptions) string {
	values := opts.Values()

	params := make([]string, 0, len(values))
	for name, vals := range values {
		params = append(params, name+"="+strings.Join(vals, ","))
	}
	sort.Strings(params)

	canonical := domain + "|" + resource + "|" + strings.Join(params, "&")
	sum := sha256.Sum256([]byte(canonical))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Skip reports whether the options should bypass the cache entirely.
// Exact-id lookups follow a write often enough that stale pages are worse
// than the extra round trip.
func Skip(opts woocommerce.ListOptions) bool {
	return opts.HasExactIDs()
}

// Get returns a cached page, or nil on miss or error
func (c *ListCache) Get(ctx context.Context, domain, resource string, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, bool) {
	if Skip(opts) {
		return nil, 0, false
	}

	raw, err := c.client.Get(ctx, Key(domain, resource, opts))
	if err != nil {
		return nil, 0, false
	}

	var page cachedPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Dropping unreadable list cache entry for %s %s", domain, resource)
		return nil, 0, false
	}

	return page.Records, page.Total, true
}

// Put stores a list page. Errors are logged and swallowed.
func (c *ListCache) Put(ctx context.Context, domain, resource string, opts woocommerce.ListOptions, records []*woocommerce.Record, total int) {
	if Skip(opts) {
		return
	}

	payload, err := json.Marshal(cachedPage{Records: records, Total: total})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to marshal list cache entry")
		return
	}

	if err := c.client.Set(ctx, Key(domain, resource, opts), string(payload), c.ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to store list cache entry for %s %s", domain, resource)
	}
}

// Lister is the remote list surface the cache wraps
type Lister interface {
	Domain() string
	List(ctx context.Context, resource string, opts woocommerce.ListOptions) ([]*woocommerce.Record, int, error)
}

// ListThrough serves a list call through the cache. skipCache forces a
// remote read, used when the caller just wrote and needs to see it.
func (c *ListCache) ListThrough(ctx context.Context, lister Lister, resource string, opts woocommerce.ListOptions, skipCache bool) ([]*woocommerce.Record, int, error) {
	if !skipCache {
		records, total, ok := c.Get(ctx, lister.Domain(), resource, opts)
		metrics.RecordListCacheLookup(resource, ok)
		if ok {
			return records, total, nil
		}
	}

	records, total, err := lister.List(ctx, resource, opts)
	if err != nil {
		return nil, 0, err
	}

	c.Put(ctx, lister.Domain(), resource, opts, records, total)
	return records, total, nil
}
