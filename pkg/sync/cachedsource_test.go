package sync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/cache"
	"github.com/wooconduit/conduit/pkg/httpclient"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/redis"
	syncpkg "github.com/wooconduit/conduit/pkg/sync"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

type staticServerSource struct {
	server *models.WooCommerceServer
}

func (s staticServerSource) GetServer(ctx context.Context, id uuid.UUID) (*models.WooCommerceServer, error) {
	return s.server, nil
}

func (s staticServerSource) ListEnabledServers(ctx context.Context) ([]*models.WooCommerceServer, error) {
	return []*models.WooCommerceServer{s.server}, nil
}

func TestCachedRegistrySource_ListsServedFromCache(t *testing.T) {
	hits := map[string]int{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		w.Header().Set("X-WP-Total", "1")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 201, "sku": "SHIRT-L", "date_modified_gmt": "2026-01-10T08:05:00"},
		})
	}))
	defer ts.Close()

	server := newTestServer()
	server.URL = ts.URL
	server.ConsumerKey = "ck_test"
	server.ConsumerSecret = "cs_test"
	require.NoError(t, server.NormalizeURL())

	logger := testLogger()
	registry := woocommerce.NewRegistry(
		staticServerSource{server},
		httpclient.NewClient(httpclient.DefaultConfig(), logger),
		nil, nil, 100, logger,
	)

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	redisClient, err := redis.NewClient(redis.Config{Host: mr.Host(), Port: port}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	source := syncpkg.NewCachedRegistrySource(registry, cache.NewListCache(redisClient, time.Minute, logger))
	client, err := source.Get(context.Background(), server.ID)
	require.NoError(t, err)

	ctx := context.Background()
	opts := woocommerce.ListOptions{PerPage: 50}

	records, total, err := client.List(ctx, "products", opts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, total)
	_, _, err = client.List(ctx, "products", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, hits["/wp-json/wc/v3/products"], "second product list should come from the cache")

	records, _, err = client.ListVariations(ctx, 200, opts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(201), records[0].ID)
	_, _, err = client.ListVariations(ctx, 200, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, hits["/wp-json/wc/v3/products/200/variations"], "second variation list should come from the cache")
}
