package sync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func TestPollItems_SyncsModifiedRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-10T08:00:00", map[string]interface{}{
		"name": "Blue Mug", "sku": "MUG-BLUE",
	})
	env.client.products[102] = productRecord(t, 102, "2026-01-10T09:00:00", map[string]interface{}{
		"name": "Red Mug", "sku": "MUG-RED",
	})

	report, err := env.engine.PollItems(ctx, env.server)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed())
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 0, report.Failed())

	for _, code := range []string{"MUG-BLUE", "MUG-RED"} {
		item, err := env.items.GetByCode(ctx, code)
		require.NoError(t, err)
		require.NotNil(t, item, code)
	}

	// The watermark lands on the pass start so mid-pass edits are re-seen
	state, err := env.states.Get(ctx, env.server.ID, models.SyncResourceProducts)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastSyncedAt)
	assert.Equal(t, report.StartedAt, *state.LastSyncedAt)
	assert.Equal(t, report.RunID, state.LastRunID)
}

func TestPollItems_SkipsReconciledRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-10T08:00:00", map[string]interface{}{
		"name": "Blue Mug", "sku": "MUG-BLUE",
	})
	_, err := env.engine.SyncItem(ctx, env.server, 101, false)
	require.NoError(t, err)

	report, err := env.engine.PollItems(ctx, env.server)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed())
	assert.Equal(t, 1, report.Skipped())
	assert.Equal(t, 0, report.Succeeded())
}

func TestPollItems_ContinuesPastErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 101 points at a parent that no longer exists, so it fails; 102 is fine
	env.client.products[101] = productRecord(t, 101, "2026-01-10T08:00:00", map[string]interface{}{
		"sku":       "SHIRT-L",
		"parent_id": float64(999),
	})
	env.client.products[102] = productRecord(t, 102, "2026-01-10T09:00:00", map[string]interface{}{
		"name": "Red Mug", "sku": "MUG-RED",
	})

	report, err := env.engine.PollItems(ctx, env.server)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Succeeded())

	item, err := env.items.GetByCode(ctx, "MUG-RED")
	require.NoError(t, err)
	require.NotNil(t, item)

	// A partial failure still advances the watermark
	state, err := env.states.Get(ctx, env.server.ID, models.SyncResourceProducts)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastSyncedAt)
}

func TestPollItems_WatermarkFiltersUnmodified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-10T08:00:00", map[string]interface{}{
		"name": "Blue Mug", "sku": "MUG-BLUE",
	})

	watermark := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.states.Advance(ctx, env.server.ID, models.SyncResourceProducts, watermark, "prior-run"))

	report, err := env.engine.PollItems(ctx, env.server)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed())

	item, err := env.items.GetByCode(ctx, "MUG-BLUE")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestPollItems_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.server.SyncItems = false

	_, err := env.engine.PollItems(context.Background(), env.server)
	require.Error(t, err)
	assert.True(t, woocommerce.IsSyncDisabled(err))
}

func TestPollOrders_SyncsModifiedOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.client.orders[500] = orderRecord(t, 500, "2026-01-10T10:00:00", map[string]interface{}{
		"customer_id": float64(0),
		"total":       "10.00",
		"billing":     sameAddress(),
		"line_items":  []interface{}{},
	})

	report, err := env.engine.PollOrders(ctx, env.server)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed())
	assert.Equal(t, 1, report.Succeeded())

	order, err := env.orders.GetByIdentity(ctx, "shop.example.com~500")
	require.NoError(t, err)
	require.NotNil(t, order)
}

func TestPollServer_ToleratesDisabledPasses(t *testing.T) {
	env := newTestEnv(t)
	env.server.SyncOrders = false
	ctx := context.Background()

	env.client.products[101] = productRecord(t, 101, "2026-01-10T08:00:00", map[string]interface{}{
		"name": "Blue Mug", "sku": "MUG-BLUE",
	})

	reports, err := env.engine.PollServer(ctx, env.server)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, models.SyncResourceProducts, reports[0].Resource)
	assert.Equal(t, 1, reports[0].Succeeded())
	assert.Equal(t, 0, reports[1].Processed())
}

func TestPollItems_FailsWhenClientUnavailable(t *testing.T) {
	env := newTestEnv(t)

	// A server with no registered client cannot be polled at all
	unknown := newTestServer()
	_, err := env.engine.PollItems(context.Background(), unknown)
	require.Error(t, err)
	assert.False(t, woocommerce.IsSyncDisabled(err))
}
