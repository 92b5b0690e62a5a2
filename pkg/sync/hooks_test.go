package sync_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/redis"
	syncpkg "github.com/wooconduit/conduit/pkg/sync"
)

func testStreams(t *testing.T) *redis.Streams {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := redis.NewClient(redis.Config{Host: mr.Host(), Port: port}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewStreams(client)
}

func TestNotifier_ItemChanged(t *testing.T) {
	ctx := context.Background()
	items := newFakeItemRepo()
	streams := testStreams(t)
	notifier := syncpkg.NewNotifier(items, newFakeOrderRepo(), streams, "jobs:sync", testLogger())

	item := &models.Item{Code: "MUG-BLUE", Name: "Blue Mug", Type: models.ItemTypeSimple}
	require.NoError(t, items.Create(ctx, item))

	serverA := uuid.New()
	serverB := uuid.New()
	for i, serverID := range []uuid.UUID{serverA, serverB} {
		link := &models.ItemLink{
			ItemID:   item.ID,
			ServerID: serverID,
			Identity: "shop" + strconv.Itoa(i) + ".example.com~101",
			RemoteID: 101,
			Enabled:  true,
		}
		require.NoError(t, items.CreateLink(ctx, link))
		require.NoError(t, items.SetSyncHash(ctx, link.ID, "2026-01-10T08:00:00"))
	}

	// One disabled link must not produce a job
	disabled := &models.ItemLink{
		ItemID:   item.ID,
		ServerID: uuid.New(),
		Identity: "off.example.com~101",
		RemoteID: 101,
		Enabled:  false,
	}
	require.NoError(t, items.CreateLink(ctx, disabled))

	require.NoError(t, notifier.ItemChanged(ctx, item.ID))

	// Every hash is blanked so the next pass resolves
	links, err := items.ListLinksByItem(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, links, 3)
	for _, link := range links {
		assert.Empty(t, link.SyncHash)
	}

	messages, err := streams.Range(ctx, "jobs:sync", "-", "+")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	for _, msg := range messages {
		assert.Equal(t, syncpkg.JobTypeItemSync, msg.Payload["type"])
		payload, ok := msg.Payload["payload"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, payload["identity"], ".example.com~101")
	}
}

func TestNotifier_OrderChanged(t *testing.T) {
	ctx := context.Background()
	orders := newFakeOrderRepo()
	streams := testStreams(t)
	notifier := syncpkg.NewNotifier(newFakeItemRepo(), orders, streams, "jobs:sync", testLogger())

	serverID := uuid.New()
	order := &models.SalesOrder{
		Name:     "shop.example.com~500",
		Identity: "shop.example.com~500",
		ServerID: serverID,
		RemoteID: 500,
		Status:   models.OrderStatusProcessing,
	}
	require.NoError(t, orders.Create(ctx, order))
	require.NoError(t, orders.SetSyncHash(ctx, order.ID, "2026-01-10T10:00:00"))

	require.NoError(t, notifier.OrderChanged(ctx, order.ID))

	stored, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.SyncHash)

	messages, err := streams.Range(ctx, "jobs:sync", "-", "+")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, syncpkg.JobTypeOrderSync, messages[0].Payload["type"])
	assert.Equal(t, serverID.String(), messages[0].Payload["server_id"])
}
