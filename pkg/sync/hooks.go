package sync

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/redis"
	"github.com/wooconduit/conduit/pkg/repositories"
	"github.com/wooconduit/conduit/pkg/tracing"
)

// Job types consumed by the queue processor
const (
	JobTypeItemSync   = "item_sync"
	JobTypeOrderSync  = "order_sync"
	JobTypeItemsPoll  = "items_poll"
	JobTypeOrdersPoll = "orders_poll"
)

// Notifier reacts to local writes. It blanks the affected sync hashes so the
// next run always resolves, then enqueues a background sync per link.
type Notifier struct {
	itemRepo  repositories.ItemRepo
	orderRepo repositories.OrderRepo
	streams   *redis.Streams
	jobQueue  string
	logger    ectologger.Logger
}

// NewNotifier creates a local-write notifier
func NewNotifier(itemRepo repositories.ItemRepo, orderRepo repositories.OrderRepo, streams *redis.Streams, jobQueue string, logger ectologger.Logger) *Notifier {
	return &Notifier{
		itemRepo:  itemRepo,
		orderRepo: orderRepo,
		streams:   streams,
		jobQueue:  jobQueue,
		logger:    logger,
	}
}

// ItemChanged is called after a local item write. Every link of the item is
// forced out of the reconciled state and queued for a push pass.
func (n *Notifier) ItemChanged(ctx context.Context, itemID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "Notifier.ItemChanged")
	defer span.End()

	if err := n.itemRepo.ClearSyncHashes(ctx, itemID); err != nil {
		return fmt.Errorf("failed to clear sync hashes for item %s: %w", itemID, err)
	}

	links, err := n.itemRepo.ListLinksByItem(ctx, itemID)
	if err != nil {
		return err
	}

	for _, link := range links {
		if !link.Enabled {
			continue
		}

		job := &redis.JobMessage{
			ServerID: link.ServerID.String(),
			Type:     JobTypeItemSync,
			Payload: map[string]interface{}{
				"identity": link.Identity,
			},
		}
		if _, err := n.streams.Publish(ctx, n.jobQueue, job); err != nil {
			return fmt.Errorf("failed to enqueue item sync for %s: %w", link.Identity, err)
		}
	}

	n.logger.WithContext(ctx).Debugf("Queued %d item sync jobs for item %s", len(links), itemID)
	return nil
}

// OrderChanged is called after a local order write
func (n *Notifier) OrderChanged(ctx context.Context, orderID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "Notifier.OrderChanged")
	defer span.End()

	order, err := n.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if err := n.orderRepo.SetSyncHash(ctx, order.ID, ""); err != nil {
		return fmt.Errorf("failed to clear sync hash for order %s: %w", order.Identity, err)
	}

	job := &redis.JobMessage{
		ServerID: order.ServerID.String(),
		Type:     JobTypeOrderSync,
		Payload: map[string]interface{}{
			"identity": order.Identity,
		},
	}
	if _, err := n.streams.Publish(ctx, n.jobQueue, job); err != nil {
		return fmt.Errorf("failed to enqueue order sync for %s: %w", order.Identity, err)
	}

	return nil
}
