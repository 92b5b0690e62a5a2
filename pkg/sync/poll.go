package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/kafka"
	"github.com/wooconduit/conduit/pkg/metrics"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

// summaryFields is the projection polling asks for; the full record is only
// fetched for entities that actually changed
var summaryFields = []string{"id", "date_modified", "date_modified_gmt"}

// PollItems scans one store for products modified since the last watermark
// and reconciles each one. The pass continues past per-record errors.
func (e *Engine) PollItems(ctx context.Context, server *models.WooCommerceServer) (*BatchReport, error) {
	return e.poll(ctx, server, models.SyncResourceProducts, "products", server.SyncItems,
		func(ctx context.Context, remoteID int64) (*Outcome, error) {
			return e.SyncItem(ctx, server, remoteID, false)
		})
}

// PollOrders scans one store for orders modified since the last watermark
func (e *Engine) PollOrders(ctx context.Context, server *models.WooCommerceServer) (*BatchReport, error) {
	return e.poll(ctx, server, models.SyncResourceOrders, "orders", server.SyncOrders,
		func(ctx context.Context, remoteID int64) (*Outcome, error) {
			return e.SyncOrder(ctx, server, remoteID, false)
		})
}

// PollServer runs both polling passes for one store
func (e *Engine) PollServer(ctx context.Context, server *models.WooCommerceServer) ([]*BatchReport, error) {
	reports := make([]*BatchReport, 0, 2)

	items, err := e.PollItems(ctx, server)
	if items != nil {
		reports = append(reports, items)
	}
	if err != nil && !woocommerce.IsSyncDisabled(err) {
		return reports, err
	}

	orders, err := e.PollOrders(ctx, server)
	if orders != nil {
		reports = append(reports, orders)
	}
	if err != nil && !woocommerce.IsSyncDisabled(err) {
		return reports, err
	}

	return reports, nil
}

func (e *Engine) poll(ctx context.Context, server *models.WooCommerceServer, resource models.SyncResource, remoteResource string, enabled bool, syncOne func(context.Context, int64) (*Outcome, error)) (*BatchReport, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncEngine.poll")
	defer span.End()

	report := &BatchReport{
		RunID:     uuid.New().String(),
		ServerID:  server.ID,
		Resource:  resource,
		StartedAt: time.Now().UTC(),
	}

	if !server.Enabled || !enabled {
		return report, &woocommerce.SyncDisabledError{ServerID: server.ID.String(), Reason: string(resource) + " sync disabled"}
	}

	client, err := e.clients.Get(ctx, server.ID)
	if err != nil {
		return report, err
	}

	state, err := e.syncStateRepo.Get(ctx, server.ID, resource)
	if err != nil {
		return report, err
	}

	opts := woocommerce.ListOptions{
		PerPage: client.PageLength(),
		Fields:  summaryFields,
		OrderBy: "modified",
		Order:   "asc",
	}
	if state != nil && state.LastSyncedAt != nil {
		opts.ModifiedAfter = state.LastSyncedAt
	}
	if resource == models.SyncResourceOrders && !e.config.MinOrderDate.IsZero() {
		after := e.config.MinOrderDate
		opts.After = &after
	}

	e.logger.WithContext(ctx).Infof("Polling %s on %s (run %s)", resource, server.Domain, report.RunID)

	// The watermark advances to the pass start, not its end, so records
	// modified while the pass runs are picked up again next time.
	passStart := report.StartedAt

	if err := e.pollPages(ctx, client, report, remoteResource, opts, syncOne); err != nil {
		report.CompletedAt = time.Now().UTC()
		if stateErr := e.syncStateRepo.RecordError(ctx, server.ID, resource, report.RunID, err.Error()); stateErr != nil {
			e.logger.WithContext(ctx).WithError(stateErr).Warn("Failed to record poll error")
		}
		return report, err
	}

	report.CompletedAt = time.Now().UTC()
	metrics.RecordPollBatch(server.ID.String(), string(resource), report.Processed())

	if err := e.syncStateRepo.Advance(ctx, server.ID, resource, passStart, report.RunID); err != nil {
		return report, err
	}

	e.publishPollReport(ctx, report)

	e.logger.WithContext(ctx).Infof("Poll of %s on %s done: processed=%d succeeded=%d skipped=%d failed=%d",
		resource, server.Domain, report.Processed(), report.Succeeded(), report.Skipped(), report.Failed())

	return report, nil
}

// pollPages walks the modified-since listing and reconciles each record
func (e *Engine) pollPages(ctx context.Context, client RemoteClient, report *BatchReport, remoteResource string, opts woocommerce.ListOptions, syncOne func(context.Context, int64) (*Outcome, error)) error {
	offset := 0
	for {
		opts.Offset = offset
		records, total, err := client.List(ctx, remoteResource, opts)
		if err != nil {
			return err
		}

		for _, record := range records {
			identity := woocommerce.Identity(client.Domain(), record.ID)

			if skip, err := e.alreadyReconciled(ctx, report.Resource, identity, record); err == nil && skip {
				report.Add(Outcome{
					Identity: identity,
					Resource: report.Resource,
					Action:   ActionSkipped,
					RunID:    report.RunID,
				})
				continue
			}

			outcome, err := syncOne(ctx, record.ID)
			if outcome == nil {
				outcome = &Outcome{
					Identity: identity,
					Resource: report.Resource,
					Action:   ActionFailed,
					RunID:    report.RunID,
					Error:    err,
				}
			}

			// Continue-past-errors: one bad record never aborts the batch
			if outcome.Failed() {
				e.logger.WithContext(ctx).WithError(outcome.Error).Warnf("Record failed during poll: %s", identity)
			}
			report.Add(*outcome)
		}

		offset += len(records)
		if len(records) == 0 || offset >= total {
			return nil
		}
	}
}

// alreadyReconciled checks the stored hash against the summary record so
// unchanged entities never cost a full fetch
func (e *Engine) alreadyReconciled(ctx context.Context, resource models.SyncResource, identity string, record *woocommerce.Record) (bool, error) {
	if record.RawDateModified == "" {
		return false, nil
	}

	switch resource {
	case models.SyncResourceProducts:
		link, err := e.itemRepo.GetLinkByIdentity(ctx, identity)
		if err != nil {
			return false, err
		}
		return link != nil && link.SyncHash != "" && link.SyncHash == record.RawDateModified, nil

	case models.SyncResourceOrders:
		order, err := e.orderRepo.GetByIdentity(ctx, identity)
		if err != nil {
			return false, err
		}
		return order != nil && order.SyncHash != "" && order.SyncHash == record.RawDateModified, nil

	default:
		return false, nil
	}
}

func (e *Engine) publishPollReport(ctx context.Context, report *BatchReport) {
	if e.producer == nil {
		return
	}

	_ = e.producer.PublishPollEvent(ctx, &kafka.PollEventMessage{
		Type:      "poll.completed",
		ServerID:  report.ServerID.String(),
		Resource:  string(report.Resource),
		RunID:     report.RunID,
		Processed: report.Processed(),
		Succeeded: report.Succeeded(),
		Skipped:   report.Skipped(),
		Failed:    report.Failed(),
		Timestamp: report.CompletedAt,
	})
}
