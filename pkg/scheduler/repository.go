package scheduler

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const (
	// DefaultWaitSeconds is the default wait time between polling passes if
	// not specified
	DefaultWaitSeconds = 300 // 5 minutes
)

// PollRepositoryImpl implements PollRepository across all servers. This is a
// system-level repository not scoped to a single store.
type PollRepositoryImpl struct {
	db     database.DB
	logger ectologger.Logger
}

// NewPollRepository creates a new poll repository
func NewPollRepository(db database.DB, logger ectologger.Logger) *PollRepositoryImpl {
	return &PollRepositoryImpl{
		db:     db,
		logger: logger,
	}
}

// ListDuePolls returns all enabled (server, resource) pairs whose last pass
// is older than the poll interval. Each enabled server contributes a
// products row and an orders row, gated by its per-resource sync flags.
func (r *PollRepositoryImpl) ListDuePolls(ctx context.Context, limit int) ([]SchedulablePoll, error) {
	ctx, span := tracing.StartSpan(ctx, "PollRepository.ListDuePolls")
	defer span.End()

	// This query:
	// 1. Fans every enabled server out to one row per sync resource
	// 2. Left joins sync_states to get the last pass watermark
	// 3. Filters for passes that are due (never ran OR watermark + wait < now)
	query := `
		SELECT
			s.id AS server_id,
			s.domain,
			res.resource,
			st.last_synced_at
		FROM woocommerce_servers s
		CROSS JOIN (VALUES ('products'), ('orders')) AS res(resource)
		LEFT JOIN sync_states st ON st.server_id = s.id AND st.resource = res.resource
		WHERE s.enabled = true
		AND (
			(res.resource = 'products' AND s.sync_items = true)
			OR (res.resource = 'orders' AND s.sync_orders = true)
		)
		AND (
			st.last_synced_at IS NULL
			OR st.last_synced_at + ($1 * INTERVAL '1 second') < NOW()
		)
		ORDER BY st.last_synced_at ASC NULLS FIRST
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, DefaultWaitSeconds, limit)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to query due polls")
		return nil, err
	}
	defer rows.Close()

	var polls []SchedulablePoll
	for rows.Next() {
		var poll SchedulablePoll
		var lastSynced *time.Time

		err := rows.Scan(
			&poll.ServerID,
			&poll.Domain,
			&poll.Resource,
			&lastSynced,
		)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to scan due poll")
			continue
		}

		poll.LastSyncedAt = lastSynced
		polls = append(polls, poll)
	}

	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Error iterating due polls")
		return nil, err
	}

	r.logger.WithContext(ctx).Debugf("Found %d due polls", len(polls))
	return polls, nil
}
