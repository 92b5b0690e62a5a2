package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const syncStatesTable = "sync_states"

var syncStateStruct = database.NewStruct(new(models.SyncState))

// SyncStateRepository handles the per-server per-resource polling watermarks
type SyncStateRepository struct {
	*Repository
}

// NewSyncStateRepository creates a new sync state repository
func NewSyncStateRepository(db database.DB, logger ectologger.Logger) *SyncStateRepository {
	return &SyncStateRepository{
		Repository: NewRepository(db, logger),
	}
}

// Get retrieves the state row for a server and resource. Returns nil when no
// pass has run yet.
func (r *SyncStateRepository) Get(ctx context.Context, serverID uuid.UUID, resource models.SyncResource) (*models.SyncState, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncStateRepository.Get")
	defer span.End()

	sb := syncStateStruct.SelectFrom(syncStatesTable)
	sb.Where(sb.Equal("server_id", serverID), sb.Equal("resource", resource))

	query, args := sb.Build()
	var state models.SyncState
	err := r.DB().GetContext(ctx, &state, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": serverID,
			"resource":  resource,
		}).Error("failed to get sync state")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync state")
	}

	return &state, nil
}

// Advance moves the watermark forward after a successful pass
func (r *SyncStateRepository) Advance(ctx context.Context, serverID uuid.UUID, resource models.SyncResource, syncedAt time.Time, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "SyncStateRepository.Advance")
	defer span.End()

	query := `
		INSERT INTO sync_states (id, server_id, resource, last_synced_at, last_run_id, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', NOW(), NOW())
		ON CONFLICT (server_id, resource) DO UPDATE
		SET last_synced_at = EXCLUDED.last_synced_at,
		    last_run_id = EXCLUDED.last_run_id,
		    last_error = '',
		    updated_at = NOW()`

	if _, err := r.DB().ExecContext(ctx, query, uuid.New(), serverID, resource, syncedAt, runID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": serverID,
			"resource":  resource,
		}).Error("failed to advance sync state")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to advance sync state")
	}

	return nil
}

// RecordError stores the failure on the state row without moving the
// watermark, so the next pass replays the same window.
func (r *SyncStateRepository) RecordError(ctx context.Context, serverID uuid.UUID, resource models.SyncResource, runID string, errMsg string) error {
	ctx, span := tracing.StartSpan(ctx, "SyncStateRepository.RecordError")
	defer span.End()

	query := `
		INSERT INTO sync_states (id, server_id, resource, last_run_id, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (server_id, resource) DO UPDATE
		SET last_run_id = EXCLUDED.last_run_id,
		    last_error = EXCLUDED.last_error,
		    updated_at = NOW()`

	if _, err := r.DB().ExecContext(ctx, query, uuid.New(), serverID, resource, runID, errMsg); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": serverID,
			"resource":  resource,
		}).Error("failed to record sync error")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record sync error")
	}

	return nil
}
