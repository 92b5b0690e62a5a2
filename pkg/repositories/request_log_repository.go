package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/wooconduit/conduit/pkg/database"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const requestLogsTable = "request_logs"

var requestLogStruct = database.NewStruct(new(models.RequestLog))

// RequestLogRepository persists the remote request log
type RequestLogRepository struct {
	*Repository
}

// NewRequestLogRepository creates a new request log repository
func NewRequestLogRepository(db database.DB, logger ectologger.Logger) *RequestLogRepository {
	return &RequestLogRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts one log row
func (r *RequestLogRepository) Create(ctx context.Context, log *models.RequestLog) error {
	ctx, span := tracing.StartSpan(ctx, "RequestLogRepository.Create")
	defer span.End()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(requestLogsTable).
		Cols("id", "server_id", "method", "endpoint", "status_code", "duration_ms", "error", "created_at").
		Values(log.ID, log.ServerID, log.Method, log.Endpoint, log.StatusCode, log.DurationMs, log.Error,
			sqlbuilder.Raw("NOW()"))

	query, args := ib.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": log.ServerID,
		}).Error("failed to create request log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create request log")
	}

	return nil
}

// RecordRequest implements the client's request recorder. Failures are only
// logged; the request log must never break a sync.
func (r *RequestLogRepository) RecordRequest(ctx context.Context, log *models.RequestLog) {
	if err := r.Create(ctx, log); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Dropped request log entry")
	}
}

// ListByServer returns the newest log rows for a server
func (r *RequestLogRepository) ListByServer(ctx context.Context, serverID uuid.UUID, limit int) ([]models.RequestLog, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestLogRepository.ListByServer")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	sb := requestLogStruct.SelectFrom(requestLogsTable)
	sb.Where(sb.Equal("server_id", serverID))
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	logs := []models.RequestLog{}
	if err := r.DB().SelectContext(ctx, &logs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"server_id": serverID,
		}).Error("failed to list request logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list request logs")
	}

	return logs, nil
}

// Prune deletes log rows older than the retention window
func (r *RequestLogRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestLogRepository.Prune")
	defer span.End()

	query := `DELETE FROM request_logs WHERE created_at < NOW() - make_interval(secs => $1)`
	result, err := r.DB().ExecContext(ctx, query, olderThan.Seconds())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to prune request logs")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to prune request logs")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
