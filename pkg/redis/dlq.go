package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/tracing"
)

const (
	// DefaultDLQStream is the default dead letter queue stream name.
	DefaultDLQStream = "conduit:dlq"

	// DLQMaxLen caps the DLQ stream. Oldest entries are trimmed first, so a
	// store that fails every job for a week cannot fill Redis.
	DLQMaxLen = 10000
)

// DLQEntry is one failed sync job, kept with enough context to retry it or
// understand why it died.
type DLQEntry struct {
	ID           string                  `json:"id"`
	ServerID     string                  `json:"server_id"`
	JobType      string                  `json:"job_type"`
	Identity     string                  `json:"identity,omitempty"`
	RunID        string                  `json:"run_id,omitempty"`
	OriginalJob  *JobMessage             `json:"original_job"`
	Reason       models.DeadLetterReason `json:"reason"`
	ErrorMessage string                  `json:"error_message"`
	RetryCount   int                     `json:"retry_count"`
	CreatedAt    time.Time               `json:"created_at"`
	TraceID      string                  `json:"trace_id,omitempty"`
}

// DeadLetterQueue stores jobs that failed permanently. Entries keep the
// original job message so an operator can re-enqueue it unchanged after
// fixing the underlying problem.
type DeadLetterQueue struct {
	client *Client
	stream string
	logger ectologger.Logger
}

// NewDeadLetterQueue creates a DLQ on the given stream.
func NewDeadLetterQueue(client *Client, stream string, logger ectologger.Logger) *DeadLetterQueue {
	if stream == "" {
		stream = DefaultDLQStream
	}
	return &DeadLetterQueue{client: client, stream: stream, logger: logger}
}

// Add appends a failed job to the queue and returns the stream message ID.
func (d *DeadLetterQueue) Add(ctx context.Context, entry *DLQEntry) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Add")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal DLQ entry: %w", err)
	}

	// server_id, job_type and reason are duplicated as plain fields so
	// stats and filters never have to decode the JSON blob.
	messageID, err := d.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: DLQMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"server_id": entry.ServerID,
			"job_type":  entry.JobType,
			"reason":    string(entry.Reason),
		},
	}).Result()
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Failed to add job to DLQ")
		return "", fmt.Errorf("failed to add to DLQ: %w", err)
	}

	d.logger.WithContext(ctx).Infof("Added job to DLQ: id=%s type=%s reason=%s", entry.ID, entry.JobType, entry.Reason)
	return messageID, nil
}

// List returns the newest entries, most recent first.
func (d *DeadLetterQueue) List(ctx context.Context, count int64) ([]DLQEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.List")
	defer span.End()

	if count <= 0 {
		count = 100
	}

	messages, err := d.client.rdb.XRevRangeN(ctx, d.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	entries := make([]DLQEntry, 0, len(messages))
	for _, msg := range messages {
		entry, ok := d.decode(ctx, msg)
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ListByServer returns the newest entries for one WooCommerce server.
func (d *DeadLetterQueue) ListByServer(ctx context.Context, serverID string, count int64) ([]DLQEntry, error) {
	// Over-fetch and filter. The DLQ is capped and small, so scanning a
	// multiple of the page beats maintaining per-server streams.
	entries, err := d.List(ctx, count*2)
	if err != nil {
		return nil, err
	}

	filtered := make([]DLQEntry, 0)
	for _, entry := range entries {
		if entry.ServerID == serverID {
			filtered = append(filtered, entry)
			if int64(len(filtered)) >= count {
				break
			}
		}
	}
	return filtered, nil
}

// Get retrieves one entry by stream message ID. Returns nil when no entry
// exists at that ID.
func (d *DeadLetterQueue) Get(ctx context.Context, messageID string) (*DLQEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Get")
	defer span.End()

	messages, err := d.client.rdb.XRange(ctx, d.stream, messageID, messageID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ entry: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	entry, ok := d.decode(ctx, messages[0])
	if !ok {
		return nil, fmt.Errorf("invalid DLQ entry format")
	}
	return &entry, nil
}

// Delete removes an entry.
func (d *DeadLetterQueue) Delete(ctx context.Context, messageID string) error {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Delete")
	defer span.End()

	count, err := d.client.rdb.XDel(ctx, d.stream, messageID).Result()
	if err != nil {
		return fmt.Errorf("failed to delete DLQ entry: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("DLQ entry not found: %s", messageID)
	}

	d.logger.WithContext(ctx).Infof("Deleted DLQ entry: %s", messageID)
	return nil
}

// Count returns the number of entries in the queue.
func (d *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return d.client.rdb.XLen(ctx, d.stream).Result()
}

// CountByReason tallies the queue by failure reason, using the plain reason
// field written at Add time.
func (d *DeadLetterQueue) CountByReason(ctx context.Context) (map[string]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "DLQ.CountByReason")
	defer span.End()

	messages, err := d.client.rdb.XRange(ctx, d.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	counts := make(map[string]int64)
	for _, msg := range messages {
		reason, ok := msg.Values["reason"].(string)
		if !ok || reason == "" {
			reason = string(models.DLQReasonUnknown)
		}
		counts[reason]++
	}
	return counts, nil
}

// Retry re-enqueues an entry's original job on the main queue and removes
// the entry. Attempts are reset so the job gets a full set of retries.
func (d *DeadLetterQueue) Retry(ctx context.Context, messageID string, jobQueue *Streams, queueName string) error {
	ctx, span := tracing.StartSpan(ctx, "DLQ.Retry")
	defer span.End()

	entry, err := d.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("DLQ entry not found: %s", messageID)
	}
	if entry.OriginalJob == nil {
		return fmt.Errorf("DLQ entry has no original job: %s", messageID)
	}

	entry.OriginalJob.Attempts = 0

	if _, err := jobQueue.Publish(ctx, queueName, entry.OriginalJob); err != nil {
		return fmt.Errorf("failed to re-enqueue job: %w", err)
	}

	if err := d.Delete(ctx, messageID); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warn("Failed to delete DLQ entry after retry")
	}

	d.logger.WithContext(ctx).Infof("Retried DLQ entry: %s type=%s", messageID, entry.JobType)
	return nil
}

func (d *DeadLetterQueue) decode(ctx context.Context, msg redis.XMessage) (DLQEntry, bool) {
	var entry DLQEntry

	data, ok := msg.Values["data"].(string)
	if !ok {
		return entry, false
	}
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		d.logger.WithContext(ctx).WithError(err).Warnf("Failed to unmarshal DLQ entry: %s", msg.ID)
		return entry, false
	}
	return entry, true
}
