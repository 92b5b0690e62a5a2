package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/wooconduit/conduit/pkg/context"
	"github.com/wooconduit/conduit/pkg/metrics"
	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/queue"
	"github.com/wooconduit/conduit/pkg/redis"
	syncengine "github.com/wooconduit/conduit/pkg/sync"
	"github.com/wooconduit/conduit/pkg/tracing"
)

var (
	// ErrSchedulerStopped is returned when the scheduler is stopped
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between scheduling runs
	DefaultPollInterval = 30 * time.Second

	// DefaultLockTTL is the default TTL for distributed locks
	DefaultLockTTL = 60 * time.Second

	// DefaultBatchSize is the number of server/resource pairs to fetch per cycle
	DefaultBatchSize = 100

	// LockKeyPrefix is the prefix for scheduler locks
	LockKeyPrefix = "scheduler:poll:"
)

// SchedulablePoll is one (server, resource) polling pass that is due
type SchedulablePoll struct {
	ServerID     uuid.UUID
	Domain       string
	Resource     models.SyncResource
	LastSyncedAt *time.Time
}

// PollRepository defines the interface for scheduler data access. It spans
// all servers, unlike the store-scoped repositories.
type PollRepository interface {
	// ListDuePolls returns all enabled (server, resource) pairs due for a pass
	ListDuePolls(ctx context.Context, limit int) ([]SchedulablePoll, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often to check for due passes
	PollInterval time.Duration

	// LockTTL is how long to hold the lock for one (server, resource) pair
	LockTTL time.Duration

	// BatchSize is the maximum number of passes to schedule per cycle
	BatchSize int

	// JobQueue is the Redis Streams queue name
	JobQueue string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		LockTTL:      DefaultLockTTL,
		BatchSize:    DefaultBatchSize,
		JobQueue:     "conduit:jobs",
	}
}

// Scheduler fans due polling passes out to the job queue. The per-pair lock
// keeps multiple instances from enqueueing the same pass twice.
type Scheduler struct {
	repo    PollRepository
	streams *redis.Streams
	locker  *redis.Locker
	config  Config
	logger  ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(
	repo PollRepository,
	streams *redis.Streams,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	// Apply defaults
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.JobQueue == "" {
		config.JobQueue = "conduit:jobs"
	}

	return &Scheduler{
		repo:     repo,
		streams:  streams,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Scheduler.Start")
	defer span.End()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s batch_size=%d",
		s.config.PollInterval, s.config.BatchSize)

	// Start the polling loop
	go s.pollLoop(ctx)

	s.logger.WithContext(ctx).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	// Wait for graceful shutdown with timeout
	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// pollLoop continuously checks for due polling passes
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.runSchedulingCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ticker.C:
			s.runSchedulingCycle(ctx)
		}
	}
}

// runSchedulingCycle runs a single scheduling cycle
func (s *Scheduler) runSchedulingCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runSchedulingCycle")
	defer span.End()

	start := time.Now()
	s.logger.WithContext(ctx).Debug("Running scheduling cycle")

	// Fetch due passes
	polls, err := s.repo.ListDuePolls(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list due polls")
		return
	}

	if len(polls) == 0 {
		s.logger.WithContext(ctx).Debug("No polls due")
		return
	}

	s.logger.WithContext(ctx).Infof("Found %d polls due", len(polls))

	// Schedule each pass
	scheduled := 0
	skipped := 0
	for _, poll := range polls {
		if err := s.schedulePoll(ctx, poll); err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				skipped++
				continue
			}
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to schedule %s poll for %s",
				poll.Resource, poll.Domain)
			continue
		}
		scheduled++
	}

	metrics.SchedulerPollsScheduled.Add(float64(scheduled))

	duration := time.Since(start)
	s.logger.WithContext(ctx).Infof("Scheduling cycle completed: scheduled=%d skipped=%d duration=%s",
		scheduled, skipped, duration)
}

// schedulePoll enqueues a single (server, resource) polling pass
func (s *Scheduler) schedulePoll(ctx context.Context, poll SchedulablePoll) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.schedulePoll")
	defer span.End()

	// One lock per (server, resource) pair
	lockKey := s.lockKey(poll.ServerID, poll.Resource)

	// Try to acquire the lock
	lock, err := s.locker.Acquire(ctx, lockKey, s.config.LockTTL)
	if err != nil {
		return err
	}
	// Release after publishing; the engine holds its own per-identity locks
	defer lock.Release(ctx)

	// Set server context for logging
	ctx = appctx.SetServerID(ctx, poll.ServerID.String())

	s.logger.WithContext(ctx).Debugf("Scheduling %s poll for %s", poll.Resource, poll.Domain)

	jobType := syncengine.JobTypeItemsPoll
	if poll.Resource == models.SyncResourceOrders {
		jobType = syncengine.JobTypeOrdersPoll
	}

	// Publish to the queue
	messageID, err := queue.PublishPoll(ctx, s.streams, s.config.JobQueue, poll.ServerID, jobType)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %s poll for %s",
			poll.Resource, poll.Domain)
		return err
	}

	s.logger.WithContext(ctx).Infof("Scheduled %s poll for %s (message_id=%s)",
		poll.Resource, poll.Domain, messageID)

	return nil
}

// lockKey generates a lock key for a (server, resource) pair
func (s *Scheduler) lockKey(serverID uuid.UUID, resource models.SyncResource) string {
	return LockKeyPrefix + serverID.String() + ":" + string(resource)
}
