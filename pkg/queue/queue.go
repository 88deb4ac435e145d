// Package queue implements the durable task dispatcher: a handler
// registry over internal/db's SKIP LOCKED leasing queue, with
// heartbeat-based lease extension and backoff-based retry. The run
// loop runs once at start, then on every tick, until ctx is
// cancelled.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/pkg/apierrors"
)

// Handler processes one leased job's payload. A returned apierrors.Error
// with CodePermanent fails the job immediately; any other error (or a
// plain error) nacks it for retry with exponential backoff.
type Handler func(ctx context.Context, job db.QueuedJob) error

// Dispatcher pulls leased jobs from the queue table and runs them against
// registered handlers, by task_type.
type Dispatcher struct {
	pool        *pgxpool.Pool
	q           *db.Queries
	logger      *slog.Logger
	workerID    string
	leaseTTL    time.Duration
	pollEvery   time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	handlers    map[string]Handler
}

// New builds a Dispatcher bound to pool, with handlers registered by
// task_type before Run is called.
func New(pool *pgxpool.Pool, logger *slog.Logger, workerID string) *Dispatcher {
	return &Dispatcher{
		pool:        pool,
		q:           db.New(pool),
		logger:      logger,
		workerID:    workerID,
		leaseTTL:    30 * time.Second,
		pollEvery:   2 * time.Second,
		baseBackoff: 5 * time.Second,
		maxBackoff:  15 * time.Minute,
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to a task_type. Registering the same type
// twice replaces the previous handler.
func (d *Dispatcher) Register(taskType string, h Handler) {
	d.handlers[taskType] = h
}

// Enqueue inserts a new pending job.
func (d *Dispatcher) Enqueue(ctx context.Context, arg db.EnqueueJobParams) (db.QueuedJob, error) {
	return d.q.EnqueueJob(ctx, arg)
}

// Run polls for work until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("queue dispatcher started", "worker", d.workerID, "poll_interval", d.pollEvery)
	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	d.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("queue dispatcher stopped", "worker", d.workerID)
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain dequeues and processes jobs until the queue reports empty;
// dequeue on an empty table returns nothing and does not block.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		job, ok, err := d.q.DequeueJob(ctx, d.workerID, d.leaseTTL, d.taskTypes())
		if err != nil {
			d.logger.Error("dequeue failed", "error", err)
			return
		}
		if !ok {
			return
		}
		d.process(ctx, job)
	}
}

func (d *Dispatcher) taskTypes() []string {
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	return types
}

func (d *Dispatcher) process(ctx context.Context, job db.QueuedJob) {
	h, ok := d.handlers[job.TaskType]
	if !ok {
		d.logger.Error("no handler registered for task type", "task_type", job.TaskType, "job_id", job.ID)
		_ = d.q.NackJob(ctx, job.ID, d.baseBackoff)
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go d.heartbeat(hbCtx, job)

	err := h(ctx, job)
	if err == nil {
		if err := d.q.CompleteJob(ctx, job.ID); err != nil {
			d.logger.Error("completing job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	if apiErr, ok := apierrors.As(err); ok && apiErr.Code == apierrors.CodePermanent {
		d.logger.Error("job failed permanently", "job_id", job.ID, "task_type", job.TaskType, "error", err)
		if failErr := d.q.FailJobPermanently(ctx, job.ID); failErr != nil {
			d.logger.Error("marking job failed", "job_id", job.ID, "error", failErr)
		}
		return
	}

	backoff := exponentialBackoff(d.baseBackoff, d.maxBackoff, job.RetryCount)
	d.logger.Warn("job failed, retrying", "job_id", job.ID, "task_type", job.TaskType, "retry_count", job.RetryCount, "backoff", backoff, "error", err)
	if nackErr := d.q.NackJob(ctx, job.ID, backoff); nackErr != nil {
		d.logger.Error("nacking job", "job_id", job.ID, "error", nackErr)
	}
}

// heartbeat extends a job's lease at two-thirds of the TTL until the
// handler returns, so long-running handlers don't lose their lease to
// the reclaimer.
func (d *Dispatcher) heartbeat(ctx context.Context, job db.QueuedJob) {
	interval := d.leaseTTL * 2 / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.q.HeartbeatLease(ctx, job.ID, d.workerID, d.leaseTTL); err != nil {
				d.logger.Warn("heartbeat failed", "job_id", job.ID, "error", err)
				return
			}
		}
	}
}

// exponentialBackoff computes 2^retryCount * base, capped at max, then
// applies full jitter.
func exponentialBackoff(base, max time.Duration, retryCount int32) time.Duration {
	mult := math.Pow(2, float64(retryCount))
	backoff := time.Duration(float64(base) * mult)
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}

// RunSingletonTask acquires the advisory lock for key, runs fn while
// holding it, and releases it afterward. Used by the singleton
// background tasks (catalog flush, SIEM export, harvest, reclaim,
// cleanup) so only one replica runs each at a time.
func RunSingletonTask(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, key int64, name string, fn func(ctx context.Context) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for singleton task %s: %w", name, err)
	}
	defer conn.Release()

	q := db.New(conn.Conn())
	acquired, err := q.TryAdvisoryLock(ctx, key)
	if err != nil {
		return fmt.Errorf("acquiring advisory lock for %s: %w", name, err)
	}
	if !acquired {
		logger.Debug("singleton task already running elsewhere", "task", name)
		return nil
	}
	defer func() {
		if err := q.AdvisoryUnlock(ctx, key); err != nil {
			logger.Error("releasing advisory lock", "task", name, "error", err)
		}
	}()

	return fn(ctx)
}
