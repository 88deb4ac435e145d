package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QueuedJob mirrors the queue table row.
type QueuedJob struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	TaskType    string
	Payload     json.RawMessage
	Priority    int32
	Status      string
	RetryCount  int32
	MaxRetries  int32
	RunAfter    time.Time
	LeasedUntil *time.Time
	LeasedBy    string
	EnqueuedAt  time.Time
}

// EnqueueJobParams are the insert columns for a new queue row.
type EnqueueJobParams struct {
	TenantID   uuid.UUID
	TaskType   string
	Payload    json.RawMessage
	Priority   int32
	MaxRetries int32
	RunAfter   time.Time
}

// EnqueueJob inserts a pending row with status='pending' and
// run_after defaulting to now.
func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (QueuedJob, error) {
	if arg.MaxRetries == 0 {
		arg.MaxRetries = 5
	}
	if arg.RunAfter.IsZero() {
		arg.RunAfter = time.Now().UTC()
	}
	var j QueuedJob
	row := q.db.QueryRow(ctx, `
		INSERT INTO queue (id, tenant_id, task_type, payload, priority, status, retry_count, max_retries, run_after, enqueued_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, 'pending', 0, $5, $6, now())
		RETURNING id, tenant_id, task_type, payload, priority, status, retry_count, max_retries, run_after, leased_until, leased_by, enqueued_at
	`, arg.TenantID, arg.TaskType, arg.Payload, arg.Priority, arg.MaxRetries, arg.RunAfter)
	if err := scanQueuedJob(row, &j); err != nil {
		return QueuedJob{}, fmt.Errorf("enqueuing job: %w", err)
	}
	return j, nil
}

// DequeueJob leases the next eligible row:
//
//	UPDATE queue SET status='running', leased_by=:worker, leased_until=now()+lease_ttl
//	WHERE id = (SELECT id FROM queue WHERE status='pending' AND run_after <= now()
//	            ORDER BY priority DESC, enqueued_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED)
//	RETURNING *;
//
// Returns (QueuedJob{}, false, nil) when the table has no eligible
// rows; callers must not block.
func (q *Queries) DequeueJob(ctx context.Context, workerID string, leaseTTL time.Duration, taskTypes []string) (QueuedJob, bool, error) {
	var taskFilter string
	args := []any{workerID, leaseTTL.Seconds()}
	if len(taskTypes) > 0 {
		taskFilter = "AND task_type = ANY($3)"
		args = append(args, taskTypes)
	}

	sql := fmt.Sprintf(`
		UPDATE queue SET status = 'running', leased_by = $1, leased_until = now() + make_interval(secs => $2)
		WHERE id = (
			SELECT id FROM queue
			WHERE status = 'pending' AND run_after <= now() %s
			ORDER BY priority DESC, enqueued_at ASC
			LIMIT 1 FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, task_type, payload, priority, status, retry_count, max_retries, run_after, leased_until, leased_by, enqueued_at
	`, taskFilter)

	var j QueuedJob
	row := q.db.QueryRow(ctx, sql, args...)
	if err := scanQueuedJob(row, &j); err != nil {
		if isNoRows(err) {
			return QueuedJob{}, false, nil
		}
		return QueuedJob{}, false, fmt.Errorf("dequeuing job: %w", err)
	}
	return j, true, nil
}

// HeartbeatLease extends a running row's leased_until. Workers must
// call this before the lease expires.
func (q *Queries) HeartbeatLease(ctx context.Context, id uuid.UUID, workerID string, leaseTTL time.Duration) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE queue SET leased_until = now() + make_interval(secs => $3)
		WHERE id = $1 AND leased_by = $2 AND status = 'running'
	`, id, workerID, leaseTTL.Seconds())
	if err != nil {
		return fmt.Errorf("heartbeating lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lease %s no longer held by %s", id, workerID)
	}
	return nil
}

// CompleteJob acks a row: status='completed' after the task body returns.
func (q *Queries) CompleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE queue SET status = 'completed', leased_by = '', leased_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// NackJob re-enqueues a row for retry with exponential backoff, or marks
// it permanently failed once retry_count would exceed max_retries.
func (q *Queries) NackJob(ctx context.Context, id uuid.UUID, backoff time.Duration) error {
	_, err := q.db.Exec(ctx, `
		UPDATE queue SET
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			retry_count = retry_count + 1,
			run_after = now() + make_interval(secs => $2),
			leased_by = '', leased_until = NULL
		WHERE id = $1
	`, id, backoff.Seconds())
	if err != nil {
		return fmt.Errorf("nacking job: %w", err)
	}
	return nil
}

// FailJobPermanently marks a row failed immediately (used for
// apierrors.CodePermanent outcomes, which must not be retried).
func (q *Queries) FailJobPermanently(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE queue SET status = 'failed', leased_by = '', leased_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	return nil
}

// ReclaimExpiredLeases resets expired leases to pending, incrementing
// retry_count, or marks them failed once retries are exhausted. Returns
// the number of rows reclaimed (for metrics).
func (q *Queries) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE queue SET
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			retry_count = retry_count + 1,
			leased_by = '', leased_until = NULL
		WHERE status = 'running' AND leased_until < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("reclaiming expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOldCompletedJobs purges terminal rows (completed or failed)
// older than olderThan, keeping the queue table from growing
// unbounded. Returns the number of rows purged.
func (q *Queries) DeleteOldCompletedJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM queue WHERE status IN ('completed', 'failed') AND enqueued_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deleting old completed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TryAdvisoryLock attempts a non-blocking advisory lock on a singleton
// task key. Locks auto-release at the end of the session that holds
// them, so callers must hold the same connection for the critical
// section and release explicitly via AdvisoryUnlock when done with it.
func (q *Queries) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	row := q.db.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key)
	if err := row.Scan(&ok); err != nil {
		return false, fmt.Errorf("acquiring advisory lock: %w", err)
	}
	return ok, nil
}

// AdvisoryUnlock releases a previously acquired advisory lock.
func (q *Queries) AdvisoryUnlock(ctx context.Context, key int64) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
	if err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}
	return nil
}

func scanQueuedJob(row rowScanner, j *QueuedJob) error {
	return row.Scan(&j.ID, &j.TenantID, &j.TaskType, &j.Payload, &j.Priority, &j.Status,
		&j.RetryCount, &j.MaxRetries, &j.RunAfter, &j.LeasedUntil, &j.LeasedBy, &j.EnqueuedAt)
}

// rowScanner is satisfied by pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
