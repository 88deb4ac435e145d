// Package scheduler runs periodic scan jobs from cron-expression
// schedules. It polls the schedules table across all tenants, runs
// once at start and then on every tick until ctx is cancelled.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/chillbot-io/openlabels/internal/db"
)

// ScanTrigger enqueues a scan job for a due schedule. Supplied by the
// caller so scheduler stays decoupled from pkg/scan's orchestration.
type ScanTrigger func(ctx context.Context, tenantID, scanTargetID uuid.UUID) error

// Scheduler polls the schedules table and triggers scans whose
// next_run_at has elapsed.
type Scheduler struct {
	pool        *pgxpool.Pool
	q           *db.Queries
	logger      *slog.Logger
	trigger     ScanTrigger
	pollEvery   time.Duration
	minInterval time.Duration
	parser      cron.Parser
}

// New builds a Scheduler. minTriggerInterval guards against a
// misconfigured cron expression firing more often than the operator
// intended (SCHEDULER_MIN_TRIGGER_INTERVAL).
func New(pool *pgxpool.Pool, logger *slog.Logger, trigger ScanTrigger, pollEvery, minTriggerInterval time.Duration) *Scheduler {
	return &Scheduler{
		pool:        pool,
		q:           db.New(pool),
		logger:      logger,
		trigger:     trigger,
		pollEvery:   pollEvery,
		minInterval: minTriggerInterval,
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "poll_interval", s.pollEvery)
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.q.ListDueSchedules(ctx, now, s.minInterval)
	if err != nil {
		s.logger.Error("listing due schedules", "error", err)
		return
	}

	for _, sched := range due {
		if err := s.trigger(ctx, sched.TenantID, sched.ScanTargetID); err != nil {
			s.logger.Error("triggering scheduled scan", "schedule_id", sched.ID, "tenant_id", sched.TenantID, "error", err)
			continue
		}

		next, err := s.nextRun(sched.CronExpr, now)
		if err != nil {
			s.logger.Error("parsing cron expression", "schedule_id", sched.ID, "cron_expr", sched.CronExpr, "error", err)
			continue
		}
		if err := s.q.UpdateScheduleAfterRun(ctx, sched.ID, now, next); err != nil {
			s.logger.Error("updating schedule after run", "schedule_id", sched.ID, "error", err)
		}
	}
}

func (s *Scheduler) nextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}
