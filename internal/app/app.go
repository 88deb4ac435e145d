// Package app wires every component into the two runtime modes a
// replica can run as: "api" (HTTP surface only) and "worker" (queue
// dispatcher, scheduler, harvester, catalog writer, SIEM export, and
// the singleton background tasks). Both modes share the same database
// pool and metrics registry; an operator scales each independently
// behind a load balancer.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/chillbot-io/openlabels/internal/audit"
	"github.com/chillbot-io/openlabels/internal/auth"
	"github.com/chillbot-io/openlabels/internal/config"
	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/internal/httpserver"
	"github.com/chillbot-io/openlabels/internal/platform"
	"github.com/chillbot-io/openlabels/internal/telemetry"
	"github.com/chillbot-io/openlabels/pkg/catalog"
	"github.com/chillbot-io/openlabels/pkg/detection"
	"github.com/chillbot-io/openlabels/pkg/export"
	"github.com/chillbot-io/openlabels/pkg/harvest"
	"github.com/chillbot-io/openlabels/pkg/queue"
	"github.com/chillbot-io/openlabels/pkg/remediate"
	"github.com/chillbot-io/openlabels/pkg/scan"
	"github.com/chillbot-io/openlabels/pkg/scheduler"
)

// Advisory lock keys for the singleton background tasks. Values are
// arbitrary but must be stable across releases, since they are the
// coordination key every replica agrees on.
const (
	lockEventFlush      int64 = 1001
	lockSIEMExport      int64 = 1002
	lockEventHarvest    int64 = 1003
	lockStuckJobReclaim int64 = 1004
	lockJobCleanup      int64 = 1005
	lockScheduler       int64 = 1006
	lockCatalogCompact  int64 = 1007
	lockMonitoringSync  int64 = 1008
	lockLabelSync       int64 = 1009
	lockM365Harvest     int64 = 1010
)

// Run reads config, connects to infrastructure, and starts the
// appropriate mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting openlabels", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBPoolSize, cfg.DBMaxOverflow)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, pool)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	var oidcAuth *auth.OIDCAuthenticator
	discoverable := cfg.OIDCIssuerURL != "" || (cfg.AuthProvider == auth.ProviderAzureAD && cfg.AuthTenantID != "")
	if cfg.AuthProvider != auth.ProviderNone && discoverable && cfg.OIDCClientID != "" {
		var err error
		oidcAuth, err = auth.NewOIDCAuthenticator(ctx, cfg.AuthProvider, cfg.OIDCIssuerURL, cfg.AuthTenantID, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("initializing OIDC authenticator: %w", err)
		}
		logger.Info("OIDC authentication enabled", "provider", cfg.AuthProvider)
	} else {
		logger.Info("OIDC authentication disabled", "provider", cfg.AuthProvider)
	}

	srv := httpserver.NewServer(cfg, logger, pool, rdb, metricsReg, oidcAuth)

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	if srv.APIRouter != nil {
		srv.APIRouter.Mount("/audit-log", audit.NewHandler(pool, logger).Routes())
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker drives every background loop: the queue dispatcher (scan
// orchestration + remediation), the scheduler, the event harvester,
// the catalog writer, and the SIEM export engine, plus the reclaimer
// and cleanup singletons.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool) error {
	workerID := workerIdentity()
	q := db.New(pool)
	dispatcher := queue.New(pool, logger, workerID)

	pipeline := detection.NewPipeline(detection.NewNoopNERModel(logger), "v1", logger)
	orchestrator := scan.New(q, dispatcher, pipeline, nil, logger)
	remediator := remediate.New(q, dispatcher, nil, logger)

	// Scheduler: one logical instance across the replica set, guarded by
	// an advisory lock held for the duration of its run loop.
	if cfg.SchedulerEnabled {
		pollEvery, err := time.ParseDuration(cfg.SchedulerPollInterval)
		if err != nil {
			return fmt.Errorf("parsing scheduler.poll_interval %q: %w", cfg.SchedulerPollInterval, err)
		}
		minInterval, err := time.ParseDuration(cfg.SchedulerMinTriggerInterval)
		if err != nil {
			return fmt.Errorf("parsing scheduler.min_trigger_interval %q: %w", cfg.SchedulerMinTriggerInterval, err)
		}
		sched := scheduler.New(pool, logger, orchestrator.TriggerScan, pollEvery, minInterval)
		go runSingletonBlocking(ctx, pool, logger, lockScheduler, "scheduler", func(ctx context.Context) error {
			sched.Run(ctx)
			return nil
		})
	}

	// Event harvester: pull + stream providers converge into the same
	// ordered buffer. No concrete OS-audit provider ships in this tree;
	// the harvester still runs so its flush loop and rescan hook are
	// live the moment a provider is registered.
	harvester := harvest.New(q, logger, orchestrator.TriggerFileRescan, 0, 0, 0, 0)
	go runSingletonBlocking(ctx, pool, logger, lockEventHarvest, "event_harvest", func(ctx context.Context) error {
		harvester.Run(ctx)
		return nil
	})

	// M365 audit harvest runs as its own singleton, separate from the
	// OS-level harvester: SharePoint/OneDrive targets already carry the
	// client credentials the Management Activity API needs.
	m365 := buildM365Harvester(ctx, q, logger, orchestrator.TriggerFileRescan)
	if m365 != nil {
		go runSingletonBlocking(ctx, pool, logger, lockM365Harvest, "m365_harvest", func(ctx context.Context) error {
			m365.Run(ctx)
			return nil
		})
	}

	// Monitoring sync keeps the monitored-file registry covering every
	// file recent scans flagged HIGH or CRITICAL; the window overlaps
	// the interval so a skipped cycle loses nothing.
	go runSingletonLoop(ctx, pool, logger, lockMonitoringSync, "monitoring_sync", 15*time.Minute, func(ctx context.Context) error {
		n, err := q.SyncMonitoredFiles(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("synced monitored files", "count", n)
		}
		return nil
	})

	// Label sync re-enqueues remediation actions whose queue job was
	// lost between row creation and completion.
	go runSingletonLoop(ctx, pool, logger, lockLabelSync, "label_sync", time.Hour, func(ctx context.Context) error {
		n, err := remediator.ResyncStalled(ctx, dispatcher)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("re-enqueued stalled remediation actions", "count", n)
		}
		return nil
	})

	// Catalog writer: periodic Parquet flush under an advisory lock,
	// plus the embedded analytics engine refreshed after every
	// successful cycle, plus weekly compaction.
	if cfg.CatalogEnabled {
		writer, err := catalog.New(q, cfg, logger)
		if err != nil {
			return fmt.Errorf("building catalog writer: %w", err)
		}
		analytics, err := catalog.NewAnalytics(cfg, logger)
		if err != nil {
			logger.Error("catalog analytics unavailable", "error", err)
		}
		flushInterval := time.Duration(cfg.CatalogFlushIntervalSecs) * time.Second
		if flushInterval <= 0 {
			flushInterval = 300 * time.Second
		}
		go runSingletonLoop(ctx, pool, logger, lockEventFlush, "catalog_flush", flushInterval, func(ctx context.Context) error {
			if err := writer.FlushAll(ctx); err != nil {
				return err
			}
			if analytics != nil {
				if err := analytics.Refresh(cfg.CatalogLocalPath); err != nil {
					logger.Warn("refreshing analytics views", "error", err)
				}
			}
			return nil
		})

		if cfg.CatalogBackend == "" || cfg.CatalogBackend == "local" {
			compactor := catalog.NewCompactor(cfg.CatalogLocalPath, logger)
			go runSingletonLoop(ctx, pool, logger, lockCatalogCompact, "catalog_compact", 7*24*time.Hour, compactor.Run)
		}
	}

	// SIEM export: periodic fan-out to whichever sinks are configured.
	if cfg.SIEMExportEnabled && (cfg.SIEMExportMode == "periodic" || cfg.SIEMExportMode == "both") {
		sinks := buildSIEMSinks(cfg)
		if len(sinks) == 0 {
			logger.Warn("siem_export enabled but no sink is configured")
		} else {
			exportEngine := export.New(q, logger, sinks...)
			interval := time.Duration(cfg.SIEMExportIntervalSecs) * time.Second
			if interval <= 0 {
				interval = 300 * time.Second
			}
			go runSingletonLoop(ctx, pool, logger, lockSIEMExport, "siem_export", interval, exportEngine.ExportSinceLast)
		}
	}

	// Reclaimer: returns expired leases to pending.
	go runSingletonLoop(ctx, pool, logger, lockStuckJobReclaim, "stuck_job_reclaim", 30*time.Second, func(ctx context.Context) error {
		n, err := q.ReclaimExpiredLeases(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			telemetry.JobsReclaimedTotal.Add(float64(n))
			logger.Info("reclaimed expired leases", "count", n)
		}
		return nil
	})

	// Cleanup: deletes completed jobs older than 7 days.
	go runSingletonLoop(ctx, pool, logger, lockJobCleanup, "job_cleanup", time.Hour, func(ctx context.Context) error {
		n, err := q.DeleteOldCompletedJobs(ctx, time.Now().Add(-7*24*time.Hour))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("cleaned up completed jobs", "count", n)
		}
		return nil
	})

	logger.Info("worker started", "worker_id", workerID)
	dispatcher.Run(ctx)
	<-ctx.Done()
	return nil
}

func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// runSingletonLoop ticks every interval, running fn once per tick while
// holding the advisory lock identified by key. Used for short, idempotent
// cycles (flush, export, reclaim, cleanup, compaction).
func runSingletonLoop(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, key int64, name string, interval time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := queue.RunSingletonTask(ctx, pool, logger, key, name, fn); err != nil {
				logger.Error("singleton task failed", "task", name, "error", err)
			}
		}
	}
}

// runSingletonBlocking acquires the advisory lock identified by key and
// runs fn, which blocks until ctx is cancelled (a long-running loop like
// the scheduler or harvester). If the lock is held elsewhere it retries
// on a short interval so this replica takes over if the lock holder
// disappears.
func runSingletonBlocking(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, key int64, name string, fn func(ctx context.Context) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := queue.RunSingletonTask(ctx, pool, logger, key, name, fn); err != nil {
			logger.Error("singleton task failed", "task", name, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// buildM365Harvester registers an M365 audit pull provider for every
// enabled SharePoint/OneDrive scan target whose config carries client
// credentials. Returns nil when no target qualifies.
func buildM365Harvester(ctx context.Context, q *db.Queries, logger *slog.Logger, trigger harvest.RescanTrigger) *harvest.Harvester {
	targets, err := q.ListEnabledScanTargetsByKinds(ctx, []string{"sharepoint", "onedrive"})
	if err != nil {
		logger.Error("listing M365 scan targets", "error", err)
		return nil
	}

	var h *harvest.Harvester
	for _, target := range targets {
		var cfg harvest.M365Config
		if err := json.Unmarshal(target.Credentials, &cfg); err != nil {
			logger.Warn("skipping M365 harvest for target with undecodable config", "target_id", target.ID, "error", err)
			continue
		}
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
			continue
		}
		if h == nil {
			h = harvest.New(q, logger, trigger, 0, 0, 0, 0)
		}
		h.RegisterPull(target.TenantID, target.ID, harvest.NewM365PullProvider(cfg))
	}
	return h
}

func buildSIEMSinks(cfg *config.Config) []export.Sink {
	var sinks []export.Sink
	if cfg.SplunkHECURL != "" && cfg.SplunkHECToken != "" {
		sinks = append(sinks, export.NewSplunkSink(export.SplunkConfig{
			URL:   cfg.SplunkHECURL,
			Token: cfg.SplunkHECToken,
		}))
	}
	if cfg.SentinelWorkspaceID != "" && cfg.SentinelSharedKey != "" {
		sinks = append(sinks, export.NewSentinelSink(export.SentinelConfig{
			WorkspaceID: cfg.SentinelWorkspaceID,
			SharedKey:   cfg.SentinelSharedKey,
		}))
	}
	if cfg.QRadarHost != "" {
		sinks = append(sinks, export.NewQRadarSink(export.QRadarConfig{
			Host:   cfg.QRadarHost,
			Port:   cfg.QRadarPort,
			UseTLS: cfg.QRadarUseTLS,
		}))
	}
	if cfg.ElasticURL != "" && cfg.ElasticAPIKey != "" {
		sinks = append(sinks, export.NewElasticSink(export.ElasticConfig{
			URL:    cfg.ElasticURL,
			APIKey: cfg.ElasticAPIKey,
		}))
	}
	if cfg.SyslogCEFHost != "" {
		sinks = append(sinks, export.NewSyslogCEFSink(export.SyslogCEFConfig{
			Host: cfg.SyslogCEFHost,
			Port: cfg.SyslogCEFPort,
		}))
	}
	return sinks
}
