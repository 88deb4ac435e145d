// Package scan implements the scan orchestrator: single- and
// fan-out mode partitioned enumeration, tiered detection, risk scoring,
// policy evaluation, and result persistence with resume, cancellation,
// and back-pressure.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/pkg/adapter"
	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/detection"
	"github.com/chillbot-io/openlabels/pkg/model"
	"github.com/chillbot-io/openlabels/pkg/queue"
)

// maxPartitionRetries bounds per-partition retry before it is marked
// failed outright.
const maxPartitionRetries = 3

// aggregatorPollDelay is how long the terminal aggregator job waits
// before re-enqueuing itself while partitions remain in flight.
const aggregatorPollDelay = 5 * time.Second

// progressBatchSize is how often counters are persisted during a
// scan.
const progressBatchSize = 100

// Enqueuer is the subset of pkg/queue.Dispatcher the orchestrator needs:
// register handlers and enqueue follow-on jobs.
type Enqueuer interface {
	Register(taskType string, h queue.Handler)
	Enqueue(ctx context.Context, arg db.EnqueueJobParams) (db.QueuedJob, error)
}

// Orchestrator wires the scan pipeline (adapter -> extract -> detect ->
// score -> policy -> persist) to the job queue.
type Orchestrator struct {
	q         *db.Queries
	dispatch  Enqueuer
	pipeline  *detection.Pipeline
	extractor TextExtractor
	logger    *slog.Logger
}

// New builds an Orchestrator and registers its task handlers on
// dispatch. extractor may be nil to use PlainTextExtractor.
func New(q *db.Queries, dispatch Enqueuer, pipeline *detection.Pipeline, extractor TextExtractor, logger *slog.Logger) *Orchestrator {
	if extractor == nil {
		extractor = PlainTextExtractor{}
	}
	o := &Orchestrator{q: q, dispatch: dispatch, pipeline: pipeline, extractor: extractor, logger: logger}
	dispatch.Register("scan", o.handleScan)
	dispatch.Register("scan_partition", o.handlePartition)
	dispatch.Register("scan_aggregate", o.handleAggregate)
	dispatch.Register("scan_file", o.handleFileRescan)
	return o
}

type scanPayload struct {
	ScanJobID uuid.UUID `json:"scan_job_id"`
}

type partitionPayload struct {
	ScanJobID   uuid.UUID `json:"scan_job_id"`
	PartitionID uuid.UUID `json:"partition_id"`
}

// remediateActionPayload is the payload shape the "remediate" task type
// expects; pkg/remediate defines its own matching struct so the two
// packages stay decoupled (no import from pkg/scan into pkg/remediate).
type remediateActionPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	ActionID uuid.UUID `json:"action_id"`
}

type fileRescanPayload struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	ScanTargetID uuid.UUID `json:"scan_target_id"`
	FilePath     string    `json:"file_path"`
}

// Queue priorities: scheduled scans and their partitions run at the
// baseline, monitored-file rescans jump ahead of everything else.
const (
	scanPriority       = 50
	fileRescanPriority = 100
)

// TriggerFileRescan enqueues a single-file rescan, the hook the event
// harvester calls when a write/create event lands on a monitored
// file. It satisfies pkg/harvest.RescanTrigger.
func (o *Orchestrator) TriggerFileRescan(ctx context.Context, tenantID, scanTargetID uuid.UUID, filePath string) error {
	payload, err := json.Marshal(fileRescanPayload{TenantID: tenantID, ScanTargetID: scanTargetID, FilePath: filePath})
	if err != nil {
		return fmt.Errorf("marshalling file rescan payload: %w", err)
	}
	_, err = o.dispatch.Enqueue(ctx, db.EnqueueJobParams{
		TenantID: tenantID,
		TaskType: "scan_file",
		Payload:  payload,
		Priority: fileRescanPriority,
	})
	if err != nil {
		return fmt.Errorf("enqueuing file rescan: %w", err)
	}
	return nil
}

func (o *Orchestrator) handleFileRescan(ctx context.Context, job db.QueuedJob) error {
	var p fileRescanPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return apierrors.Permanent("decoding file rescan payload", err)
	}

	target, err := o.q.GetScanTarget(ctx, p.TenantID, p.ScanTargetID)
	if err != nil {
		return fmt.Errorf("loading scan target: %w", err)
	}
	settings := o.tenantSettings(ctx, p.TenantID)

	ad, err := adapterFor(target)
	if err != nil {
		return apierrors.Permanent("building adapter", err)
	}

	fi, err := ad.GetMetadata(ctx, adapter.FileInfo{Path: p.FilePath})
	if err != nil {
		return fmt.Errorf("refreshing metadata for %s: %w", p.FilePath, err)
	}

	sj, err := o.q.CreateScanJob(ctx, db.CreateScanJobParams{
		TenantID:     p.TenantID,
		ScanTargetID: p.ScanTargetID,
		Mode:         string(model.ScanModeSingle),
	})
	if err != nil {
		return fmt.Errorf("creating rescan job: %w", err)
	}
	if err := o.q.MarkScanJobRunning(ctx, sj.ID, 1, 0); err != nil {
		return fmt.Errorf("marking rescan job running: %w", err)
	}

	n, perr := o.processFile(ctx, p.TenantID, sj.ID, target, settings, ad, fi)
	if perr != nil {
		o.logger.Warn("file rescan failed", "scan_job_id", sj.ID, "path", p.FilePath, "error", perr)
	}
	if err := o.q.IncrementScanJobProgress(ctx, sj.ID, 1, int64(n)); err != nil {
		return fmt.Errorf("recording rescan progress: %w", err)
	}
	return o.q.CompleteScanJob(ctx, sj.ID)
}

// TriggerScan satisfies pkg/scheduler.ScanTrigger: it creates a ScanJob
// row and enqueues the top-level "scan" task that decides single vs
// fan-out mode once it runs.
func (o *Orchestrator) TriggerScan(ctx context.Context, tenantID, scanTargetID uuid.UUID) error {
	job, err := o.q.CreateScanJob(ctx, db.CreateScanJobParams{
		TenantID:     tenantID,
		ScanTargetID: scanTargetID,
		Mode:         string(model.ScanModeSingle),
	})
	if err != nil {
		return fmt.Errorf("creating scan job: %w", err)
	}

	payload, err := json.Marshal(scanPayload{ScanJobID: job.ID})
	if err != nil {
		return fmt.Errorf("marshalling scan payload: %w", err)
	}
	_, err = o.dispatch.Enqueue(ctx, db.EnqueueJobParams{
		TenantID: tenantID,
		TaskType: "scan",
		Payload:  payload,
		Priority: scanPriority,
	})
	if err != nil {
		return fmt.Errorf("enqueuing scan job: %w", err)
	}
	return nil
}

func (o *Orchestrator) handleScan(ctx context.Context, job db.QueuedJob) error {
	var p scanPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return apierrors.Permanent("decoding scan payload", err)
	}

	sj, err := o.q.GetScanJob(ctx, job.TenantID, p.ScanJobID)
	if err != nil {
		return fmt.Errorf("loading scan job: %w", err)
	}
	target, err := o.q.GetScanTarget(ctx, job.TenantID, sj.ScanTargetID)
	if err != nil {
		return fmt.Errorf("loading scan target: %w", err)
	}
	settings := o.tenantSettings(ctx, job.TenantID)

	ad, err := adapterFor(target)
	if err != nil {
		if failErr := o.q.FailScanJob(ctx, sj.ID, err.Error()); failErr != nil {
			o.logger.Error("failing scan job", "scan_job_id", sj.ID, "error", failErr)
		}
		return apierrors.Permanent("building adapter", err)
	}

	estimate, err := estimateFileCount(ctx, ad, int(settings.FanoutThreshold)+1)
	if err != nil {
		if failErr := o.q.FailScanJob(ctx, sj.ID, err.Error()); failErr != nil {
			o.logger.Error("failing scan job", "scan_job_id", sj.ID, "error", failErr)
		}
		return fmt.Errorf("estimating file count: %w", err)
	}

	if !settings.FanoutEnabled || estimate <= int(settings.FanoutThreshold) {
		return o.runSingleMode(ctx, sj, target, settings, ad, estimate)
	}
	return o.startFanout(ctx, sj, target, settings, estimate)
}

// tenantSettings loads per-tenant overrides, falling back to the
// documented defaults when no row has been written.
func (o *Orchestrator) tenantSettings(ctx context.Context, tenantID uuid.UUID) db.TenantSettings {
	s, err := o.q.GetTenantSettings(ctx, tenantID)
	if err == nil {
		return s
	}
	d := model.DefaultTenantSettings(tenantID)
	return db.TenantSettings{
		TenantID:                   tenantID,
		MaxFileSizeMb:              int32(d.MaxFileSizeMB),
		ConcurrentFiles:            int32(d.ConcurrentFiles),
		EnableOcr:                  d.EnableOCR,
		EnableMl:                   d.EnableML,
		FanoutEnabled:              d.FanoutEnabled,
		FanoutThreshold:            int32(d.FanoutThreshold),
		FanoutMaxPartitions:        int32(d.FanoutMaxPartitions),
		PartitionTargetSize:        int32(d.PartitionTargetSize),
		PipelineMaxConcurrentFiles: int32(d.PipelineMaxConcurrentFiles),
		PipelineMemoryBudgetMb:     int32(d.PipelineMemoryBudgetMB),
	}
}

func adapterFor(target db.ScanTarget) (adapter.Adapter, error) {
	cfg, err := adapter.DecodeConfig(model.AdapterKind(target.AdapterKind), target.Credentials)
	if err != nil {
		return nil, fmt.Errorf("decoding adapter config for target %s: %w", target.ID, err)
	}
	return adapter.New(cfg)
}

// estimateFileCount samples the adapter, stopping as soon as cap is
// reached so a large fan-out-bound target isn't enumerated twice.
func estimateFileCount(ctx context.Context, ad adapter.Adapter, cap int) (int, error) {
	count := 0
	stop := fmt.Errorf("estimate cap reached")
	err := ad.Enumerate(ctx, "", func(fi adapter.FileInfo) error {
		count++
		if count >= cap {
			return stop
		}
		return nil
	})
	if err != nil && err != stop {
		return 0, err
	}
	return count, nil
}

func (o *Orchestrator) startFanout(ctx context.Context, sj db.ScanJob, target db.ScanTarget, settings db.TenantSettings, estimate int) error {
	partitionCount := int32(math.Ceil(float64(estimate) / float64(settings.PartitionTargetSize)))
	if partitionCount < 1 {
		partitionCount = 1
	}
	if partitionCount > settings.FanoutMaxPartitions {
		partitionCount = settings.FanoutMaxPartitions
	}

	params := make([]db.CreateScanPartitionParams, 0, partitionCount)
	for i := int32(0); i < partitionCount; i++ {
		params = append(params, db.CreateScanPartitionParams{
			TenantID:     sj.TenantID,
			ScanJobID:    sj.ID,
			PartitionNum: i,
			PathPrefix:   fmt.Sprintf("bucket:%d", i),
			FilesTotal:   int64(estimate) / int64(partitionCount),
		})
	}
	if err := o.q.CreateScanPartitions(ctx, params); err != nil {
		return fmt.Errorf("materializing scan partitions: %w", err)
	}
	if err := o.q.MarkScanJobRunning(ctx, sj.ID, int64(estimate), partitionCount); err != nil {
		return fmt.Errorf("marking scan job running: %w", err)
	}

	partitions, err := o.q.ListScanPartitions(ctx, sj.ID)
	if err != nil {
		return fmt.Errorf("listing materialized partitions: %w", err)
	}
	for _, p := range partitions {
		payload, err := json.Marshal(partitionPayload{ScanJobID: sj.ID, PartitionID: p.ID})
		if err != nil {
			return fmt.Errorf("marshalling partition payload: %w", err)
		}
		if _, err := o.dispatch.Enqueue(ctx, db.EnqueueJobParams{
			TenantID: sj.TenantID,
			TaskType: "scan_partition",
			Payload:  payload,
			Priority: scanPriority,
		}); err != nil {
			return fmt.Errorf("enqueuing partition %d: %w", p.PartitionNum, err)
		}
	}

	return o.enqueueAggregator(ctx, sj.TenantID, sj.ID, 0)
}

func (o *Orchestrator) enqueueAggregator(ctx context.Context, tenantID, scanJobID uuid.UUID, delay time.Duration) error {
	payload, err := json.Marshal(scanPayload{ScanJobID: scanJobID})
	if err != nil {
		return fmt.Errorf("marshalling aggregator payload: %w", err)
	}
	_, err = o.dispatch.Enqueue(ctx, db.EnqueueJobParams{
		TenantID: tenantID,
		TaskType: "scan_aggregate",
		Payload:  payload,
		Priority: -1,
		RunAfter: time.Now().UTC().Add(delay),
	})
	if err != nil {
		return fmt.Errorf("enqueuing aggregator: %w", err)
	}
	return nil
}

func (o *Orchestrator) handleAggregate(ctx context.Context, job db.QueuedJob) error {
	var p scanPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return apierrors.Permanent("decoding aggregate payload", err)
	}

	remaining, err := o.q.CountPartitionsNotDone(ctx, p.ScanJobID)
	if err != nil {
		return fmt.Errorf("counting undone partitions: %w", err)
	}
	if remaining > 0 {
		return o.enqueueAggregator(ctx, job.TenantID, p.ScanJobID, aggregatorPollDelay)
	}
	return o.finalizeJob(ctx, job.TenantID, p.ScanJobID)
}

func (o *Orchestrator) finalizeJob(ctx context.Context, tenantID, scanJobID uuid.UUID) error {
	sj, err := o.q.GetScanJob(ctx, tenantID, scanJobID)
	if err != nil {
		return fmt.Errorf("loading scan job for finalize: %w", err)
	}
	if err := o.writeSummary(ctx, sj); err != nil {
		return err
	}
	partitions, err := o.q.ListScanPartitions(ctx, scanJobID)
	if err != nil {
		return fmt.Errorf("listing partitions for finalize: %w", err)
	}
	failed := 0
	for _, p := range partitions {
		if p.Status == "failed" {
			failed++
		}
	}
	o.logger.Info("fan-out scan finalized", "scan_job_id", scanJobID, "partitions_failed", failed, "partitions_total", len(partitions))
	return o.q.CompleteScanJob(ctx, scanJobID)
}

func (o *Orchestrator) writeSummary(ctx context.Context, sj db.ScanJob) error {
	tiers, err := o.q.AggregateScanJobTierCounts(ctx, sj.ID)
	if err != nil {
		return fmt.Errorf("aggregating tier counts: %w", err)
	}
	top, err := o.q.TopEntityTypesForJob(ctx, sj.ID, 10)
	if err != nil {
		return fmt.Errorf("aggregating top entity types: %w", err)
	}
	return o.q.InsertScanSummary(ctx, db.InsertScanSummaryParams{
		ScanJobID:      sj.ID,
		TenantID:       sj.TenantID,
		FilesScanned:   sj.FilesScanned,
		TotalEntities:  sj.TotalEntities,
		CriticalCount:  tiers.Critical,
		HighCount:      tiers.High,
		MediumCount:    tiers.Medium,
		LowCount:       tiers.Low,
		TopEntityTypes: top,
	})
}
