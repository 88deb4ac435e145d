package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/pkg/adapter"
	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/detection"
	"github.com/chillbot-io/openlabels/pkg/model"
	"github.com/chillbot-io/openlabels/pkg/policy"
	"github.com/chillbot-io/openlabels/pkg/risk"
)

// hashBucket assigns a file path to one of n partitions. This is a
// documented simplification of continuation-token/path-prefix range
// partitioning: pkg/adapter has no native range-query API, so every
// partition worker walks the full target and skips files outside its
// bucket. Deterministic hashing still gives an even, stable split that
// survives resume (the same path always lands in the same partition).
func hashBucket(path string, n int32) int32 {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return int32(h.Sum32() % uint32(n))
}

var errCancelled = fmt.Errorf("scan job cancelled")

// checkCancelled polls the job's current status so a long-running walk
// notices an operator-requested cancellation between files.
func (o *Orchestrator) checkCancelled(ctx context.Context, tenantID, scanJobID uuid.UUID) bool {
	sj, err := o.q.GetScanJob(ctx, tenantID, scanJobID)
	if err != nil {
		return false
	}
	return sj.Status == "cancelled"
}

// runSingleMode walks the adapter, fanning files out to a worker pool
// bounded by the tenant's pipeline_max_concurrent_files setting.
// Enumeration pauses while every worker slot is busy, so a slow
// detection stage back-pressures the walk rather than buffering
// unbounded FileInfos.
func (o *Orchestrator) runSingleMode(ctx context.Context, sj db.ScanJob, target db.ScanTarget, settings db.TenantSettings, ad adapter.Adapter, estimate int) error {
	if err := o.q.MarkScanJobRunning(ctx, sj.ID, int64(estimate), 0); err != nil {
		return fmt.Errorf("marking scan job running: %w", err)
	}

	maxInFlight := int(settings.PipelineMaxConcurrentFiles)
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)

	var mu sync.Mutex
	var filesSince, entitiesSince int64

	checkEvery := 0
	err := ad.Enumerate(ctx, "", func(fi adapter.FileInfo) error {
		checkEvery++
		if checkEvery%progressBatchSize == 0 && o.checkCancelled(ctx, sj.TenantID, sj.ID) {
			return errCancelled
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}
		g.Go(func() error {
			n, perr := o.processFile(gctx, sj.TenantID, sj.ID, target, settings, ad, fi)
			if perr != nil {
				o.logger.Warn("file processing failed", "scan_job_id", sj.ID, "path", fi.Path, "error", perr)
			}
			mu.Lock()
			defer mu.Unlock()
			filesSince++
			entitiesSince += int64(n)
			if filesSince >= progressBatchSize {
				if err := o.q.IncrementScanJobProgress(gctx, sj.ID, filesSince, entitiesSince); err != nil {
					return fmt.Errorf("flushing progress: %w", err)
				}
				filesSince, entitiesSince = 0, 0
			}
			return nil
		})
		return nil
	})
	if werr := g.Wait(); werr != nil && err != errCancelled {
		// A worker failure cancels gctx, which also surfaces from the
		// walk as context.Canceled; the worker's error is the real one.
		err = werr
	}
	if filesSince > 0 || entitiesSince > 0 {
		if ferr := o.q.IncrementScanJobProgress(ctx, sj.ID, filesSince, entitiesSince); ferr != nil {
			o.logger.Error("flushing final progress", "scan_job_id", sj.ID, "error", ferr)
		}
	}
	if err != nil && err != errCancelled {
		if failErr := o.q.FailScanJob(ctx, sj.ID, err.Error()); failErr != nil {
			o.logger.Error("failing scan job", "scan_job_id", sj.ID, "error", failErr)
		}
		return fmt.Errorf("enumerating scan target: %w", err)
	}
	if err == errCancelled {
		o.logger.Info("scan job cancelled mid-run", "scan_job_id", sj.ID)
		return nil
	}

	sj2, err := o.q.GetScanJob(ctx, sj.TenantID, sj.ID)
	if err != nil {
		return fmt.Errorf("reloading scan job: %w", err)
	}
	if err := o.writeSummary(ctx, sj2); err != nil {
		return err
	}
	return o.q.CompleteScanJob(ctx, sj.ID)
}

func (o *Orchestrator) handlePartition(ctx context.Context, job db.QueuedJob) error {
	var p partitionPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return apierrors.Permanent("decoding partition payload", err)
	}

	partition, err := o.q.GetScanPartition(ctx, p.PartitionID)
	if err != nil {
		return fmt.Errorf("loading scan partition: %w", err)
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
		return o.failPartition(ctx, partition, err)
	}

	var filesSince, entitiesSince int64
	lastPath := partition.LastProcessedPath
	walkErr := ad.Enumerate(ctx, partition.LastProcessedPath, func(fi adapter.FileInfo) error {
		if hashBucket(fi.Path, sj.PartitionsTotal) != partition.PartitionNum {
			return nil
		}
		n, perr := o.processFile(ctx, sj.TenantID, sj.ID, target, settings, ad, fi)
		if perr != nil {
			o.logger.Warn("file processing failed", "partition_id", partition.ID, "path", fi.Path, "error", perr)
		}
		filesSince++
		entitiesSince += int64(n)
		lastPath = fi.Path
		if filesSince >= progressBatchSize {
			if err := o.flushPartitionProgress(ctx, sj.ID, partition.ID, filesSince, entitiesSince, lastPath); err != nil {
				return err
			}
			filesSince, entitiesSince = 0, 0
		}
		return nil
	})
	if filesSince > 0 || entitiesSince > 0 {
		if err := o.flushPartitionProgress(ctx, sj.ID, partition.ID, filesSince, entitiesSince, lastPath); err != nil {
			o.logger.Error("flushing final partition progress", "partition_id", partition.ID, "error", err)
		}
	}
	if walkErr != nil {
		return o.failPartition(ctx, partition, walkErr)
	}

	updated, err := o.q.GetScanPartition(ctx, partition.ID)
	if err != nil {
		return fmt.Errorf("reloading partition: %w", err)
	}
	if err := o.q.UpdateScanPartitionStatus(ctx, partition.ID, "completed", updated.FilesScanned); err != nil {
		return fmt.Errorf("completing partition: %w", err)
	}
	if _, err := o.q.IncrementPartitionsDone(ctx, sj.ID); err != nil {
		return fmt.Errorf("incrementing partitions done: %w", err)
	}
	return nil
}

func (o *Orchestrator) flushPartitionProgress(ctx context.Context, scanJobID, partitionID uuid.UUID, filesDelta, entitiesDelta int64, lastPath string) error {
	if err := o.q.IncrementScanJobProgress(ctx, scanJobID, filesDelta, entitiesDelta); err != nil {
		return fmt.Errorf("incrementing job progress: %w", err)
	}
	if err := o.q.UpdateScanPartitionProgress(ctx, partitionID, filesDelta, lastPath); err != nil {
		return fmt.Errorf("updating partition progress: %w", err)
	}
	return nil
}

// failPartition retries transient failures up to maxPartitionRetries,
// and beyond that marks the partition failed without blocking the rest
// of the job from completing.
func (o *Orchestrator) failPartition(ctx context.Context, partition db.ScanPartition, cause error) error {
	retries, err := o.q.IncrementScanPartitionRetry(ctx, partition.ID)
	if err != nil {
		return fmt.Errorf("incrementing partition retry: %w", err)
	}
	if retries < maxPartitionRetries && apierrors.IsRetryable(cause) {
		return apierrors.Transient("partition failed, will retry", cause)
	}
	if err := o.q.UpdateScanPartitionStatus(ctx, partition.ID, "failed", partition.FilesScanned); err != nil {
		o.logger.Error("marking partition failed", "partition_id", partition.ID, "error", err)
	}
	if _, err := o.q.IncrementPartitionsDone(ctx, partition.ScanJobID); err != nil {
		o.logger.Error("incrementing partitions done after failure", "partition_id", partition.ID, "error", err)
	}
	return apierrors.Permanent("partition failed permanently", cause)
}

// processFile reads, extracts, detects, scores, evaluates policy for,
// and persists one file. Errors are isolated into the result row's
// scan_error column rather than aborting the walk; a single file's
// failure never aborts the job.
func (o *Orchestrator) processFile(ctx context.Context, tenantID, scanJobID uuid.UUID, target db.ScanTarget, settings db.TenantSettings, ad adapter.Adapter, fi adapter.FileInfo) (int, error) {
	if fi.Size > int64(settings.MaxFileSizeMb)*1024*1024 {
		return o.persistResult(ctx, tenantID, scanJobID, fi, nil, "file exceeds max_file_size_mb")
	}

	raw, err := ad.Read(ctx, fi)
	if err != nil {
		return o.persistResult(ctx, tenantID, scanJobID, fi, nil, err.Error())
	}
	text, err := o.extractor.Extract(raw, fi.Name)
	if err != nil {
		return o.persistResult(ctx, tenantID, scanJobID, fi, nil, err.Error())
	}

	result := o.pipeline.Detect(ctx, text)
	return o.persistResult(ctx, tenantID, scanJobID, fi, result.Entities, "")
}

// reduceEntities folds resolved entities into per-type counts. Entities
// arrive grouped per (type, value), so a type with two distinct values
// is two entries whose counts must accumulate, not overwrite.
func reduceEntities(entities []detection.Entity) (counts map[string]int32, countsInt map[string]int, types []string, total int) {
	counts = make(map[string]int32, len(entities))
	countsInt = make(map[string]int, len(entities))
	types = make([]string, 0, len(entities))
	for _, e := range entities {
		if _, seen := countsInt[e.Type]; !seen {
			types = append(types, e.Type)
		}
		counts[e.Type] += int32(e.Count)
		countsInt[e.Type] += e.Count
		total += e.Count
	}
	return counts, countsInt, types, total
}

// storedScoreAndTier truncates the scorer's float to the integer the
// row stores and derives the tier from that same integer. Deriving the
// tier from the full-precision float would let a fractional score at a
// band boundary (e.g. 50.5) persist a score/tier pair that disagrees
// when re-mapped through the tier table.
func storedScoreAndTier(countsInt map[string]int, exposure model.ExposureLevel) (int32, model.RiskTier) {
	stored := int32(risk.Score(countsInt, exposure))
	return stored, risk.Tier(float64(stored))
}

func (o *Orchestrator) persistResult(ctx context.Context, tenantID, scanJobID uuid.UUID, fi adapter.FileInfo, entities []detection.Entity, scanErr string) (int, error) {
	counts, countsInt, types, total := reduceEntities(entities)
	storedScore, tier := storedScoreAndTier(countsInt, fi.Exposure)

	defs := o.policyDefinitions(ctx, tenantID)
	matches := policy.Evaluate(defs, entities).Matched
	violations := make([]string, 0, len(matches))
	for _, m := range matches {
		violations = append(violations, m.Name)
	}

	resultID, err := o.q.InsertScanResult(ctx, db.InsertScanResultParams{
		ScannedAt:        time.Now().UTC(),
		TenantID:         tenantID,
		ScanJobID:        scanJobID,
		FilePath:         fi.Path,
		EntityTypes:      types,
		EntityCounts:     counts,
		RiskScore:        storedScore,
		RiskTier:         string(tier),
		ExposureLevel:    string(fi.Exposure),
		FileSizeBytes:    fi.Size,
		ScanError:        scanErr,
		PolicyViolations: violations,
	})
	if err != nil {
		return total, fmt.Errorf("persisting scan result for %s: %w", fi.Path, err)
	}

	for _, m := range matches {
		action, err := o.q.CreateRemediationAction(ctx, db.CreateRemediationActionParams{
			TenantID:     tenantID,
			ScanResultID: resultID,
			Kind:         m.ActionKind,
			Detail:       m.ActionArgs,
		})
		if err != nil {
			o.logger.Error("creating remediation action", "scan_result_id", resultID, "policy_id", m.PolicyID, "error", err)
			continue
		}

		payload, err := json.Marshal(remediateActionPayload{TenantID: tenantID, ActionID: action.ID})
		if err != nil {
			o.logger.Error("marshalling remediation payload", "action_id", action.ID, "error", err)
			continue
		}
		if _, err := o.dispatch.Enqueue(ctx, db.EnqueueJobParams{
			TenantID: tenantID,
			TaskType: "remediate",
			Payload:  payload,
		}); err != nil {
			o.logger.Error("enqueuing remediation action", "action_id", action.ID, "error", err)
		}
	}

	return total, nil
}

// policyDefinitions loads a tenant's enabled policies and parses their
// trigger conditions. Rows with an unparsable condition are skipped
// (logged once) rather than aborting the whole evaluation.
func (o *Orchestrator) policyDefinitions(ctx context.Context, tenantID uuid.UUID) []policy.Definition {
	rows, err := o.q.ListEnabledPolicies(ctx, tenantID)
	if err != nil {
		o.logger.Error("loading policies", "tenant_id", tenantID, "error", err)
		return nil
	}
	defs := make([]policy.Definition, 0, len(rows))
	for _, r := range rows {
		trigger, err := policy.ParseTrigger(r.Condition)
		if err != nil {
			o.logger.Error("parsing policy trigger", "policy_id", r.ID, "error", err)
			continue
		}
		defs = append(defs, policy.Definition{
			ID:         r.ID.String(),
			Name:       r.Name,
			Trigger:    trigger,
			ActionKind: r.ActionKind,
			ActionArgs: r.ActionArgs,
		})
	}
	return defs
}
