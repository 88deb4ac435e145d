package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanTarget mirrors the scan_targets table row.
type ScanTarget struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Name          string
	AdapterKind   string
	ConnectionURI string
	Credentials   []byte // encrypted at rest; opaque to this layer
	Enabled       bool
	CreatedAt     time.Time
}

type CreateScanTargetParams struct {
	TenantID      uuid.UUID
	Name          string
	AdapterKind   string
	ConnectionURI string
	Credentials   []byte
}

func (q *Queries) CreateScanTarget(ctx context.Context, arg CreateScanTargetParams) (ScanTarget, error) {
	var t ScanTarget
	row := q.db.QueryRow(ctx, `
		INSERT INTO scan_targets (id, tenant_id, name, adapter_kind, connection_uri, credentials, enabled, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, true, now())
		RETURNING id, tenant_id, name, adapter_kind, connection_uri, credentials, enabled, created_at
	`, arg.TenantID, arg.Name, arg.AdapterKind, arg.ConnectionURI, arg.Credentials)
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.AdapterKind, &t.ConnectionURI, &t.Credentials, &t.Enabled, &t.CreatedAt); err != nil {
		return ScanTarget{}, fmt.Errorf("inserting scan target: %w", err)
	}
	return t, nil
}

func (q *Queries) GetScanTarget(ctx context.Context, tenantID, id uuid.UUID) (ScanTarget, error) {
	var t ScanTarget
	row := q.db.QueryRow(ctx, `
		SELECT id, tenant_id, name, adapter_kind, connection_uri, credentials, enabled, created_at
		FROM scan_targets WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.AdapterKind, &t.ConnectionURI, &t.Credentials, &t.Enabled, &t.CreatedAt); err != nil {
		return ScanTarget{}, fmt.Errorf("querying scan target: %w", err)
	}
	return t, nil
}

func (q *Queries) ListScanTargets(ctx context.Context, tenantID uuid.UUID) ([]ScanTarget, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, name, adapter_kind, connection_uri, credentials, enabled, created_at
		FROM scan_targets WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing scan targets: %w", err)
	}
	defer rows.Close()
	var out []ScanTarget
	for rows.Next() {
		var t ScanTarget
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.AdapterKind, &t.ConnectionURI, &t.Credentials, &t.Enabled, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning scan target row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListEnabledScanTargetsByKinds returns enabled targets of the given
// adapter kinds across all tenants, used by the worker to register
// audit-harvest providers for cloud-collaboration targets at startup.
func (q *Queries) ListEnabledScanTargetsByKinds(ctx context.Context, kinds []string) ([]ScanTarget, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, name, adapter_kind, connection_uri, credentials, enabled, created_at
		FROM scan_targets WHERE enabled AND adapter_kind = ANY($1)
		ORDER BY created_at ASC
	`, kinds)
	if err != nil {
		return nil, fmt.Errorf("listing scan targets by kind: %w", err)
	}
	defer rows.Close()
	var out []ScanTarget
	for rows.Next() {
		var t ScanTarget
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.AdapterKind, &t.ConnectionURI, &t.Credentials, &t.Enabled, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning scan target row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ScanJob mirrors the scan_jobs table row.
type ScanJob struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ScanTargetID    uuid.UUID
	Mode            string
	Status          string
	FilesScanned    int64
	FilesTotal      int64
	TotalEntities   int64
	PartitionsTotal int32
	PartitionsDone  int32
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
	CreatedAt       time.Time
}

type CreateScanJobParams struct {
	TenantID     uuid.UUID
	ScanTargetID uuid.UUID
	Mode         string
}

func (q *Queries) CreateScanJob(ctx context.Context, arg CreateScanJobParams) (ScanJob, error) {
	var j ScanJob
	row := q.db.QueryRow(ctx, `
		INSERT INTO scan_jobs (id, tenant_id, scan_target_id, mode, status, files_scanned, files_total, total_entities, partitions_total, partitions_done, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 'pending', 0, 0, 0, 0, 0, now())
		RETURNING id, tenant_id, scan_target_id, mode, status, files_scanned, files_total, total_entities, partitions_total, partitions_done, started_at, completed_at, error_message, created_at
	`, arg.TenantID, arg.ScanTargetID, arg.Mode)
	if err := scanScanJob(row, &j); err != nil {
		return ScanJob{}, fmt.Errorf("inserting scan job: %w", err)
	}
	return j, nil
}

func (q *Queries) GetScanJob(ctx context.Context, tenantID, id uuid.UUID) (ScanJob, error) {
	var j ScanJob
	row := q.db.QueryRow(ctx, `
		SELECT id, tenant_id, scan_target_id, mode, status, files_scanned, files_total, total_entities, partitions_total, partitions_done, started_at, completed_at, error_message, created_at
		FROM scan_jobs WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err := scanScanJob(row, &j); err != nil {
		return ScanJob{}, fmt.Errorf("querying scan job: %w", err)
	}
	return j, nil
}

// MarkScanJobRunning transitions pending->running, setting files_total
// from the target's pre-count estimate. A nonzero partition count means
// the mode decision came out fan-out, so the row records that too.
func (q *Queries) MarkScanJobRunning(ctx context.Context, id uuid.UUID, filesTotal int64, partitionsTotal int32) error {
	_, err := q.db.Exec(ctx, `
		UPDATE scan_jobs SET status = 'running', files_total = $2, partitions_total = $3,
			mode = CASE WHEN $3 > 0 THEN 'fanout' ELSE mode END,
			started_at = now()
		WHERE id = $1
	`, id, filesTotal, partitionsTotal)
	if err != nil {
		return fmt.Errorf("marking scan job running: %w", err)
	}
	return nil
}

// IncrementScanJobProgress atomically bumps files_scanned/total_entities;
// called once per file processed so progress is visible mid-scan.
func (q *Queries) IncrementScanJobProgress(ctx context.Context, id uuid.UUID, filesDelta, entitiesDelta int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE scan_jobs SET files_scanned = files_scanned + $2, total_entities = total_entities + $3
		WHERE id = $1
	`, id, filesDelta, entitiesDelta)
	if err != nil {
		return fmt.Errorf("incrementing scan job progress: %w", err)
	}
	return nil
}

// IncrementPartitionsDone bumps partitions_done and returns the updated
// row so the fan-out aggregator can tell when partitions_done ==
// partitions_total and finalize the parent job.
func (q *Queries) IncrementPartitionsDone(ctx context.Context, id uuid.UUID) (ScanJob, error) {
	var j ScanJob
	row := q.db.QueryRow(ctx, `
		UPDATE scan_jobs SET partitions_done = partitions_done + 1
		WHERE id = $1
		RETURNING id, tenant_id, scan_target_id, mode, status, files_scanned, files_total, total_entities, partitions_total, partitions_done, started_at, completed_at, error_message, created_at
	`, id)
	if err := scanScanJob(row, &j); err != nil {
		return ScanJob{}, fmt.Errorf("incrementing partitions done: %w", err)
	}
	return j, nil
}

func (q *Queries) CompleteScanJob(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE scan_jobs SET status = 'completed', completed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("completing scan job: %w", err)
	}
	return nil
}

func (q *Queries) FailScanJob(ctx context.Context, id uuid.UUID, message string) error {
	_, err := q.db.Exec(ctx, `UPDATE scan_jobs SET status = 'failed', error_message = $2, completed_at = now() WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("failing scan job: %w", err)
	}
	return nil
}

func (q *Queries) CancelScanJob(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE scan_jobs SET status = 'cancelled', completed_at = now() WHERE id = $1 AND status IN ('pending','running')`, id)
	if err != nil {
		return fmt.Errorf("cancelling scan job: %w", err)
	}
	return nil
}

func (q *Queries) ListScanJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int32) ([]ScanJob, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_target_id, mode, status, files_scanned, files_total, total_entities, partitions_total, partitions_done, started_at, completed_at, error_message, created_at
		FROM scan_jobs WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing scan jobs: %w", err)
	}
	defer rows.Close()
	var out []ScanJob
	for rows.Next() {
		var j ScanJob
		if err := rows.Scan(&j.ID, &j.TenantID, &j.ScanTargetID, &j.Mode, &j.Status, &j.FilesScanned, &j.FilesTotal, &j.TotalEntities, &j.PartitionsTotal, &j.PartitionsDone, &j.StartedAt, &j.CompletedAt, &j.ErrorMessage, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning scan job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanScanJob(row rowScanner, j *ScanJob) error {
	return row.Scan(&j.ID, &j.TenantID, &j.ScanTargetID, &j.Mode, &j.Status, &j.FilesScanned, &j.FilesTotal,
		&j.TotalEntities, &j.PartitionsTotal, &j.PartitionsDone, &j.StartedAt, &j.CompletedAt, &j.ErrorMessage, &j.CreatedAt)
}

// ScanPartition mirrors the scan_partitions table row.
type ScanPartition struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ScanJobID         uuid.UUID
	PartitionNum      int32
	PathPrefix        string
	Status            string
	FilesScanned      int64
	FilesTotal        int64
	RetryCount        int32
	LastProcessedPath string
	CreatedAt         time.Time
}

type CreateScanPartitionParams struct {
	TenantID     uuid.UUID
	ScanJobID    uuid.UUID
	PartitionNum int32
	PathPrefix   string
	FilesTotal   int64
}

// CreateScanPartitions bulk-inserts the materialized partition set for a
// fanned-out job in one statement.
func (q *Queries) CreateScanPartitions(ctx context.Context, partitions []CreateScanPartitionParams) error {
	for _, p := range partitions {
		_, err := q.db.Exec(ctx, `
			INSERT INTO scan_partitions (id, tenant_id, scan_job_id, partition_num, path_prefix, status, files_scanned, files_total, retry_count, last_processed_path, created_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, 'pending', 0, $5, 0, '', now())
		`, p.TenantID, p.ScanJobID, p.PartitionNum, p.PathPrefix, p.FilesTotal)
		if err != nil {
			return fmt.Errorf("inserting scan partition %d: %w", p.PartitionNum, err)
		}
	}
	return nil
}

func (q *Queries) UpdateScanPartitionStatus(ctx context.Context, id uuid.UUID, status string, filesScanned int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE scan_partitions SET status = $2, files_scanned = $3 WHERE id = $1
	`, id, status, filesScanned)
	if err != nil {
		return fmt.Errorf("updating scan partition: %w", err)
	}
	return nil
}

// UpdateScanPartitionProgress records the resume cursor and scanned
// count, called every N files during partition processing.
func (q *Queries) UpdateScanPartitionProgress(ctx context.Context, id uuid.UUID, filesScanned int64, lastProcessedPath string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE scan_partitions SET files_scanned = $2, last_processed_path = $3 WHERE id = $1
	`, id, filesScanned, lastProcessedPath)
	if err != nil {
		return fmt.Errorf("updating scan partition progress: %w", err)
	}
	return nil
}

// IncrementScanPartitionRetry bumps retry_count, returning the updated
// count so the caller can compare against max_retries.
func (q *Queries) IncrementScanPartitionRetry(ctx context.Context, id uuid.UUID) (int32, error) {
	var n int32
	row := q.db.QueryRow(ctx, `
		UPDATE scan_partitions SET retry_count = retry_count + 1 WHERE id = $1 RETURNING retry_count
	`, id)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("incrementing scan partition retry: %w", err)
	}
	return n, nil
}

func (q *Queries) GetScanPartition(ctx context.Context, id uuid.UUID) (ScanPartition, error) {
	var p ScanPartition
	row := q.db.QueryRow(ctx, `
		SELECT id, tenant_id, scan_job_id, partition_num, path_prefix, status, files_scanned, files_total, retry_count, last_processed_path, created_at
		FROM scan_partitions WHERE id = $1
	`, id)
	if err := scanScanPartition(row, &p); err != nil {
		return ScanPartition{}, fmt.Errorf("querying scan partition: %w", err)
	}
	return p, nil
}

func (q *Queries) ListScanPartitions(ctx context.Context, scanJobID uuid.UUID) ([]ScanPartition, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, scan_job_id, partition_num, path_prefix, status, files_scanned, files_total, retry_count, last_processed_path, created_at
		FROM scan_partitions WHERE scan_job_id = $1 ORDER BY partition_num
	`, scanJobID)
	if err != nil {
		return nil, fmt.Errorf("listing scan partitions: %w", err)
	}
	defer rows.Close()
	var out []ScanPartition
	for rows.Next() {
		var p ScanPartition
		if err := scanScanPartition(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning scan partition row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanScanPartition(row rowScanner, p *ScanPartition) error {
	return row.Scan(&p.ID, &p.TenantID, &p.ScanJobID, &p.PartitionNum, &p.PathPrefix, &p.Status,
		&p.FilesScanned, &p.FilesTotal, &p.RetryCount, &p.LastProcessedPath, &p.CreatedAt)
}

// CountPartitionsNotDone reports how many partitions of a job are not yet
// in a terminal state, for the aggregator's re-enqueue poll loop.
func (q *Queries) CountPartitionsNotDone(ctx context.Context, scanJobID uuid.UUID) (int64, error) {
	var n int64
	row := q.db.QueryRow(ctx, `
		SELECT count(*) FROM scan_partitions WHERE scan_job_id = $1 AND status NOT IN ('completed','failed')
	`, scanJobID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting undone partitions: %w", err)
	}
	return n, nil
}

// ScanResult mirrors one row of the monthly range-partitioned
// scan_results table; the composite key on (id, scanned_at) satisfies
// Postgres partitioned-table unique-constraint rules.
type ScanResult struct {
	ID               uuid.UUID
	ScannedAt        time.Time
	TenantID         uuid.UUID
	ScanJobID        uuid.UUID
	FilePath         string
	EntityTypes      []string
	EntityCounts     map[string]int32
	RiskScore        int32
	RiskTier         string
	ExposureLevel    string
	FileSizeBytes    int64
	ScanError        string
	PolicyViolations []string
}

type InsertScanResultParams struct {
	ScannedAt        time.Time
	TenantID         uuid.UUID
	ScanJobID        uuid.UUID
	FilePath         string
	EntityTypes      []string
	EntityCounts     map[string]int32
	RiskScore        int32
	RiskTier         string
	ExposureLevel    string
	FileSizeBytes    int64
	ScanError        string
	PolicyViolations []string
}

func (q *Queries) InsertScanResult(ctx context.Context, arg InsertScanResultParams) (uuid.UUID, error) {
	var id uuid.UUID
	row := q.db.QueryRow(ctx, `
		INSERT INTO scan_results (id, scanned_at, tenant_id, scan_job_id, file_path, entity_types, entity_counts, risk_score, risk_tier, exposure_level, file_size_bytes, scan_error, policy_violations)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, arg.ScannedAt, arg.TenantID, arg.ScanJobID, arg.FilePath, arg.EntityTypes, arg.EntityCounts, arg.RiskScore, arg.RiskTier, arg.ExposureLevel, arg.FileSizeBytes, arg.ScanError, arg.PolicyViolations)
	if err := row.Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("inserting scan result: %w", err)
	}
	return id, nil
}

// GetScanResult fetches one result row by ID, used by the remediation
// dispatcher to recover the file path a pending action targets.
func (q *Queries) GetScanResult(ctx context.Context, tenantID, id uuid.UUID) (ScanResult, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, scanned_at, tenant_id, scan_job_id, file_path, entity_types, entity_counts, risk_score, risk_tier, exposure_level, file_size_bytes, scan_error, policy_violations
		FROM scan_results WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	var r ScanResult
	if err := scanScanResult(row, &r); err != nil {
		return ScanResult{}, fmt.Errorf("fetching scan result: %w", err)
	}
	return r, nil
}

func (q *Queries) ListScanResultsByJob(ctx context.Context, tenantID, scanJobID uuid.UUID, minRiskScore int32, limit, offset int32) ([]ScanResult, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, scanned_at, tenant_id, scan_job_id, file_path, entity_types, entity_counts, risk_score, risk_tier, exposure_level, file_size_bytes, scan_error, policy_violations
		FROM scan_results
		WHERE tenant_id = $1 AND scan_job_id = $2 AND risk_score >= $3
		ORDER BY risk_score DESC, scanned_at DESC
		LIMIT $4 OFFSET $5
	`, tenantID, scanJobID, minRiskScore, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing scan results: %w", err)
	}
	defer rows.Close()
	var out []ScanResult
	for rows.Next() {
		var r ScanResult
		if err := scanScanResult(rows, &r); err != nil {
			return nil, fmt.Errorf("scanning scan result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanResultsForTenantSince supports the SIEM export engine's periodic
// per-tenant pull: rows for one tenant with scanned_at > cursor, newest
// work deferred to the caller's own batching since sinks cap batch
// size differently.
func (q *Queries) ScanResultsForTenantSince(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int32) ([]ScanResult, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, scanned_at, tenant_id, scan_job_id, file_path, entity_types, entity_counts, risk_score, risk_tier, exposure_level, file_size_bytes, scan_error, policy_violations
		FROM scan_results
		WHERE tenant_id = $1 AND scanned_at > $2
		ORDER BY scanned_at ASC
		LIMIT $3
	`, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scan results for tenant since cursor: %w", err)
	}
	defer rows.Close()
	var out []ScanResult
	for rows.Next() {
		var r ScanResult
		if err := scanScanResult(rows, &r); err != nil {
			return nil, fmt.Errorf("scanning scan result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanResultsSince supports the catalog writer's incremental flush: rows
// with scanned_at > cursor, ordered so the cursor can simply advance to
// the last row's scanned_at.
func (q *Queries) ScanResultsSince(ctx context.Context, since time.Time, limit int32) ([]ScanResult, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, scanned_at, tenant_id, scan_job_id, file_path, entity_types, entity_counts, risk_score, risk_tier, exposure_level, file_size_bytes, scan_error, policy_violations
		FROM scan_results
		WHERE scanned_at > $1
		ORDER BY scanned_at ASC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scan results since cursor: %w", err)
	}
	defer rows.Close()
	var out []ScanResult
	for rows.Next() {
		var r ScanResult
		if err := scanScanResult(rows, &r); err != nil {
			return nil, fmt.Errorf("scanning scan result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanScanResult(row rowScanner, r *ScanResult) error {
	return row.Scan(&r.ID, &r.ScannedAt, &r.TenantID, &r.ScanJobID, &r.FilePath, &r.EntityTypes, &r.EntityCounts,
		&r.RiskScore, &r.RiskTier, &r.ExposureLevel, &r.FileSizeBytes, &r.ScanError, &r.PolicyViolations)
}

// ScanSummary mirrors the scan_summaries table row: one per completed
// scan job, the denormalized rollup used by dashboard list views.
type ScanSummary struct {
	ScanJobID        uuid.UUID
	TenantID         uuid.UUID
	FilesScanned     int64
	TotalEntities    int64
	CriticalCount    int64
	HighCount        int64
	MediumCount      int64
	LowCount         int64
	TopEntityTypes   []string
	GeneratedAt      time.Time
}

type InsertScanSummaryParams struct {
	ScanJobID      uuid.UUID
	TenantID       uuid.UUID
	FilesScanned   int64
	TotalEntities  int64
	CriticalCount  int64
	HighCount      int64
	MediumCount    int64
	LowCount       int64
	TopEntityTypes []string
}

func (q *Queries) InsertScanSummary(ctx context.Context, arg InsertScanSummaryParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO scan_summaries (scan_job_id, tenant_id, files_scanned, total_entities, critical_count, high_count, medium_count, low_count, top_entity_types, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (scan_job_id) DO UPDATE SET
			files_scanned = EXCLUDED.files_scanned,
			total_entities = EXCLUDED.total_entities,
			critical_count = EXCLUDED.critical_count,
			high_count = EXCLUDED.high_count,
			medium_count = EXCLUDED.medium_count,
			low_count = EXCLUDED.low_count,
			top_entity_types = EXCLUDED.top_entity_types,
			generated_at = now()
	`, arg.ScanJobID, arg.TenantID, arg.FilesScanned, arg.TotalEntities, arg.CriticalCount, arg.HighCount, arg.MediumCount, arg.LowCount, arg.TopEntityTypes)
	if err != nil {
		return fmt.Errorf("inserting scan summary: %w", err)
	}
	return nil
}

func (q *Queries) GetScanSummary(ctx context.Context, tenantID, scanJobID uuid.UUID) (ScanSummary, error) {
	var s ScanSummary
	row := q.db.QueryRow(ctx, `
		SELECT scan_job_id, tenant_id, files_scanned, total_entities, critical_count, high_count, medium_count, low_count, top_entity_types, generated_at
		FROM scan_summaries WHERE tenant_id = $1 AND scan_job_id = $2
	`, tenantID, scanJobID)
	if err := row.Scan(&s.ScanJobID, &s.TenantID, &s.FilesScanned, &s.TotalEntities, &s.CriticalCount, &s.HighCount, &s.MediumCount, &s.LowCount, &s.TopEntityTypes, &s.GeneratedAt); err != nil {
		return ScanSummary{}, fmt.Errorf("querying scan summary: %w", err)
	}
	return s, nil
}

// TierCounts is the per-tier rollup used to build a ScanSummary once a
// job (or all of its partitions) reaches a terminal state.
type TierCounts struct {
	Critical int64
	High     int64
	Medium   int64
	Low      int64
	Minimal  int64
}

// AggregateScanJobTierCounts tallies scan_results rows by risk_tier for
// one job, for the aggregator's ScanSummary finalization step.
func (q *Queries) AggregateScanJobTierCounts(ctx context.Context, scanJobID uuid.UUID) (TierCounts, error) {
	rows, err := q.db.Query(ctx, `
		SELECT risk_tier, count(*) FROM scan_results WHERE scan_job_id = $1 GROUP BY risk_tier
	`, scanJobID)
	if err != nil {
		return TierCounts{}, fmt.Errorf("aggregating tier counts: %w", err)
	}
	defer rows.Close()
	var tc TierCounts
	for rows.Next() {
		var tier string
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return TierCounts{}, fmt.Errorf("scanning tier count row: %w", err)
		}
		switch tier {
		case "CRITICAL":
			tc.Critical = n
		case "HIGH":
			tc.High = n
		case "MEDIUM":
			tc.Medium = n
		case "LOW":
			tc.Low = n
		case "MINIMAL":
			tc.Minimal = n
		}
	}
	return tc, rows.Err()
}

// TopEntityTypesForJob returns the most frequent entity types detected
// across a job's results, for the ScanSummary's top_entity_types column.
func (q *Queries) TopEntityTypesForJob(ctx context.Context, scanJobID uuid.UUID, limit int32) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT key, sum((value)::int) AS total
		FROM scan_results, jsonb_each_text(entity_counts)
		WHERE scan_job_id = $1
		GROUP BY key
		ORDER BY total DESC
		LIMIT $2
	`, scanJobID, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregating top entity types: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var key string
		var total int64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, fmt.Errorf("scanning top entity type row: %w", err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}
