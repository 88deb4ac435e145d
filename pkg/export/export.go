// Package export implements the SIEM export engine: a list of sink
// adapters sharing one cursor-tracked fan-out, each turning a
// scan_results row into a sink-specific bit-exact wire format (Splunk
// HEC, Sentinel, QRadar LEEF, Elastic _bulk, Syslog-CEF).
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
)

// DefaultBatchSize caps how many records a single ExportBatch call
// carries when a sink doesn't declare its own limit. Splunk HEC's
// 500-event batch cap is generalized as the default.
const DefaultBatchSize = 500

// RecordTypeScanResults is the only record type wired in this pass;
// file_access_events/audit_log export would plug in the same way once
// a sink needs them.
const RecordTypeScanResults = "scan_results"

// Record is the sink-agnostic shape every format encoder starts from,
// built off internal/db.ScanResult.
type Record struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	JobID            uuid.UUID
	Timestamp        time.Time
	FilePath         string
	EntityCounts     map[string]int32
	RiskScore        int32
	RiskTier         string
	ExposureLevel    string
	PolicyViolations []string
}

// RecordFromScanResult adapts the operational row shape to the export
// record shape used by every sink encoder.
func RecordFromScanResult(r db.ScanResult) Record {
	return Record{
		ID:               r.ID,
		TenantID:         r.TenantID,
		JobID:            r.ScanJobID,
		Timestamp:        r.ScannedAt,
		FilePath:         r.FilePath,
		EntityCounts:     r.EntityCounts,
		RiskScore:        r.RiskScore,
		RiskTier:         r.RiskTier,
		ExposureLevel:    r.ExposureLevel,
		PolicyViolations: r.PolicyViolations,
	}
}

// ToMap projects a Record into the generic event body every JSON-based
// sink (Splunk, Sentinel, Elastic) embeds.
func (r Record) ToMap() map[string]any {
	return map[string]any{
		"id":                r.ID.String(),
		"tenant_id":         r.TenantID.String(),
		"job_id":            r.JobID.String(),
		"timestamp":         r.Timestamp.UTC().Format(time.RFC3339),
		"file_path":         r.FilePath,
		"entity_counts":     r.EntityCounts,
		"risk_score":        r.RiskScore,
		"risk_tier":         r.RiskTier,
		"exposure_level":    r.ExposureLevel,
		"policy_violations": r.PolicyViolations,
	}
}

// Sink is implemented once per SIEM product.
type Sink interface {
	Name() string
	ExportBatch(ctx context.Context, records []Record) (int, error)
	TestConnection(ctx context.Context) error
}

// batchSizer lets a sink override DefaultBatchSize (Splunk HEC's
// explicit cap); sinks that don't implement it get the default.
type batchSizer interface {
	MaxBatchSize() int
}

func maxBatchSize(s Sink) int {
	if bs, ok := s.(batchSizer); ok {
		if n := bs.MaxBatchSize(); n > 0 {
			return n
		}
	}
	return DefaultBatchSize
}

// Engine fans a set of records out to every configured sink, isolating
// failures per sink and advancing each sink's own cursor
// independently, so one failing sink never blocks the others.
type Engine struct {
	q      *db.Queries
	sinks  []Sink
	logger *slog.Logger
}

// New builds an Engine over the given sinks. A nil or empty sinks slice
// is valid: the periodic loop becomes a no-op until sinks are
// configured.
func New(q *db.Queries, logger *slog.Logger, sinks ...Sink) *Engine {
	return &Engine{q: q, sinks: sinks, logger: logger}
}

// ExportScan pushes one job's findings to every sink immediately after
// a scan completes.
func (e *Engine) ExportScan(ctx context.Context, tenantID uuid.UUID, records []Record) {
	for _, sink := range e.sinks {
		sent := e.sendChunked(ctx, sink, records)
		e.logger.Info("post-scan SIEM export", "sink", sink.Name(), "tenant_id", tenantID, "submitted", len(records), "sent", sent)
	}
}

// ExportSinceLast runs the periodic export: for every sink, every
// tenant with new scan results advances that sink's cursor
// independently.
func (e *Engine) ExportSinceLast(ctx context.Context) error {
	since := time.Now().Add(-7 * 24 * time.Hour).UTC()
	tenants, err := e.q.ListTenantsWithScanResultsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("listing tenants with recent scan results: %w", err)
	}

	for _, tenantID := range tenants {
		for _, sink := range e.sinks {
			if err := e.exportTenantSinceLast(ctx, tenantID, sink); err != nil {
				e.logger.Error("periodic SIEM export failed", "sink", sink.Name(), "tenant_id", tenantID, "error", err)
			}
		}
	}
	return nil
}

func (e *Engine) exportTenantSinceLast(ctx context.Context, tenantID uuid.UUID, sink Sink) error {
	cursor, err := e.q.GetExportCursor(ctx, tenantID, sink.Name(), RecordTypeScanResults)
	var since time.Time
	if err == nil {
		since = cursor.LastExported
	}

	rows, err := e.q.ScanResultsForTenantSince(ctx, tenantID, since, int32(DefaultBatchSize*4))
	if err != nil {
		return fmt.Errorf("loading scan results since cursor: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = RecordFromScanResult(r)
	}

	newCursor := e.pushAdvancing(ctx, sink, records, since)
	if newCursor.After(since) {
		if err := e.q.UpsertExportCursor(ctx, tenantID, sink.Name(), RecordTypeScanResults, newCursor); err != nil {
			return fmt.Errorf("advancing export cursor: %w", err)
		}
	}
	return nil
}

// ExportFull runs an on-demand export bounded by explicit time and
// record-type filters. recordTypes is accepted for the interface's
// sake; only scan_results is wired in this pass.
func (e *Engine) ExportFull(ctx context.Context, tenantID uuid.UUID, since time.Time, recordTypes []string) error {
	if !containsRecordType(recordTypes, RecordTypeScanResults) {
		return nil
	}
	rows, err := e.q.ScanResultsForTenantSince(ctx, tenantID, since, int32(DefaultBatchSize*10))
	if err != nil {
		return fmt.Errorf("loading scan results for full export: %w", err)
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = RecordFromScanResult(r)
	}
	for _, sink := range e.sinks {
		sent := e.sendChunked(ctx, sink, records)
		e.logger.Info("full SIEM export", "sink", sink.Name(), "tenant_id", tenantID, "submitted", len(records), "sent", sent)
	}
	return nil
}

func containsRecordType(types []string, want string) bool {
	if len(types) == 0 {
		return want == RecordTypeScanResults
	}
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// sendChunked pushes records to a sink in batches no larger than the
// sink's declared max, logging but not failing the caller on a chunk
// error (used by the two entry points that don't track a cursor).
func (e *Engine) sendChunked(ctx context.Context, sink Sink, records []Record) int {
	limit := maxBatchSize(sink)
	sent := 0
	for start := 0; start < len(records); start += limit {
		end := start + limit
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		n, err := sink.ExportBatch(ctx, chunk)
		sent += n
		recordMetric(sink.Name(), err == nil && n == len(chunk))
		if err != nil {
			e.logger.Error("SIEM export batch failed", "sink", sink.Name(), "error", err)
		}
	}
	return sent
}

// pushAdvancing is sendChunked's cursor-aware sibling: it stops at the
// first chunk that doesn't fully land (the cursor only advances when
// every record of a chunk is acked) and returns the highest timestamp
// that's safe to persist.
func (e *Engine) pushAdvancing(ctx context.Context, sink Sink, records []Record, floor time.Time) time.Time {
	limit := maxBatchSize(sink)
	cursor := floor
	for start := 0; start < len(records); start += limit {
		end := start + limit
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		n, err := sink.ExportBatch(ctx, chunk)
		recordMetric(sink.Name(), err == nil && n == len(chunk))
		if err != nil || n != len(chunk) {
			e.logger.Error("SIEM export chunk incomplete, halting cursor advance", "sink", sink.Name(), "error", err, "sent", n, "submitted", len(chunk))
			break
		}
		cursor = chunk[len(chunk)-1].Timestamp
	}
	return cursor
}
