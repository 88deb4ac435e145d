package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/config"
	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/internal/telemetry"
)

// Writer drains newly committed operational rows into Hive-partitioned
// Parquet, one table at a time under its own cursor so a failure on
// one table never blocks the others.
type Writer struct {
	q       *db.Queries
	store   objectStore
	logger  *slog.Logger
	mem     memory.Allocator
	codec   compress.Compression
}

// New builds a Writer from configuration. The backend is resolved once
// at construction; a misconfigured backend fails fast here rather than
// on the first flush cycle.
func New(q *db.Queries, cfg *config.Config, logger *slog.Logger) (*Writer, error) {
	store, err := newObjectStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("building catalog object store: %w", err)
	}
	codec, err := parseCompression(cfg.CatalogCompression)
	if err != nil {
		return nil, err
	}
	return &Writer{
		q:      q,
		store:  store,
		logger: logger,
		mem:    memory.NewGoAllocator(),
		codec:  codec,
	}, nil
}

func parseCompression(name string) (compress.Compression, error) {
	switch name {
	case "", "zstd":
		return compress.Codecs.Zstd, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return 0, fmt.Errorf("unknown catalog compression %q", name)
	}
}

// FlushAll runs one flush cycle across every table, logging and
// continuing past a failure on any single table so catalog flush
// failures never block operational writes. Callers wrap this in
// pkg/queue.RunSingletonTask under an advisory lock.
func (w *Writer) FlushAll(ctx context.Context) error {
	var firstErr error
	for _, t := range Tables {
		n, err := w.flushTable(ctx, t)
		if err != nil {
			w.logger.Error("catalog flush failed", "table", t, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if n > 0 {
			w.logger.Info("catalog flush committed", "table", t, "rows", n)
		}
	}
	return firstErr
}

func (w *Writer) flushTable(ctx context.Context, t Table) (int, error) {
	cursor, err := w.q.GetCatalogFlushCursor(ctx, string(t))
	var since time.Time
	if err == nil {
		since = cursor.Watermark
	}
	// A missing cursor row (first-ever flush) leaves since at the zero
	// value, which selects every historical row; this matches the
	// cursor tables' "ON CONFLICT DO UPDATE" upsert pattern used
	// elsewhere in internal/db.

	switch t {
	case TableScanResults:
		rows, err := w.q.ScanResultsSince(ctx, since, batchSize)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}
		groups := groupByTenantDate(len(rows), func(i int) (uuid.UUID, time.Time) {
			return rows[i].TenantID, rows[i].ScannedAt
		})
		for key, idx := range groups {
			sub := make([]db.ScanResult, len(idx))
			for j, i := range idx {
				sub[j] = rows[i]
			}
			rec := buildScanResultRecord(w.mem, sub)
			if err := w.writePartition(ctx, t, key, rec); err != nil {
				rec.Release()
				return 0, err
			}
			rec.Release()
		}
		latest := rows[len(rows)-1].ScannedAt
		if err := w.q.UpsertCatalogFlushCursor(ctx, string(t), latest); err != nil {
			return 0, fmt.Errorf("advancing cursor: %w", err)
		}
		telemetry.CatalogFlushRowsTotal.WithLabelValues(string(t)).Add(float64(len(rows)))
		return len(rows), nil

	case TableFileAccessEvents:
		rows, err := w.q.FileAccessEventsSince(ctx, since, batchSize)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}
		groups := groupByTenantDate(len(rows), func(i int) (uuid.UUID, time.Time) {
			return rows[i].TenantID, rows[i].OccurredAt
		})
		for key, idx := range groups {
			sub := make([]db.FileAccessEvent, len(idx))
			for j, i := range idx {
				sub[j] = rows[i]
			}
			rec := buildFileAccessEventRecord(w.mem, sub)
			if err := w.writePartition(ctx, t, key, rec); err != nil {
				rec.Release()
				return 0, err
			}
			rec.Release()
		}
		latest := rows[len(rows)-1].OccurredAt
		if err := w.q.UpsertCatalogFlushCursor(ctx, string(t), latest); err != nil {
			return 0, fmt.Errorf("advancing cursor: %w", err)
		}
		telemetry.CatalogFlushRowsTotal.WithLabelValues(string(t)).Add(float64(len(rows)))
		return len(rows), nil

	case TableAuditLog:
		rows, err := w.q.AuditLogsSince(ctx, since, batchSize)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}
		groups := groupByTenantDate(len(rows), func(i int) (uuid.UUID, time.Time) {
			return rows[i].TenantID, rows[i].CreatedAt
		})
		for key, idx := range groups {
			sub := make([]db.AuditLog, len(idx))
			for j, i := range idx {
				sub[j] = rows[i]
			}
			rec := buildAuditLogRecord(w.mem, sub)
			if err := w.writePartition(ctx, t, key, rec); err != nil {
				rec.Release()
				return 0, err
			}
			rec.Release()
		}
		latest := rows[len(rows)-1].CreatedAt
		if err := w.q.UpsertCatalogFlushCursor(ctx, string(t), latest); err != nil {
			return 0, fmt.Errorf("advancing cursor: %w", err)
		}
		telemetry.CatalogFlushRowsTotal.WithLabelValues(string(t)).Add(float64(len(rows)))
		return len(rows), nil

	case TableMonitoredFiles:
		rows, err := w.q.MonitoredFilesSince(ctx, since, batchSize)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}
		groups := groupByTenantDate(len(rows), func(i int) (uuid.UUID, time.Time) {
			return rows[i].TenantID, rows[i].CreatedAt
		})
		for key, idx := range groups {
			sub := make([]db.MonitoredFile, len(idx))
			for j, i := range idx {
				sub[j] = rows[i]
			}
			rec := buildMonitoredFileRecord(w.mem, sub)
			if err := w.writePartition(ctx, t, key, rec); err != nil {
				rec.Release()
				return 0, err
			}
			rec.Release()
		}
		latest := rows[len(rows)-1].CreatedAt
		if err := w.q.UpsertCatalogFlushCursor(ctx, string(t), latest); err != nil {
			return 0, fmt.Errorf("advancing cursor: %w", err)
		}
		telemetry.CatalogFlushRowsTotal.WithLabelValues(string(t)).Add(float64(len(rows)))
		return len(rows), nil

	case TableRemediationAction:
		rows, err := w.q.RemediationActionsSince(ctx, since, batchSize)
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}
		groups := groupByTenantDate(len(rows), func(i int) (uuid.UUID, time.Time) {
			return rows[i].TenantID, rows[i].CreatedAt
		})
		for key, idx := range groups {
			sub := make([]db.RemediationAction, len(idx))
			for j, i := range idx {
				sub[j] = rows[i]
			}
			rec := buildRemediationActionRecord(w.mem, sub)
			if err := w.writePartition(ctx, t, key, rec); err != nil {
				rec.Release()
				return 0, err
			}
			rec.Release()
		}
		latest := rows[len(rows)-1].CreatedAt
		if err := w.q.UpsertCatalogFlushCursor(ctx, string(t), latest); err != nil {
			return 0, fmt.Errorf("advancing cursor: %w", err)
		}
		telemetry.CatalogFlushRowsTotal.WithLabelValues(string(t)).Add(float64(len(rows)))
		return len(rows), nil

	default:
		return 0, fmt.Errorf("unknown catalog table %q", t)
	}
}

// partitionKey identifies one Hive partition: a tenant and a calendar
// day of the table's date column.
type partitionKey struct {
	tenantID uuid.UUID
	date     string
}

// groupByTenantDate buckets row indices by (tenant_id, date) so a single
// incremental batch spanning multiple tenants and days still produces
// one Parquet file per partition, and no partition file ever mixes
// tenants.
func groupByTenantDate(n int, keyOf func(i int) (uuid.UUID, time.Time)) map[partitionKey][]int {
	groups := make(map[partitionKey][]int)
	for i := 0; i < n; i++ {
		tenantID, ts := keyOf(i)
		key := partitionKey{tenantID: tenantID, date: dateOf(ts)}
		groups[key] = append(groups[key], i)
	}
	return groups
}

// writePartition encodes one partition's record as Parquet and writes it
// through the configured store.
func (w *Writer) writePartition(ctx context.Context, t Table, key partitionKey, rec arrow.Record) error {
	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(w.codec))
	fw, err := pqarrow.NewFileWriter(schemaFor(t), &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("opening parquet writer: %w", err)
	}
	if err := fw.WriteBuffered(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing parquet record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}

	path := hivePath(t, key.tenantID.String(), key.date, time.Now().UTC())
	if err := w.store.Put(ctx, path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing catalog partition %s: %w", path, err)
	}
	return nil
}
