// Package catalog implements the columnar catalog writer and embedded
// analytics facade: a periodic flush of newly committed
// operational rows into Hive-partitioned Parquet, queried in-process by
// an embedded analytical engine rather than the operational store.
package catalog

import (
	"time"
)

// Table names the five operational tables the catalog mirrors. Each has
// a fixed Arrow schema and a date column used for Hive partitioning.
type Table string

const (
	TableScanResults       Table = "scan_results"
	TableFileAccessEvents  Table = "file_access_events"
	TableAuditLog          Table = "audit_log"
	TableMonitoredFiles    Table = "monitored_files"
	TableRemediationAction Table = "remediation_actions"
)

// Tables lists every table in flush order. Order doesn't affect
// correctness (each table has its own cursor) but keeps flush logs
// deterministic.
var Tables = []Table{
	TableScanResults,
	TableFileAccessEvents,
	TableAuditLog,
	TableMonitoredFiles,
	TableRemediationAction,
}

// batchSize bounds how many rows a single flush cycle reads per table,
// matching the harvester's batching approach so one cycle can't hold the
// connection pool for an unbounded amount of time.
const batchSize = 5000

// smallFileThreshold is the file count above which compaction merges a
// partition.
const smallFileThreshold = 8

// dateColumn names the partitioning time column per table, used as the
// Hive key name rather than a literal "date".
var dateColumn = map[Table]string{
	TableScanResults:       "scanned_at",
	TableFileAccessEvents:  "occurred_at",
	TableAuditLog:          "created_at",
	TableMonitoredFiles:    "created_at",
	TableRemediationAction: "created_at",
}

// hivePath builds the `table=.../tenant=.../{date_col}=YYYY-MM-DD/part-{ts}.parquet`
// key. partTime stamps the file name so repeated flushes of the same
// partition never collide.
func hivePath(table Table, tenantID string, date string, partTime time.Time) string {
	return string(table) + "/tenant=" + tenantID + "/" + dateColumn[table] + "=" + date + "/part-" + partTime.Format("20060102T150405.000000000") + ".parquet"
}

func dateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
