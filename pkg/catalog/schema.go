package catalog

import (
	"encoding/json"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
)

// uuidType is the fixed_size_binary(16) encoding used for every UUID
// column.
var uuidType = &arrow.FixedSizeBinaryType{ByteWidth: 16}

// tsType is the timestamp[ms, UTC] encoding used for every time
// column.
var tsType = &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}

// Low-cardinality string columns (risk_tier, exposure_level, action,
// kind, status) are left as plain Utf8 at the Arrow level: dictionary
// encoding for these is applied by the Parquet writer itself via its
// default dictionary-encoding page layout, so there is no need to carry
// an arrow.Dictionary type through the builder just to get the same
// on-disk representation.

var scanResultSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: uuidType},
	{Name: "scanned_at", Type: tsType},
	{Name: "tenant_id", Type: uuidType},
	{Name: "scan_job_id", Type: uuidType},
	{Name: "file_path", Type: arrow.BinaryTypes.String},
	{Name: "entity_types", Type: arrow.ListOf(arrow.BinaryTypes.String)},
	{Name: "entity_counts", Type: arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int32)},
	{Name: "risk_score", Type: arrow.PrimitiveTypes.Int32},
	{Name: "risk_tier", Type: arrow.BinaryTypes.String},
	{Name: "exposure_level", Type: arrow.BinaryTypes.String},
	{Name: "file_size_bytes", Type: arrow.PrimitiveTypes.Int64},
	{Name: "scan_error", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "policy_violations", Type: arrow.ListOf(arrow.BinaryTypes.String)},
}, nil)

var fileAccessEventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: uuidType},
	{Name: "occurred_at", Type: tsType},
	{Name: "tenant_id", Type: uuidType},
	{Name: "scan_target_id", Type: uuidType},
	{Name: "file_path", Type: arrow.BinaryTypes.String},
	{Name: "actor", Type: arrow.BinaryTypes.String},
	{Name: "action", Type: arrow.BinaryTypes.String},
	{Name: "source_ip", Type: arrow.BinaryTypes.String},
}, nil)

var auditLogSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: uuidType},
	{Name: "created_at", Type: tsType},
	{Name: "tenant_id", Type: uuidType},
	{Name: "actor_id", Type: arrow.BinaryTypes.String},
	{Name: "action", Type: arrow.BinaryTypes.String},
	{Name: "target", Type: arrow.BinaryTypes.String},
	{Name: "detail", Type: arrow.BinaryTypes.String},
}, nil)

var monitoredFileSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: uuidType},
	{Name: "created_at", Type: tsType},
	{Name: "tenant_id", Type: uuidType},
	{Name: "scan_target_id", Type: uuidType},
	{Name: "file_path", Type: arrow.BinaryTypes.String},
	{Name: "last_result_id", Type: uuidType, Nullable: true},
	{Name: "risk_tier", Type: arrow.BinaryTypes.String},
	{Name: "exposure_level", Type: arrow.BinaryTypes.String},
}, nil)

var remediationActionSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: uuidType},
	{Name: "created_at", Type: tsType},
	{Name: "tenant_id", Type: uuidType},
	{Name: "scan_result_id", Type: uuidType},
	{Name: "kind", Type: arrow.BinaryTypes.String},
	{Name: "status", Type: arrow.BinaryTypes.String},
	{Name: "detail", Type: arrow.BinaryTypes.String},
	{Name: "applied_at", Type: tsType, Nullable: true},
}, nil)

// schemaFor returns the fixed schema for a catalog table.
func schemaFor(t Table) *arrow.Schema {
	switch t {
	case TableScanResults:
		return scanResultSchema
	case TableFileAccessEvents:
		return fileAccessEventSchema
	case TableAuditLog:
		return auditLogSchema
	case TableMonitoredFiles:
		return monitoredFileSchema
	case TableRemediationAction:
		return remediationActionSchema
	default:
		return nil
	}
}

func appendUUID(b *array.FixedSizeBinaryBuilder, id uuid.UUID) {
	b.Append(id[:])
}

func appendUUIDPtr(b *array.FixedSizeBinaryBuilder, id *uuid.UUID) {
	if id == nil || *id == uuid.Nil {
		b.AppendNull()
		return
	}
	b.Append((*id)[:])
}

func appendStringList(b *array.ListBuilder, values []string) {
	b.Append(true)
	vb := b.ValueBuilder().(*array.StringBuilder)
	for _, v := range values {
		vb.Append(v)
	}
}

func appendCountsMap(b *array.MapBuilder, counts map[string]int32) {
	b.Append(true)
	kb := b.KeyBuilder().(*array.StringBuilder)
	ib := b.ItemBuilder().(*array.Int32Builder)
	for k, v := range counts {
		kb.Append(k)
		ib.Append(v)
	}
}

func buildScanResultRecord(mem memory.Allocator, rows []db.ScanResult) arrow.Record {
	rb := array.NewRecordBuilder(mem, scanResultSchema)
	defer rb.Release()

	idB := rb.Field(0).(*array.FixedSizeBinaryBuilder)
	tsB := rb.Field(1).(*array.TimestampBuilder)
	tenantB := rb.Field(2).(*array.FixedSizeBinaryBuilder)
	jobB := rb.Field(3).(*array.FixedSizeBinaryBuilder)
	pathB := rb.Field(4).(*array.StringBuilder)
	typesB := rb.Field(5).(*array.ListBuilder)
	countsB := rb.Field(6).(*array.MapBuilder)
	scoreB := rb.Field(7).(*array.Int32Builder)
	tierB := rb.Field(8).(*array.StringBuilder)
	expB := rb.Field(9).(*array.StringBuilder)
	sizeB := rb.Field(10).(*array.Int64Builder)
	errB := rb.Field(11).(*array.StringBuilder)
	violB := rb.Field(12).(*array.ListBuilder)

	for _, r := range rows {
		appendUUID(idB, r.ID)
		tsB.Append(arrow.Timestamp(r.ScannedAt.UnixMilli()))
		appendUUID(tenantB, r.TenantID)
		appendUUID(jobB, r.ScanJobID)
		pathB.Append(r.FilePath)
		appendStringList(typesB, r.EntityTypes)
		appendCountsMap(countsB, r.EntityCounts)
		scoreB.Append(r.RiskScore)
		tierB.Append(r.RiskTier)
		expB.Append(r.ExposureLevel)
		sizeB.Append(r.FileSizeBytes)
		if r.ScanError == "" {
			errB.AppendNull()
		} else {
			errB.Append(r.ScanError)
		}
		appendStringList(violB, r.PolicyViolations)
	}
	return rb.NewRecord()
}

func buildFileAccessEventRecord(mem memory.Allocator, rows []db.FileAccessEvent) arrow.Record {
	rb := array.NewRecordBuilder(mem, fileAccessEventSchema)
	defer rb.Release()

	idB := rb.Field(0).(*array.FixedSizeBinaryBuilder)
	tsB := rb.Field(1).(*array.TimestampBuilder)
	tenantB := rb.Field(2).(*array.FixedSizeBinaryBuilder)
	targetB := rb.Field(3).(*array.FixedSizeBinaryBuilder)
	pathB := rb.Field(4).(*array.StringBuilder)
	actorB := rb.Field(5).(*array.StringBuilder)
	actionB := rb.Field(6).(*array.StringBuilder)
	ipB := rb.Field(7).(*array.StringBuilder)

	for _, e := range rows {
		appendUUID(idB, e.ID)
		tsB.Append(arrow.Timestamp(e.OccurredAt.UnixMilli()))
		appendUUID(tenantB, e.TenantID)
		appendUUID(targetB, e.ScanTargetID)
		pathB.Append(e.FilePath)
		actorB.Append(e.Actor)
		actionB.Append(e.Action)
		ipB.Append(e.SourceIP)
	}
	return rb.NewRecord()
}

func buildAuditLogRecord(mem memory.Allocator, rows []db.AuditLog) arrow.Record {
	rb := array.NewRecordBuilder(mem, auditLogSchema)
	defer rb.Release()

	idB := rb.Field(0).(*array.FixedSizeBinaryBuilder)
	tsB := rb.Field(1).(*array.TimestampBuilder)
	tenantB := rb.Field(2).(*array.FixedSizeBinaryBuilder)
	actorB := rb.Field(3).(*array.StringBuilder)
	actionB := rb.Field(4).(*array.StringBuilder)
	targetB := rb.Field(5).(*array.StringBuilder)
	detailB := rb.Field(6).(*array.StringBuilder)

	for _, a := range rows {
		appendUUID(idB, a.ID)
		tsB.Append(arrow.Timestamp(a.CreatedAt.UnixMilli()))
		appendUUID(tenantB, a.TenantID)
		actorB.Append(a.ActorID)
		actionB.Append(a.Action)
		targetB.Append(a.Target)
		detailB.Append(rawMessageToString(a.Detail))
	}
	return rb.NewRecord()
}

func buildMonitoredFileRecord(mem memory.Allocator, rows []db.MonitoredFile) arrow.Record {
	rb := array.NewRecordBuilder(mem, monitoredFileSchema)
	defer rb.Release()

	idB := rb.Field(0).(*array.FixedSizeBinaryBuilder)
	tsB := rb.Field(1).(*array.TimestampBuilder)
	tenantB := rb.Field(2).(*array.FixedSizeBinaryBuilder)
	targetB := rb.Field(3).(*array.FixedSizeBinaryBuilder)
	pathB := rb.Field(4).(*array.StringBuilder)
	lastResultB := rb.Field(5).(*array.FixedSizeBinaryBuilder)
	tierB := rb.Field(6).(*array.StringBuilder)
	expB := rb.Field(7).(*array.StringBuilder)

	for _, m := range rows {
		appendUUID(idB, m.ID)
		tsB.Append(arrow.Timestamp(m.CreatedAt.UnixMilli()))
		appendUUID(tenantB, m.TenantID)
		appendUUID(targetB, m.ScanTargetID)
		pathB.Append(m.FilePath)
		appendUUIDPtr(lastResultB, m.LastResultID)
		tierB.Append(m.RiskTier)
		expB.Append(m.ExposureLevel)
	}
	return rb.NewRecord()
}

func buildRemediationActionRecord(mem memory.Allocator, rows []db.RemediationAction) arrow.Record {
	rb := array.NewRecordBuilder(mem, remediationActionSchema)
	defer rb.Release()

	idB := rb.Field(0).(*array.FixedSizeBinaryBuilder)
	tsB := rb.Field(1).(*array.TimestampBuilder)
	tenantB := rb.Field(2).(*array.FixedSizeBinaryBuilder)
	resultB := rb.Field(3).(*array.FixedSizeBinaryBuilder)
	kindB := rb.Field(4).(*array.StringBuilder)
	statusB := rb.Field(5).(*array.StringBuilder)
	detailB := rb.Field(6).(*array.StringBuilder)
	appliedB := rb.Field(7).(*array.TimestampBuilder)

	for _, a := range rows {
		appendUUID(idB, a.ID)
		tsB.Append(arrow.Timestamp(a.CreatedAt.UnixMilli()))
		appendUUID(tenantB, a.TenantID)
		appendUUID(resultB, a.ScanResultID)
		kindB.Append(a.Kind)
		statusB.Append(a.Status)
		detailB.Append(rawMessageToString(a.Detail))
		if a.AppliedAt == nil {
			appliedB.AppendNull()
		} else {
			appliedB.Append(arrow.Timestamp(a.AppliedAt.UnixMilli()))
		}
	}
	return rb.NewRecord()
}

func rawMessageToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
