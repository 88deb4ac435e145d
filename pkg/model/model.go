// Package model holds the entities of the data model as plain
// Go structs. These are the shapes passed between components; the
// internal/db package maps them to and from SQL rows.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExposureLevel is the qualitative accessibility of a file, used as a
// risk multiplier by the scorer.
type ExposureLevel string

const (
	ExposurePrivate  ExposureLevel = "PRIVATE"
	ExposureInternal ExposureLevel = "INTERNAL"
	ExposureOrgWide  ExposureLevel = "ORG_WIDE"
	ExposurePublic   ExposureLevel = "PUBLIC"
)

// RiskTier is the bucket a risk_score maps to through the tier table.
type RiskTier string

const (
	TierMinimal  RiskTier = "MINIMAL"
	TierLow      RiskTier = "LOW"
	TierMedium   RiskTier = "MEDIUM"
	TierHigh     RiskTier = "HIGH"
	TierCritical RiskTier = "CRITICAL"
)

// JobStatus is the state machine for ScanJob and ScanPartition.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// ScanMode distinguishes a single-pass scan from a fan-out scan.
type ScanMode string

const (
	ScanModeSingle ScanMode = "single"
	ScanModeFanout ScanMode = "fanout"
)

// Tenant is the isolation root. Every other entity carries TenantID.
type Tenant struct {
	ID        uuid.UUID
	Slug      string
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// AdapterKind tags the adapter variant a scan target is configured
// with; pkg/adapter builds the concrete implementation from it.
type AdapterKind string

const (
	AdapterFilesystem AdapterKind = "filesystem"
	AdapterSMB        AdapterKind = "smb"
	AdapterNFS        AdapterKind = "nfs"
	AdapterSharePoint AdapterKind = "sharepoint"
	AdapterOneDrive   AdapterKind = "onedrive"
	AdapterS3         AdapterKind = "s3"
	AdapterGCS        AdapterKind = "gcs"
	AdapterAzureBlob  AdapterKind = "azure_blob"
)

// ScanTarget is a named binding of (tenant, adapter kind, adapter config).
type ScanTarget struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	AdapterKind AdapterKind
	Config      json.RawMessage
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// ScanJob is one run against one target.
type ScanJob struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	TargetID            uuid.UUID
	Status              JobStatus
	ScanMode            ScanMode
	TotalPartitions     int
	PartitionsCompleted int
	PartitionsFailed    int
	FilesScanned        int
	FilesWithPII        int
	TotalEntities        int
	CreatedAt           time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
	Cancelled           bool
}

// ScanPartition is a slice of work inside a fan-out job.
type ScanPartition struct {
	ID                uuid.UUID
	JobID             uuid.UUID
	TenantID          uuid.UUID
	Status            JobStatus
	WorkerID          string
	PartitionSpec     json.RawMessage
	RetryCount        int
	LastProcessedPath string
	FilesScanned      int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ScanResult is one file's verdict. Immutable after insert; range
// partitioned by ScannedAt monthly, composite primary key (ID, ScannedAt).
type ScanResult struct {
	ID              uuid.UUID
	ScannedAt       time.Time
	TenantID        uuid.UUID
	JobID           uuid.UUID
	PartitionID     *uuid.UUID
	FilePath        string
	FileName        string
	FileSize        int64
	ContentHash     string
	RiskScore       int
	RiskTier        RiskTier
	EntityCounts    map[string]int
	ExposureLevel   ExposureLevel
	LabelApplied    string
	PolicyViolations []string
	ScanError       string
}

// ScanSummary is a per-job pre-aggregate, one row per completed job.
type ScanSummary struct {
	JobID          uuid.UUID
	TenantID       uuid.UUID
	TierCounts     map[string]int
	TopEntityTypes []string
	DurationMs     int64
	LabelsApplied  int
	CreatedAt      time.Time
}

// QueuedJob is one row in the durable job queue.
type QueuedJob struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	TaskType    string
	Payload     json.RawMessage
	Priority    int
	Status      JobStatus
	RetryCount  int
	MaxRetries  int
	RunAfter    time.Time
	LeasedUntil *time.Time
	LeasedBy    string
	EnqueuedAt  time.Time
}

// Schedule is a cron-driven trigger for a ScanTarget.
type Schedule struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	CronExpression  string
	TargetID        uuid.UUID
	Enabled         bool
	LastRunAt       *time.Time
	NextRunAt       time.Time
}

// MonitoredFile registers a file under access auditing.
type MonitoredFile struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	FilePath  string
	CreatedAt time.Time
}

// AccessAction is the kind of filesystem/object access an event records.
type AccessAction string

const (
	AccessRead   AccessAction = "read"
	AccessWrite  AccessAction = "write"
	AccessDelete AccessAction = "delete"
	AccessRename AccessAction = "rename"
)

// FileAccessEvent is range-partitioned by EventTime.
type FileAccessEvent struct {
	ID           uuid.UUID
	EventTime    time.Time
	TenantID     uuid.UUID
	FilePath     string
	Action       AccessAction
	User         string
	Process      string
	EventSource  string
}

// AuditLog is the administrative-action trail.
type AuditLog struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	APIKeyID   *uuid.UUID
	Action     string
	Resource   string
	ResourceID uuid.UUID
	Detail     json.RawMessage
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// Policy is a tenant-scoped rule set linking detection output to actions.
type Policy struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Framework string
	RiskLevel string
	Enabled   bool
	Config    json.RawMessage
	CreatedAt time.Time
}

// CheckpointCursor is per-(tenant, provider) harvest progress.
type CheckpointCursor struct {
	TenantID     uuid.UUID
	ProviderName string
	Cursor       time.Time
}

// ExportCursor is per-sink SIEM export progress.
type ExportCursor struct {
	TenantID  uuid.UUID
	SinkName  string
	Cursor    time.Time
}

// TenantSettings holds the per-tenant overrides of the configuration
// surface: max_file_size_mb, concurrent_files, enable_ocr,
// enable_ml, fanout_enabled, fanout_threshold, fanout_max_partitions,
// pipeline_max_concurrent_files, pipeline_memory_budget_mb.
type TenantSettings struct {
	TenantID                  uuid.UUID
	MaxFileSizeMB             int
	ConcurrentFiles           int
	EnableOCR                 bool
	EnableML                  bool
	FanoutEnabled             bool
	FanoutThreshold           int
	FanoutMaxPartitions       int
	PartitionTargetSize       int
	PipelineMaxConcurrentFiles int
	PipelineMemoryBudgetMB    int
}

// DefaultTenantSettings returns the documented defaults.
func DefaultTenantSettings(tenantID uuid.UUID) TenantSettings {
	return TenantSettings{
		TenantID:                   tenantID,
		MaxFileSizeMB:              100,
		ConcurrentFiles:            8,
		EnableOCR:                  false,
		EnableML:                   true,
		FanoutEnabled:              true,
		FanoutThreshold:            5000,
		FanoutMaxPartitions:        64,
		PartitionTargetSize:        2000,
		PipelineMaxConcurrentFiles: 16,
		PipelineMemoryBudgetMB:     512,
	}
}

// RemediationAction records one action a matched policy requested; a
// policy match can enqueue one of these instead of, or alongside, a
// rescan.
type RemediationAction struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ScanResultID uuid.UUID
	Kind       string // "quarantine" | "label" | "notify"
	Status     string // "pending" | "applied" | "failed" | "unsupported"
	Detail     json.RawMessage
	CreatedAt  time.Time
	AppliedAt  *time.Time
}
