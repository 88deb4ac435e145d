// Package harvest implements the access-event harvester:
// pull-mode polling of OS audit sources and push-mode streaming
// providers, both converging into the same persistence sink with
// back-pressure and a scan-trigger hook for monitored files.
package harvest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Default tuning knobs; callers may override via New.
const (
	DefaultHarvestInterval = 60 * time.Second
	DefaultFlushInterval   = 5 * time.Second
	DefaultBatchSize       = 500
	DefaultMaxBufferSize   = 50000
)

// RawAccessEvent is the one event shape both delivery modes converge
// on. Actor folds the source's user/process
// distinction into a single field (the operational schema built for
// file_access_events carries one actor column); SourceIP carries
// whatever the provider calls event_source (host, share, or site URL).
type RawAccessEvent struct {
	FilePath   string
	Action     string
	Actor      string
	OccurredAt time.Time
	SourceIP   string
}

// PullProvider models an OS audit source queried on an interval: Windows
// SACL via the Event Log API, Linux auditd, or the M365 audit content
// API. Harvest returns events strictly newer than since.
type PullProvider interface {
	Name() string
	Harvest(ctx context.Context, since time.Time) ([]RawAccessEvent, error)
}

// StreamProvider models a push source: fanotify on Linux, or Graph
// change-notification webhooks. Start returns a channel the manager
// drains until ctx is cancelled or the provider closes it.
type StreamProvider interface {
	Name() string
	Start(ctx context.Context) (<-chan RawAccessEvent, error)
}

// RescanTrigger enqueues a high-priority single-file rescan when a
// monitored file changes. Supplied by the caller so harvest stays
// decoupled from pkg/scan's orchestration, the same pattern
// pkg/scheduler uses for ScanTrigger.
type RescanTrigger func(ctx context.Context, tenantID, scanTargetID uuid.UUID, filePath string) error

// rescanActions is the set of actions that, on a monitored file,
// trigger a rescan.
var rescanActions = map[string]bool{"write": true, "create": true}
