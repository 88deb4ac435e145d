package harvest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
)

const pullCursorPrefix = "pull:"

type pullRegistration struct {
	tenantID     uuid.UUID
	scanTargetID uuid.UUID
	provider     PullProvider
}

type streamRegistration struct {
	tenantID     uuid.UUID
	scanTargetID uuid.UUID
	provider     StreamProvider
}

type bufferedEvent struct {
	tenantID     uuid.UUID
	scanTargetID uuid.UUID
	event        RawAccessEvent
}

// Harvester owns both delivery modes and the bounded in-memory buffer
// stream providers write into.
type Harvester struct {
	q       *db.Queries
	logger  *slog.Logger
	trigger RescanTrigger

	harvestInterval time.Duration
	flushInterval   time.Duration
	batchSize       int

	pulls   []pullRegistration
	streams []streamRegistration
	buffer  chan bufferedEvent
	dropped atomic.Int64

	monitoredMu sync.Mutex
}

// New builds a Harvester. trigger may be nil to disable the scan-trigger
// hook (e.g. in a deployment with no registered monitored files).
func New(q *db.Queries, logger *slog.Logger, trigger RescanTrigger, harvestInterval, flushInterval time.Duration, batchSize, maxBufferSize int) *Harvester {
	if harvestInterval <= 0 {
		harvestInterval = DefaultHarvestInterval
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}
	return &Harvester{
		q:               q,
		logger:          logger,
		trigger:         trigger,
		harvestInterval: harvestInterval,
		flushInterval:   flushInterval,
		batchSize:       batchSize,
		buffer:          make(chan bufferedEvent, maxBufferSize),
	}
}

// RegisterPull adds a polled provider for one (tenant, scan target).
func (h *Harvester) RegisterPull(tenantID, scanTargetID uuid.UUID, p PullProvider) {
	h.pulls = append(h.pulls, pullRegistration{tenantID: tenantID, scanTargetID: scanTargetID, provider: p})
}

// RegisterStream adds a push provider for one (tenant, scan target).
func (h *Harvester) RegisterStream(tenantID, scanTargetID uuid.UUID, p StreamProvider) {
	h.streams = append(h.streams, streamRegistration{tenantID: tenantID, scanTargetID: scanTargetID, provider: p})
}

// DroppedCount reports events discarded because the buffer was full.
func (h *Harvester) DroppedCount() int64 {
	return h.dropped.Load()
}

// Run starts every registered provider and the flush loop, blocking
// until ctx is cancelled. Both delivery paths flush remaining events
// before returning.
func (h *Harvester) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, reg := range h.pulls {
		wg.Add(1)
		go func(r pullRegistration) {
			defer wg.Done()
			h.runPull(ctx, r)
		}(reg)
	}
	for _, reg := range h.streams {
		wg.Add(1)
		go func(r streamRegistration) {
			defer wg.Done()
			h.runStream(ctx, r)
		}(reg)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.runFlushLoop(ctx)
	}()

	wg.Wait()
}

func (h *Harvester) runPull(ctx context.Context, reg pullRegistration) {
	ticker := time.NewTicker(h.harvestInterval)
	defer ticker.Stop()

	h.pullOnce(ctx, reg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pullOnce(ctx, reg)
		}
	}
}

func (h *Harvester) pullOnce(ctx context.Context, reg pullRegistration) {
	cursorKind := pullCursorPrefix + reg.provider.Name()
	var since time.Time
	cursor, err := h.q.GetCheckpointCursor(ctx, reg.tenantID, reg.scanTargetID, cursorKind)
	if err == nil {
		since, _ = time.Parse(time.RFC3339Nano, cursor.CursorValue)
	}

	events, err := reg.provider.Harvest(ctx, since)
	if err != nil {
		h.logger.Error("pull provider harvest failed", "provider", reg.provider.Name(), "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	params := make([]db.InsertFileAccessEventParams, 0, len(events))
	latest := since
	for _, e := range events {
		params = append(params, db.InsertFileAccessEventParams{
			OccurredAt:   e.OccurredAt,
			TenantID:     reg.tenantID,
			ScanTargetID: reg.scanTargetID,
			FilePath:     e.FilePath,
			Actor:        e.Actor,
			Action:       e.Action,
			SourceIP:     e.SourceIP,
		})
		if e.OccurredAt.After(latest) {
			latest = e.OccurredAt
		}
	}

	inserted, errs := h.q.InsertFileAccessEvents(ctx, params)
	for _, perr := range errs {
		h.logger.Warn("dropping malformed access event", "provider", reg.provider.Name(), "error", perr)
	}
	h.logger.Info("pull harvest persisted", "provider", reg.provider.Name(), "inserted", inserted, "skipped", len(errs))

	// Cursor only advances once persistence succeeded for at least the
	// events it covers; on a total failure, nothing advances and the
	// next poll retries the same window.
	if inserted > 0 {
		if err := h.q.UpsertCheckpointCursor(ctx, reg.tenantID, reg.scanTargetID, cursorKind, latest.Format(time.RFC3339Nano)); err != nil {
			h.logger.Error("advancing checkpoint cursor", "provider", reg.provider.Name(), "error", err)
		}
	}

	h.fireRescans(ctx, reg.tenantID, reg.scanTargetID, events)
}

func (h *Harvester) runStream(ctx context.Context, reg streamRegistration) {
	events, err := reg.provider.Start(ctx)
	if err != nil {
		h.logger.Error("starting stream provider", "provider", reg.provider.Name(), "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			select {
			case h.buffer <- bufferedEvent{tenantID: reg.tenantID, scanTargetID: reg.scanTargetID, event: e}:
			default:
				n := h.dropped.Add(1)
				if n%1000 == 1 {
					h.logger.Warn("stream buffer full, dropping event", "provider", reg.provider.Name(), "dropped_total", n)
				}
			}
		}
	}
}

func (h *Harvester) runFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	var pending []bufferedEvent
	for {
		select {
		case <-ctx.Done():
			h.flushPending(context.Background(), pending)
			h.drainRemaining(context.Background())
			return
		case be := <-h.buffer:
			pending = append(pending, be)
			if len(pending) >= h.batchSize {
				h.flushPending(ctx, pending)
				pending = nil
			}
		case <-ticker.C:
			if len(pending) > 0 {
				h.flushPending(ctx, pending)
				pending = nil
			}
		}
	}
}

// drainRemaining flushes whatever is still sitting in the channel at
// shutdown, in batches of up to batchSize, so a burst that arrived
// right before cancellation isn't silently lost.
func (h *Harvester) drainRemaining(ctx context.Context) {
	for {
		var pending []bufferedEvent
	drain:
		for len(pending) < h.batchSize {
			select {
			case be := <-h.buffer:
				pending = append(pending, be)
			default:
				break drain
			}
		}
		if len(pending) == 0 {
			return
		}
		h.flushPending(ctx, pending)
	}
}

func (h *Harvester) flushPending(ctx context.Context, pending []bufferedEvent) {
	if len(pending) == 0 {
		return
	}
	params := make([]db.InsertFileAccessEventParams, 0, len(pending))
	for _, be := range pending {
		params = append(params, db.InsertFileAccessEventParams{
			OccurredAt:   be.event.OccurredAt,
			TenantID:     be.tenantID,
			ScanTargetID: be.scanTargetID,
			FilePath:     be.event.FilePath,
			Actor:        be.event.Actor,
			Action:       be.event.Action,
			SourceIP:     be.event.SourceIP,
		})
	}
	inserted, errs := h.q.InsertFileAccessEvents(ctx, params)
	for _, err := range errs {
		h.logger.Warn("dropping malformed access event", "error", err)
	}
	h.logger.Info("stream flush persisted", "inserted", inserted, "skipped", len(errs))

	byTarget := make(map[uuid.UUID][]RawAccessEvent)
	targets := make(map[uuid.UUID]uuid.UUID)
	for _, be := range pending {
		byTarget[be.scanTargetID] = append(byTarget[be.scanTargetID], be.event)
		targets[be.scanTargetID] = be.tenantID
	}
	for scanTargetID, events := range byTarget {
		h.fireRescans(ctx, targets[scanTargetID], scanTargetID, events)
	}
}

// fireRescans checks harvested events against the monitored-file
// registry and enqueues a rescan for every write/create hit. The
// registry is looked up once per call rather than cached, since
// monitored file sets change slowly relative to a flush cycle.
func (h *Harvester) fireRescans(ctx context.Context, tenantID, scanTargetID uuid.UUID, events []RawAccessEvent) {
	if h.trigger == nil {
		return
	}
	var monitored map[string]bool
	for _, e := range events {
		if !rescanActions[e.Action] {
			continue
		}
		if monitored == nil {
			monitored = h.loadMonitoredPaths(ctx, tenantID, scanTargetID)
		}
		if !monitored[e.FilePath] {
			continue
		}
		if err := h.trigger(ctx, tenantID, scanTargetID, e.FilePath); err != nil {
			h.logger.Error("triggering file rescan", "path", e.FilePath, "error", err)
		}
	}
}

func (h *Harvester) loadMonitoredPaths(ctx context.Context, tenantID, scanTargetID uuid.UUID) map[string]bool {
	h.monitoredMu.Lock()
	defer h.monitoredMu.Unlock()

	files, err := h.q.ListMonitoredFiles(ctx, tenantID, scanTargetID)
	if err != nil {
		h.logger.Error("loading monitored files", "tenant_id", tenantID, "error", err)
		return map[string]bool{}
	}
	out := make(map[string]bool, len(files))
	for _, f := range files {
		out[f.FilePath] = true
	}
	return out
}
