package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chillbot-io/openlabels/internal/auth"
	"github.com/chillbot-io/openlabels/internal/db"
	"github.com/chillbot-io/openlabels/pkg/tenant"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	TenantID  uuid.UUID
	Actor     string
	Action    string
	Target    string
	Detail    json.RawMessage
	IPAddress *netip.Addr
	UserAgent *string
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the
// database. It exits when the context is cancelled, after draining and
// flushing anything still pending.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "target", entry.Target)
	}
}

// LogFromRequest extracts tenant and identity from the request context,
// attaches IP/user-agent, and enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, target string, detail json.RawMessage) {
	entry := Entry{
		Action: action,
		Target: target,
		Detail: detail,
	}

	if ti := tenant.FromContext(r.Context()); ti != nil {
		entry.TenantID = ti.ID
	}

	if id := auth.FromContext(r.Context()); id != nil {
		switch {
		case id.APIKeyID != nil:
			entry.Actor = "apikey:" + id.APIKeyID.String()
		case id.Subject != "":
			entry.Actor = id.Subject
		}
	}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database in a single round trip.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	params := make([]db.InsertAuditLogParams, 0, len(entries))
	for _, e := range entries {
		if e.TenantID == uuid.Nil {
			w.logger.Warn("audit entry without tenant id, skipping", "action", e.Action)
			continue
		}
		detail := e.Detail
		if detail == nil {
			detail = json.RawMessage("{}")
		}
		if e.IPAddress != nil || e.UserAgent != nil {
			enriched := map[string]any{}
			_ = json.Unmarshal(detail, &enriched)
			if e.IPAddress != nil {
				enriched["ip_address"] = e.IPAddress.String()
			}
			if e.UserAgent != nil {
				enriched["user_agent"] = *e.UserAgent
			}
			if b, err := json.Marshal(enriched); err == nil {
				detail = b
			}
		}
		params = append(params, db.InsertAuditLogParams{
			TenantID: e.TenantID,
			ActorID:  e.Actor,
			Action:   e.Action,
			Target:   e.Target,
			Detail:   detail,
		})
	}

	if len(params) == 0 {
		return
	}

	q := db.New(w.pool)
	if err := q.InsertAuditLogs(ctx, params); err != nil {
		w.logger.Error("flushing audit log batch", "error", err, "count", len(params))
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
