package httpserver

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 50
	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 500
)

// PageKey is a position in a time-ordered result set: the (time, id)
// tuple of the last row the client saw. The high-volume tables
// (scan_results, file_access_events, audit_log) are range-partitioned
// by their time column and read newest-first, so keyset pagination on
// that tuple stays stable while new rows land and never re-reads old
// partitions the way OFFSET would.
type PageKey struct {
	Time time.Time
	ID   uuid.UUID
}

// Encode serialises the key to a URL-safe opaque string.
func (k PageKey) Encode() string {
	raw := fmt.Sprintf("%d.%s", k.Time.UnixMilli(), k.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodePageKey parses an opaque page key produced by Encode.
func DecodePageKey(s string) (PageKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return PageKey{}, fmt.Errorf("decoding page key: %w", err)
	}
	ms, idStr, ok := strings.Cut(string(raw), ".")
	if !ok {
		return PageKey{}, fmt.Errorf("invalid page key format")
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return PageKey{}, fmt.Errorf("invalid page key timestamp: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return PageKey{}, fmt.Errorf("invalid page key id: %w", err)
	}
	return PageKey{Time: time.UnixMilli(millis).UTC(), ID: id}, nil
}

// ListParams are the query parameters every time-ordered listing
// accepts: an opaque `before` key to continue a previous page, an
// optional `since`/`until` window (RFC 3339) mapping onto the table's
// partition column, and a `limit`.
type ListParams struct {
	Before *PageKey
	Since  time.Time
	Until  time.Time
	Limit  int
}

// ParseListParams extracts listing parameters from the request.
func ParseListParams(r *http.Request) (ListParams, error) {
	p := ListParams{Limit: DefaultPageSize}
	query := r.URL.Query()

	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
		if n > MaxPageSize {
			n = MaxPageSize
		}
		p.Limit = n
	}

	if v := query.Get("before"); v != "" {
		k, err := DecodePageKey(v)
		if err != nil {
			return p, fmt.Errorf("invalid before key: %w", err)
		}
		p.Before = &k
	}

	for name, dst := range map[string]*time.Time{"since": &p.Since, "until": &p.Until} {
		if v := query.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return p, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
			}
			*dst = t.UTC()
		}
	}
	if !p.Since.IsZero() && !p.Until.IsZero() && p.Until.Before(p.Since) {
		return p, fmt.Errorf("until must not precede since")
	}

	return p, nil
}

// Page is the response envelope for time-ordered listings. NextKey is
// present only when another page exists; clients pass it back as
// `before`.
type Page[T any] struct {
	Items   []T     `json:"items"`
	NextKey *string `json:"next_key,omitempty"`
}

// NewPage builds a Page from rows fetched with limit+1 (the extra row
// detects whether more exist). keyFn extracts the (time, id) tuple of a
// row.
func NewPage[T any](items []T, limit int, keyFn func(T) PageKey) Page[T] {
	page := Page[T]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		k := keyFn(page.Items[len(page.Items)-1]).Encode()
		page.NextKey = &k
	}
	return page
}
