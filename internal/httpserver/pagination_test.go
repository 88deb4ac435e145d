package httpserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPageKeyRoundTrip(t *testing.T) {
	k := PageKey{Time: time.Date(2026, 7, 4, 12, 30, 0, 0, time.UTC), ID: uuid.New()}
	got, err := DecodePageKey(k.Encode())
	if err != nil {
		t.Fatalf("DecodePageKey error: %v", err)
	}
	if !got.Time.Equal(k.Time) || got.ID != k.ID {
		t.Fatalf("round trip = %+v, want %+v", got, k)
	}
}

func TestDecodePageKey_Rejects(t *testing.T) {
	for _, s := range []string{"", "not-base64!", "bm9kb3Q", "MTIzLm5vdC1hLXV1aWQ"} {
		if _, err := DecodePageKey(s); err == nil {
			t.Errorf("DecodePageKey(%q) succeeded, want error", s)
		}
	}
}

func TestParseListParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=10&since=2026-01-01T00:00:00Z&until=2026-02-01T00:00:00Z", nil)
	p, err := ParseListParams(r)
	if err != nil {
		t.Fatalf("ParseListParams error: %v", err)
	}
	if p.Limit != 10 || p.Since.IsZero() || p.Until.IsZero() || p.Before != nil {
		t.Fatalf("unexpected params: %+v", p)
	}

	r = httptest.NewRequest("GET", "/?limit=9999", nil)
	p, err = ParseListParams(r)
	if err != nil {
		t.Fatalf("ParseListParams error: %v", err)
	}
	if p.Limit != MaxPageSize {
		t.Fatalf("limit = %d, want clamped to %d", p.Limit, MaxPageSize)
	}

	r = httptest.NewRequest("GET", "/?since=2026-02-01T00:00:00Z&until=2026-01-01T00:00:00Z", nil)
	if _, err := ParseListParams(r); err == nil {
		t.Fatal("inverted window accepted, want error")
	}

	r = httptest.NewRequest("GET", "/?limit=zero", nil)
	if _, err := ParseListParams(r); err == nil {
		t.Fatal("non-numeric limit accepted, want error")
	}
}

func TestNewPage_DetectsMore(t *testing.T) {
	type row struct {
		t  time.Time
		id uuid.UUID
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{base.Add(3 * time.Hour), uuid.New()},
		{base.Add(2 * time.Hour), uuid.New()},
		{base.Add(1 * time.Hour), uuid.New()},
	}
	keyFn := func(r row) PageKey { return PageKey{Time: r.t, ID: r.id} }

	page := NewPage(rows, 2, keyFn)
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.NextKey == nil {
		t.Fatal("NextKey missing with more rows available")
	}
	k, err := DecodePageKey(*page.NextKey)
	if err != nil {
		t.Fatalf("decoding NextKey: %v", err)
	}
	if !k.Time.Equal(rows[1].t) || k.ID != rows[1].id {
		t.Fatalf("NextKey points at %+v, want last returned row", k)
	}

	page = NewPage(rows, 3, keyFn)
	if page.NextKey != nil {
		t.Fatal("NextKey present on final page")
	}
}
