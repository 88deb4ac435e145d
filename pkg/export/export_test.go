package export

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chillbot-io/openlabels/internal/db"
)

func TestLEEFRoundTrip(t *testing.T) {
	fields := map[string]string{
		"filePath": `C:\Users\bob\report=final.docx`,
		"riskTier": "HIGH",
		"note":     "contains\ttab and = sign",
	}
	order := []string{"filePath", "riskTier", "note"}

	line := EncodeLEEF("evt-1", fields, order)
	eventID, got, err := DecodeLEEF(line)
	if err != nil {
		t.Fatalf("DecodeLEEF returned error: %v", err)
	}
	if eventID != "evt-1" {
		t.Errorf("eventID = %q, want evt-1", eventID)
	}
	for k, v := range fields {
		if got[k] != v {
			t.Errorf("field %q = %q, want %q", k, got[k], v)
		}
	}
}

func TestCEFRoundTrip(t *testing.T) {
	ext := map[string]string{
		"filePath": `/srv/share|reports\2026.csv`,
		"note":     "a=b|c",
	}
	order := []string{"filePath", "note"}

	line := EncodeCEF("OpenLabels", "Scanner", "2.0", "finding-1", "Sensitive data finding", 8, ext, order)
	evt, err := DecodeCEF(line)
	if err != nil {
		t.Fatalf("DecodeCEF returned error: %v", err)
	}
	if evt.DeviceVendor != "OpenLabels" || evt.DeviceProduct != "Scanner" || evt.SignatureID != "finding-1" {
		t.Fatalf("unexpected header fields: %+v", evt)
	}
	if evt.Severity != 8 {
		t.Errorf("severity = %d, want 8", evt.Severity)
	}
	for k, v := range ext {
		if evt.Extension[k] != v {
			t.Errorf("extension %q = %q, want %q", k, evt.Extension[k], v)
		}
	}
}

func TestCEFHeaderEscapesPipe(t *testing.T) {
	line := EncodeCEF("Vendor|With|Pipes", "Product", "1.0", "id", "name", 0, nil, nil)
	evt, err := DecodeCEF(line)
	if err != nil {
		t.Fatalf("DecodeCEF returned error: %v", err)
	}
	if evt.DeviceVendor != "Vendor|With|Pipes" {
		t.Errorf("DeviceVendor = %q, want literal pipes preserved", evt.DeviceVendor)
	}
}

// fakeSink records every batch it receives and can be told to partially
// fail, exercising the engine's "cursor only advances on a fully landed
// chunk" rule.
type fakeSink struct {
	name      string
	batchSize int
	fail      map[int]bool // batch index (0-based) -> force partial failure
	batches   [][]Record
}

func (f *fakeSink) Name() string { return f.name }
func (f *fakeSink) MaxBatchSize() int {
	if f.batchSize == 0 {
		return DefaultBatchSize
	}
	return f.batchSize
}
func (f *fakeSink) ExportBatch(_ context.Context, records []Record) (int, error) {
	idx := len(f.batches)
	f.batches = append(f.batches, records)
	if f.fail[idx] {
		return len(records) - 1, nil
	}
	return len(records), nil
}
func (f *fakeSink) TestConnection(context.Context) error { return nil }

func TestEngineSendChunkedRespectsMaxBatchSize(t *testing.T) {
	sink := &fakeSink{name: "test", batchSize: 2}
	e := New(nil, slog.Default(), sink)

	records := make([]Record, 5)
	for i := range records {
		records[i] = Record{ID: uuid.New(), Timestamp: time.Now()}
	}

	sent := e.sendChunked(context.Background(), sink, records)
	if sent != 5 {
		t.Fatalf("sent = %d, want 5", sent)
	}
	if len(sink.batches) != 3 {
		t.Fatalf("expected 3 batches of size<=2, got %d", len(sink.batches))
	}
}

func TestEnginePushAdvancingStopsAtFirstPartialChunk(t *testing.T) {
	sink := &fakeSink{name: "test", batchSize: 2, fail: map[int]bool{1: true}}
	e := New(nil, slog.Default(), sink)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]Record, 6)
	for i := range records {
		records[i] = Record{ID: uuid.New(), Timestamp: base.Add(time.Duration(i) * time.Hour)}
	}

	floor := base.Add(-time.Hour)
	cursor := e.pushAdvancing(context.Background(), sink, records, floor)

	// Chunk 0 (records[0:2]) lands fully; chunk 1 (records[2:4]) is
	// forced partial, so the cursor must stop at chunk 0's max
	// timestamp and never reach chunk 2.
	want := records[1].Timestamp
	if !cursor.Equal(want) {
		t.Fatalf("cursor = %v, want %v", cursor, want)
	}
}

func TestRecordFromScanResultCarriesCoreFields(t *testing.T) {
	id := uuid.New()
	tenantID := uuid.New()
	jobID := uuid.New()
	now := time.Now()

	r := RecordFromScanResult(db.ScanResult{
		ID:            id,
		ScannedAt:     now,
		TenantID:      tenantID,
		ScanJobID:     jobID,
		FilePath:      "/data/report.csv",
		EntityCounts:  map[string]int32{"SSN": 2},
		RiskScore:     72,
		RiskTier:      "HIGH",
		ExposureLevel: "external",
	})

	if r.ID != id || r.TenantID != tenantID || r.JobID != jobID {
		t.Fatalf("identifiers not carried through: %+v", r)
	}
	if r.RiskScore != 72 || r.RiskTier != "HIGH" {
		t.Fatalf("risk fields not carried through: %+v", r)
	}
	m := r.ToMap()
	if m["file_path"] != "/data/report.csv" {
		t.Fatalf("ToMap() missing file_path: %+v", m)
	}
}
