package scan

import (
	"context"
	"testing"

	"github.com/chillbot-io/openlabels/pkg/adapter"
	"github.com/chillbot-io/openlabels/pkg/detection"
	"github.com/chillbot-io/openlabels/pkg/model"
	"github.com/chillbot-io/openlabels/pkg/risk"
)

type fakeAdapter struct {
	files []adapter.FileInfo
}

func (f *fakeAdapter) Enumerate(ctx context.Context, startCursor string, yield func(adapter.FileInfo) error) error {
	for _, fi := range f.files {
		if err := yield(fi); err != nil {
			return nil
		}
	}
	return nil
}

func (f *fakeAdapter) Read(ctx context.Context, fi adapter.FileInfo) ([]byte, error) {
	return []byte("hello@example.com"), nil
}

func (f *fakeAdapter) GetMetadata(ctx context.Context, fi adapter.FileInfo) (adapter.FileInfo, error) {
	return fi, nil
}

func (f *fakeAdapter) TestConnection(ctx context.Context) error { return nil }

func TestHashBucket_Deterministic(t *testing.T) {
	a := hashBucket("tenant/reports/q1.csv", 8)
	b := hashBucket("tenant/reports/q1.csv", 8)
	if a != b {
		t.Fatalf("hashBucket not deterministic: %d != %d", a, b)
	}
	if a < 0 || a >= 8 {
		t.Fatalf("hashBucket out of range: %d", a)
	}
}

func TestHashBucket_SingleBucket(t *testing.T) {
	if b := hashBucket("anything", 1); b != 0 {
		t.Fatalf("expected bucket 0 for n=1, got %d", b)
	}
}

func TestHashBucket_SpreadsAcrossBuckets(t *testing.T) {
	seen := make(map[int32]bool)
	for i := 0; i < 200; i++ {
		seen[hashBucket(string(rune('a'+i%26))+string(rune(i)), 4)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected paths to spread across multiple buckets, got %d distinct", len(seen))
	}
}

func TestEstimateFileCount_StopsAtCap(t *testing.T) {
	files := make([]adapter.FileInfo, 20)
	for i := range files {
		files[i] = adapter.FileInfo{Path: string(rune('a' + i))}
	}
	a := &fakeAdapter{files: files}
	n, err := estimateFileCount(context.Background(), a, 5)
	if err != nil {
		t.Fatalf("estimateFileCount() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("estimateFileCount() = %d, want 5", n)
	}
}

func TestEstimateFileCount_UnderCapCountsAll(t *testing.T) {
	files := make([]adapter.FileInfo, 3)
	a := &fakeAdapter{files: files}
	n, err := estimateFileCount(context.Background(), a, 100)
	if err != nil {
		t.Fatalf("estimateFileCount() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("estimateFileCount() = %d, want 3", n)
	}
}

func TestReduceEntities_AccumulatesAcrossValues(t *testing.T) {
	// Two distinct SSN values resolve to two entity groups of one
	// mention each; the per-type count must be their sum, and the
	// resulting score must clear the HIGH threshold.
	entities := []detection.Entity{
		{Type: "SSN", Value: "123-45-6789", Count: 1, MaxConf: 0.85},
		{Type: "SSN", Value: "111-22-3333", Count: 1, MaxConf: 0.85},
		{Type: "EMAIL", Value: "a@b.com", Count: 3, MaxConf: 0.9},
	}

	counts, countsInt, types, total := reduceEntities(entities)

	if counts["SSN"] != 2 || countsInt["SSN"] != 2 {
		t.Fatalf("SSN count = %d/%d, want 2", counts["SSN"], countsInt["SSN"])
	}
	if counts["EMAIL"] != 3 {
		t.Fatalf("EMAIL count = %d, want 3", counts["EMAIL"])
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(types) != 2 {
		t.Fatalf("types = %v, want one entry per distinct type", types)
	}

	score, tier := risk.ScoreAndTier(countsInt, model.ExposurePrivate)
	if score < 51 || tier != model.TierHigh {
		t.Fatalf("two SSNs scored %v (%s), want >= 51 and HIGH", score, tier)
	}
}

func TestReduceEntities_Empty(t *testing.T) {
	counts, countsInt, types, total := reduceEntities(nil)
	if len(counts) != 0 || len(countsInt) != 0 || len(types) != 0 || total != 0 {
		t.Fatalf("empty input produced %v %v %v %d", counts, countsInt, types, total)
	}
}

func TestStoredScoreAndTierAgree(t *testing.T) {
	// The persisted tier must be the one a reader re-derives from the
	// persisted integer score, even when the raw float score lands on a
	// fractional band boundary where tiering the float would disagree.
	countSets := []map[string]int{
		{"SSN": 2},                      // 52 * exposure multipliers
		{"DOB": 1, "NAME": 1, "SSN": 1}, // co-occurrence x1.5 -> fractional
		{"EMAIL": 3, "PHONE": 1},        // low band
		{"SSN": 4, "CREDIT_CARD": 2},    // clamped region
	}
	exposures := []model.ExposureLevel{
		model.ExposurePrivate, model.ExposureInternal, model.ExposureOrgWide, model.ExposurePublic,
	}
	for _, counts := range countSets {
		for _, exp := range exposures {
			stored, tier := storedScoreAndTier(counts, exp)
			if rederived := risk.Tier(float64(stored)); rederived != tier {
				t.Fatalf("counts %v exposure %s: stored score %d re-derives %s, row carries %s", counts, exp, stored, rederived, tier)
			}
		}
	}

	// NAME+SSN+DOB at INTERNAL exposure: (2+26+5)*1.5*1.1 = 54.45. The
	// float and its truncation are both HIGH here; the boundary case is
	// synthetic but the contract is the same: the stored pair is derived
	// from one value.
	stored, tier := storedScoreAndTier(map[string]int{"DOB": 1, "NAME": 1, "SSN": 1}, model.ExposureInternal)
	if stored != 54 || tier != model.TierHigh {
		t.Fatalf("stored = %d (%s), want 54 HIGH", stored, tier)
	}
}
