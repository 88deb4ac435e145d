package harvest

import "testing"

func TestNew_AppliesDefaults(t *testing.T) {
	h := New(nil, nil, nil, 0, 0, 0, 0)
	if h.harvestInterval != DefaultHarvestInterval {
		t.Fatalf("harvestInterval = %v, want %v", h.harvestInterval, DefaultHarvestInterval)
	}
	if h.flushInterval != DefaultFlushInterval {
		t.Fatalf("flushInterval = %v, want %v", h.flushInterval, DefaultFlushInterval)
	}
	if h.batchSize != DefaultBatchSize {
		t.Fatalf("batchSize = %d, want %d", h.batchSize, DefaultBatchSize)
	}
	if cap(h.buffer) != DefaultMaxBufferSize {
		t.Fatalf("buffer capacity = %d, want %d", cap(h.buffer), DefaultMaxBufferSize)
	}
}

func TestNew_HonorsOverrides(t *testing.T) {
	h := New(nil, nil, nil, 0, 0, 10, 20)
	if h.batchSize != 10 {
		t.Fatalf("batchSize = %d, want 10", h.batchSize)
	}
	if cap(h.buffer) != 20 {
		t.Fatalf("buffer capacity = %d, want 20", cap(h.buffer))
	}
}

func TestBufferDrop_CountsPastCapacity(t *testing.T) {
	h := New(nil, nil, nil, 0, 0, 0, 2)
	for i := 0; i < 5; i++ {
		select {
		case h.buffer <- bufferedEvent{}:
		default:
			h.dropped.Add(1)
		}
	}
	if h.DroppedCount() != 3 {
		t.Fatalf("DroppedCount() = %d, want 3", h.DroppedCount())
	}
}

func TestRescanActions_OnlyWriteAndCreate(t *testing.T) {
	for _, action := range []string{"write", "create"} {
		if !rescanActions[action] {
			t.Fatalf("expected %q to trigger rescan", action)
		}
	}
	for _, action := range []string{"read", "delete", "list"} {
		if rescanActions[action] {
			t.Fatalf("did not expect %q to trigger rescan", action)
		}
	}
}

func TestM365Operations_MapOntoActionVocabulary(t *testing.T) {
	cases := map[string]string{
		"FileAccessed": "read",
		"FileModified": "write",
		"FileUploaded": "create",
		"FileDeleted":  "delete",
		"FileRenamed":  "rename",
	}
	for op, want := range cases {
		if got := m365Operations[op]; got != want {
			t.Errorf("m365Operations[%q] = %q, want %q", op, got, want)
		}
	}
	if _, ok := m365Operations["SiteCollectionCreated"]; ok {
		t.Error("non-file operation should not map to an action")
	}
}

func TestM365Provider_Name(t *testing.T) {
	p := NewM365PullProvider(M365Config{TenantID: "t", ClientID: "c", ClientSecret: "s"})
	if p.Name() != "m365_audit" {
		t.Fatalf("Name() = %q, want %q", p.Name(), "m365_audit")
	}
}
