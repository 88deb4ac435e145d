package adapter

import (
	"encoding/json"
	"testing"

	"github.com/chillbot-io/openlabels/pkg/model"
)

func TestDecodeConfig_Filesystem(t *testing.T) {
	raw := json.RawMessage(`{"root_path":"/data","exposure_level":"INTERNAL"}`)
	cfg, err := DecodeConfig(model.AdapterFilesystem, raw)
	if err != nil {
		t.Fatalf("DecodeConfig() error = %v", err)
	}
	if cfg.Filesystem == nil || cfg.Filesystem.RootPath != "/data" {
		t.Fatalf("Filesystem config = %+v", cfg.Filesystem)
	}
}

func TestDecodeConfig_UnknownKind(t *testing.T) {
	_, err := DecodeConfig(model.AdapterKind("bogus"), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for unknown adapter kind")
	}
}

func TestNew_Filesystem(t *testing.T) {
	cfg := Config{Kind: model.AdapterFilesystem, Filesystem: &FilesystemConfig{RootPath: "."}}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := a.(*FilesystemAdapter); !ok {
		t.Fatalf("New() returned %T, want *FilesystemAdapter", a)
	}
}

func TestNew_NFSUsesFilesystemAdapter(t *testing.T) {
	cfg := Config{Kind: model.AdapterNFS, NFS: &NFSConfig{RootPath: "."}}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := a.(*FilesystemAdapter); !ok {
		t.Fatalf("New() returned %T, want *FilesystemAdapter", a)
	}
}
