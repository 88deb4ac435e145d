// Package adapter implements the uniform enumeration/read interface
// over heterogeneous data sources, built as a tagged variant with a
// builder function keyed on AdapterKind.
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/model"
)

// FileInfo describes one enumerable object. Adapters may stash an opaque
// cursor marker for delta resume.
type FileInfo struct {
	Path        string
	Name        string
	Size        int64
	ModifiedAt  time.Time
	Owner       string
	Permissions string
	Exposure    model.ExposureLevel
	Cursor      string
}

// Adapter is implemented once per model.AdapterKind. Enumerate fails
// per-file with apierrors.Transient (retry) or apierrors.Permanent (skip
// and continue) via the yielded error; a non-nil top-level error means
// the source itself could not be reached.
type Adapter interface {
	// Enumerate walks the target starting from startCursor (empty for a
	// full walk) and invokes yield for every discovered file. yield
	// returning a non-nil error stops enumeration.
	Enumerate(ctx context.Context, startCursor string, yield func(FileInfo) error) error

	// Read returns the file's raw bytes.
	Read(ctx context.Context, fi FileInfo) ([]byte, error)

	// GetMetadata refreshes a FileInfo's attributes.
	GetMetadata(ctx context.Context, fi FileInfo) (FileInfo, error)

	// TestConnection validates the adapter's configuration without a
	// full enumeration.
	TestConnection(ctx context.Context) error
}

// Config is the sum-of-struct adapter configuration: decoded once from
// a ScanTarget's opaque JSON, tagged by Kind.
type Config struct {
	Kind model.AdapterKind

	Filesystem *FilesystemConfig
	SMB        *SMBConfig
	NFS        *NFSConfig
	SharePoint *GraphConfig
	OneDrive   *GraphConfig
	S3         *S3Config
	GCS        *GCSConfig
	AzureBlob  *AzureBlobConfig
}

// DecodeConfig parses a ScanTarget's opaque JSON config into the
// variant named by kind.
func DecodeConfig(kind model.AdapterKind, raw json.RawMessage) (Config, error) {
	cfg := Config{Kind: kind}
	var err error
	switch kind {
	case model.AdapterFilesystem:
		cfg.Filesystem = &FilesystemConfig{}
		err = json.Unmarshal(raw, cfg.Filesystem)
	case model.AdapterSMB:
		cfg.SMB = &SMBConfig{}
		err = json.Unmarshal(raw, cfg.SMB)
	case model.AdapterNFS:
		cfg.NFS = &NFSConfig{}
		err = json.Unmarshal(raw, cfg.NFS)
	case model.AdapterSharePoint:
		cfg.SharePoint = &GraphConfig{}
		err = json.Unmarshal(raw, cfg.SharePoint)
	case model.AdapterOneDrive:
		cfg.OneDrive = &GraphConfig{}
		err = json.Unmarshal(raw, cfg.OneDrive)
	case model.AdapterS3:
		cfg.S3 = &S3Config{}
		err = json.Unmarshal(raw, cfg.S3)
	case model.AdapterGCS:
		cfg.GCS = &GCSConfig{}
		err = json.Unmarshal(raw, cfg.GCS)
	case model.AdapterAzureBlob:
		cfg.AzureBlob = &AzureBlobConfig{}
		err = json.Unmarshal(raw, cfg.AzureBlob)
	default:
		return Config{}, apierrors.Validation("unknown adapter kind: " + string(kind))
	}
	if err != nil {
		return Config{}, apierrors.Validation("decoding adapter config: " + err.Error())
	}
	return cfg, nil
}

// New builds the concrete Adapter for cfg.Kind.
func New(cfg Config) (Adapter, error) {
	switch cfg.Kind {
	case model.AdapterFilesystem:
		return NewFilesystemAdapter(*cfg.Filesystem), nil
	case model.AdapterNFS:
		return NewNFSAdapter(*cfg.NFS), nil
	case model.AdapterSMB:
		return NewSMBAdapter(*cfg.SMB), nil
	case model.AdapterSharePoint, model.AdapterOneDrive:
		gc := cfg.SharePoint
		if cfg.Kind == model.AdapterOneDrive {
			gc = cfg.OneDrive
		}
		return NewGraphAdapter(cfg.Kind, *gc), nil
	case model.AdapterS3:
		return NewS3Adapter(*cfg.S3), nil
	case model.AdapterGCS:
		return NewGCSAdapter(*cfg.GCS), nil
	case model.AdapterAzureBlob:
		return NewAzureBlobAdapter(*cfg.AzureBlob), nil
	default:
		return nil, apierrors.Validation("unknown adapter kind: " + string(cfg.Kind))
	}
}
