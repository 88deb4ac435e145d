package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/model"
)

// GCSConfig binds one Google Cloud Storage bucket/prefix.
type GCSConfig struct {
	Bucket             string `json:"bucket"`
	Prefix             string `json:"prefix"`
	CredentialsJSON    string `json:"credentials_json"`
	Exposure           string `json:"exposure_level"`
}

// GCSAdapter enumerates and reads objects from a GCS bucket, grounded on
// nelssec-qualys-dspm's three-cloud storage-scanning surface.
type GCSAdapter struct {
	cfg    GCSConfig
	client *storage.Client
}

// NewGCSAdapter builds a GCSAdapter bound to cfg.
func NewGCSAdapter(cfg GCSConfig) *GCSAdapter {
	return &GCSAdapter{cfg: cfg}
}

func (a *GCSAdapter) exposure() model.ExposureLevel {
	if a.cfg.Exposure != "" {
		return model.ExposureLevel(a.cfg.Exposure)
	}
	return model.ExposureInternal
}

func (a *GCSAdapter) ensureClient(ctx context.Context) (*storage.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	var opts []option.ClientOption
	if a.cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(a.cfg.CredentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, apierrors.Transient("creating GCS client", err)
	}
	a.client = client
	return client, nil
}

// Enumerate lists objects under Prefix. startCursor is unused: the GCS
// iterator does not expose a resumable page token across processes, so
// resume for this adapter is best-effort by object name ordering.
func (a *GCSAdapter) Enumerate(ctx context.Context, startCursor string, yield func(FileInfo) error) error {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return err
	}
	it := client.Bucket(a.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: a.cfg.Prefix})

	resuming := startCursor != ""
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return apierrors.Transient("listing GCS objects", err)
		}

		if resuming {
			if attrs.Name == startCursor {
				resuming = false
			}
			continue
		}

		fi := FileInfo{
			Path:       attrs.Name,
			Name:       objectName(attrs.Name),
			Size:       attrs.Size,
			ModifiedAt: attrs.Updated,
			Exposure:   a.exposure(),
			Cursor:     attrs.Name,
		}
		if err := yield(fi); err != nil {
			return err
		}
	}
}

// Read downloads the object's full body.
func (a *GCSAdapter) Read(ctx context.Context, fi FileInfo) ([]byte, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	r, err := client.Bucket(a.cfg.Bucket).Object(fi.Path).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, apierrors.NotFound("GCS object not found: " + fi.Path)
		}
		return nil, apierrors.Transient("opening GCS object "+fi.Path, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, apierrors.Transient("reading GCS object body", err)
	}
	return b, nil
}

// GetMetadata re-fetches the object's attributes.
func (a *GCSAdapter) GetMetadata(ctx context.Context, fi FileInfo) (FileInfo, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return FileInfo{}, err
	}
	attrs, err := client.Bucket(a.cfg.Bucket).Object(fi.Path).Attrs(ctx)
	if err != nil {
		return FileInfo{}, apierrors.NotFound("GCS object not found: " + fi.Path)
	}
	fi.Size = attrs.Size
	fi.ModifiedAt = attrs.Updated
	return fi, nil
}

// TestConnection verifies the bucket is reachable.
func (a *GCSAdapter) TestConnection(ctx context.Context) error {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Bucket(a.cfg.Bucket).Attrs(ctx); err != nil {
		return apierrors.Transient("bucket unreachable: "+a.cfg.Bucket, err)
	}
	return nil
}
