package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chillbot-io/openlabels/internal/config"
)

// objectStore is the write-side counterpart of pkg/adapter's read-only
// Adapter interface: the catalog writer only ever appends whole Parquet
// files, so it needs nothing beyond Put.
type objectStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// newObjectStore selects a backend by cfg.CatalogBackend (local, s3,
// azure, or gcs), mirroring the tagged adapter construction
// pkg/adapter uses for scan targets.
func newObjectStore(cfg *config.Config) (objectStore, error) {
	switch cfg.CatalogBackend {
	case "", "local":
		return &localStore{root: cfg.CatalogLocalPath}, nil
	case "s3":
		return &s3Store{bucket: cfg.CatalogLocalPath}, nil
	case "gcs":
		return &gcsStore{bucket: cfg.CatalogLocalPath}, nil
	case "azure":
		return &azureStore{accountURL: cfg.CatalogLocalPath}, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}

// localStore writes Parquet files under a directory root, matching the
// filesystem adapter's use of os.WriteFile for local paths.
type localStore struct {
	root string
}

func (s *localStore) Put(_ context.Context, key string, data []byte) error {
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating catalog partition directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("writing catalog object %s: %w", key, err)
	}
	return nil
}

// s3Store writes Parquet files as S3 objects. Its bucket field reuses
// CatalogLocalPath as a "bucket/prefix" string since catalog deployment
// config carries a single destination root regardless of backend kind.
type s3Store struct {
	bucket string
	client *s3.Client
}

func (s *s3Store) ensureClient(ctx context.Context) (*s3.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for catalog store: %w", err)
	}
	s.client = s3.NewFromConfig(awsCfg)
	return s.client, nil
}

func (s *s3Store) Put(ctx context.Context, key string, data []byte) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	bucket, prefix := splitBucketPrefix(s.bucket)
	fullKey := prefix + key
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &fullKey,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("putting catalog object %s: %w", key, err)
	}
	return nil
}

// gcsStore writes Parquet files as GCS objects.
type gcsStore struct {
	bucket string
	client *storage.Client
}

func (s *gcsStore) ensureClient(ctx context.Context) (*storage.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client for catalog store: %w", err)
	}
	s.client = client
	return client, nil
}

func (s *gcsStore) Put(ctx context.Context, key string, data []byte) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	bucket, prefix := splitBucketPrefix(s.bucket)
	w := client.Bucket(bucket).Object(prefix + key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing catalog object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing catalog object %s: %w", key, err)
	}
	return nil
}

// azureStore writes Parquet files as Azure blobs. accountURL holds
// "https://{account}.blob.core.windows.net/{container}/{prefix}".
type azureStore struct {
	accountURL string
	client     *azblob.Client
}

func (s *azureStore) ensureClient() (*azblob.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("loading Azure credential for catalog store: %w", err)
	}
	base, _, _ := splitAzureURL(s.accountURL)
	client, err := azblob.NewClient(base, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure blob client for catalog store: %w", err)
	}
	s.client = client
	return client, nil
}

func (s *azureStore) Put(ctx context.Context, key string, data []byte) error {
	client, err := s.ensureClient()
	if err != nil {
		return err
	}
	_, container, prefix := splitAzureURL(s.accountURL)
	_, err = client.UploadBuffer(ctx, container, prefix+key, data, nil)
	if err != nil {
		return fmt.Errorf("uploading catalog blob %s: %w", key, err)
	}
	return nil
}

// splitBucketPrefix parses "bucket" or "bucket/prefix/" into its parts.
func splitBucketPrefix(s string) (bucket, prefix string) {
	idx := -1
	for i, c := range s {
		if c == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// splitAzureURL parses "https://acct.blob.core.windows.net/container/prefix"
// into the account base URL, container, and prefix.
func splitAzureURL(s string) (base, container, prefix string) {
	const marker = ".blob.core.windows.net/"
	idx := strings.Index(s, marker)
	if idx < 0 {
		return s, "", ""
	}
	base = s[:idx+len(marker)-1]
	rest := s[idx+len(marker):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return base, rest[:i], rest[i+1:]
	}
	return base, rest, ""
}
