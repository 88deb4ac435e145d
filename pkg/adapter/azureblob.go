package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/model"
)

// AzureBlobConfig binds one Azure Blob Storage container/prefix.
type AzureBlobConfig struct {
	AccountURL string `json:"account_url"` // https://{account}.blob.core.windows.net
	Container  string `json:"container"`
	Prefix     string `json:"prefix"`
	Exposure   string `json:"exposure_level"`
}

// AzureBlobAdapter enumerates and reads blobs from an Azure Storage
// container, grounded on nelssec-qualys-dspm's three-cloud
// storage-scanning surface.
type AzureBlobAdapter struct {
	cfg    AzureBlobConfig
	client *azblob.Client
}

// NewAzureBlobAdapter builds an AzureBlobAdapter bound to cfg.
func NewAzureBlobAdapter(cfg AzureBlobConfig) *AzureBlobAdapter {
	return &AzureBlobAdapter{cfg: cfg}
}

func (a *AzureBlobAdapter) exposure() model.ExposureLevel {
	if a.cfg.Exposure != "" {
		return model.ExposureLevel(a.cfg.Exposure)
	}
	return model.ExposureInternal
}

func (a *AzureBlobAdapter) ensureClient() (*azblob.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, apierrors.Transient("obtaining Azure credential", err)
	}
	client, err := azblob.NewClient(a.cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, apierrors.Transient("creating Azure Blob client", err)
	}
	a.client = client
	return client, nil
}

// Enumerate lists blobs under Prefix, resuming with the pager's
// continuation token carried in startCursor.
func (a *AzureBlobAdapter) Enumerate(ctx context.Context, startCursor string, yield func(FileInfo) error) error {
	client, err := a.ensureClient()
	if err != nil {
		return err
	}

	opts := &azblob.ListBlobsFlatOptions{Prefix: &a.cfg.Prefix}
	if startCursor != "" {
		opts.Marker = &startCursor
	}
	pager := client.NewListBlobsFlatPager(a.cfg.Container, opts)

	for pager.More() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			return apierrors.Transient("listing Azure blobs", err)
		}
		for _, item := range page.Segment.BlobItems {
			fi := FileInfo{
				Path:     *item.Name,
				Name:     objectName(*item.Name),
				Exposure: a.exposure(),
			}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					fi.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					fi.ModifiedAt = *item.Properties.LastModified
				}
			}
			if page.NextMarker != nil {
				fi.Cursor = *page.NextMarker
			}
			if err := yield(fi); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read downloads the blob's full body.
func (a *AzureBlobAdapter) Read(ctx context.Context, fi FileInfo) ([]byte, error) {
	client, err := a.ensureClient()
	if err != nil {
		return nil, err
	}
	resp, err := client.DownloadStream(ctx, a.cfg.Container, fi.Path, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, apierrors.NotFound("blob not found: " + fi.Path)
		}
		return nil, apierrors.Transient("downloading blob "+fi.Path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, apierrors.Transient("reading blob body", err)
	}
	return buf.Bytes(), nil
}

// GetMetadata re-fetches the blob's properties.
func (a *AzureBlobAdapter) GetMetadata(ctx context.Context, fi FileInfo) (FileInfo, error) {
	client, err := a.ensureClient()
	if err != nil {
		return FileInfo{}, err
	}
	props, err := client.ServiceClient().NewContainerClient(a.cfg.Container).NewBlobClient(fi.Path).GetProperties(ctx, nil)
	if err != nil {
		return FileInfo{}, apierrors.NotFound("blob not found: " + fi.Path)
	}
	if props.ContentLength != nil {
		fi.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		fi.ModifiedAt = *props.LastModified
	}
	return fi, nil
}

// TestConnection verifies the container is reachable.
func (a *AzureBlobAdapter) TestConnection(ctx context.Context) error {
	client, err := a.ensureClient()
	if err != nil {
		return err
	}
	pager := client.NewListBlobsFlatPager(a.cfg.Container, &azblob.ListBlobsFlatOptions{})
	if pager.More() {
		if _, err := pager.NextPage(ctx); err != nil {
			return apierrors.Transient("container unreachable: "+a.cfg.Container, err)
		}
	}
	return nil
}
