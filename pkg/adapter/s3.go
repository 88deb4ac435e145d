package adapter

import (
	"context"
	"errors"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/model"
)

// S3Config binds one S3 bucket/prefix, grounded on nelssec-qualys-dspm's
// three-cloud storage-scanning surface.
type S3Config struct {
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Exposure        string `json:"exposure_level"`
}

// S3Adapter enumerates and reads objects from an S3 bucket.
type S3Adapter struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Adapter builds an S3Adapter bound to cfg. The client is
// constructed lazily on first use so config decoding never touches the
// network.
func NewS3Adapter(cfg S3Config) *S3Adapter {
	return &S3Adapter{cfg: cfg}
}

func (a *S3Adapter) exposure() model.ExposureLevel {
	if a.cfg.Exposure != "" {
		return model.ExposureLevel(a.cfg.Exposure)
	}
	return model.ExposureInternal
}

func (a *S3Adapter) ensureClient(ctx context.Context) (*s3.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(a.cfg.Region))
	if a.cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AccessKeyID, a.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apierrors.Transient("loading AWS config", err)
	}
	a.client = s3.NewFromConfig(awsCfg)
	return a.client, nil
}

// Enumerate lists objects under Prefix, resuming from startCursor as the
// continuation token.
func (a *S3Adapter) Enumerate(ctx context.Context, startCursor string, yield func(FileInfo) error) error {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return err
	}

	var token *string
	if startCursor != "" {
		token = &startCursor
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &a.cfg.Bucket,
			Prefix:            &a.cfg.Prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return apierrors.Transient("listing S3 objects", err)
		}

		for _, obj := range out.Contents {
			fi := FileInfo{
				Path:     *obj.Key,
				Name:     objectName(*obj.Key),
				Size:     *obj.Size,
				Exposure: a.exposure(),
			}
			if obj.LastModified != nil {
				fi.ModifiedAt = *obj.LastModified
			}
			if out.NextContinuationToken != nil {
				fi.Cursor = *out.NextContinuationToken
			}
			if err := yield(fi); err != nil {
				return err
			}
		}

		if out.NextContinuationToken == nil {
			return nil
		}
		token = out.NextContinuationToken
	}
}

// Read downloads the object's full body.
func (a *S3Adapter) Read(ctx context.Context, fi FileInfo) ([]byte, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &a.cfg.Bucket, Key: &fi.Path})
	if err != nil {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.Response.StatusCode == 404 {
			return nil, apierrors.NotFound("S3 object not found: " + fi.Path)
		}
		return nil, apierrors.Transient("downloading S3 object "+fi.Path, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apierrors.Transient("reading S3 object body", err)
	}
	return b, nil
}

// GetMetadata re-heads the object.
func (a *S3Adapter) GetMetadata(ctx context.Context, fi FileInfo) (FileInfo, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return FileInfo{}, err
	}
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &a.cfg.Bucket, Key: &fi.Path})
	if err != nil {
		return FileInfo{}, apierrors.NotFound("S3 object not found: " + fi.Path)
	}
	if out.ContentLength != nil {
		fi.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		fi.ModifiedAt = *out.LastModified
	}
	return fi, nil
}

// TestConnection verifies the bucket is reachable.
func (a *S3Adapter) TestConnection(ctx context.Context) error {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &a.cfg.Bucket})
	if err != nil {
		return apierrors.Transient("bucket unreachable: "+a.cfg.Bucket, err)
	}
	return nil
}

func objectName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

