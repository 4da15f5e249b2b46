// Package replicate pushes a verified local artifact to an optional
// secondary bucket (S3 or GCS), per SPEC_FULL.md's secondary-replication
// supplement. Replication failures are returned to the calling target
// adapter, which logs them; they never fail the entity or undo the primary
// local materialization it already completed.
package replicate

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Target describes an S3-compatible replication bucket
// (properties.mirror_s3_bucket, _prefix, _region, _endpoint).
type S3Target struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // non-empty for S3-compatible providers other than AWS
}

// GCSTarget describes a GCS replication bucket (properties.mirror_gcs_bucket,
// _prefix).
type GCSTarget struct {
	Bucket string
	Prefix string
}

// Sink uploads a local file to one or more configured secondary buckets
// under key `<owner>/<repo>/<tag>/<asset_name>` (or a mirror bundle key
// for git-mirror replication).
type Sink struct {
	S3  *S3Target
	GCS *GCSTarget
}

func (s *Sink) Enabled() bool { return s != nil && (s.S3 != nil || s.GCS != nil) }

// Replicate uploads localPath under key to every configured bucket,
// aggregating errors rather than stopping at the first failure so a
// broken GCS credential doesn't also suppress a working S3 replica.
func (s *Sink) Replicate(ctx context.Context, key, localPath string) error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.S3 != nil {
		if err := s.replicateS3(ctx, key, localPath); err != nil {
			errs = append(errs, fmt.Errorf("s3 replication: %w", err))
		}
	}
	if s.GCS != nil {
		if err := s.replicateGCS(ctx, key, localPath); err != nil {
			errs = append(errs, fmt.Errorf("gcs replication: %w", err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

func (s *Sink) replicateS3(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.S3.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.S3.Endpoint)
		}
	})
	fullKey := joinKey(s.S3.Prefix, key)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.S3.Bucket),
		Key:    aws.String(fullKey),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", s.S3.Bucket, fullKey, err)
	}
	return nil
}

func (s *Sink) replicateGCS(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create gcs client: %w", err)
	}
	defer client.Close()

	fullKey := joinKey(s.GCS.Prefix, key)
	w := client.Bucket(s.GCS.Bucket).Object(fullKey).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s/%s: %w", s.GCS.Bucket, fullKey, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s/%s: %w", s.GCS.Bucket, fullKey, err)
	}
	return nil
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
