package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes reports to a local path or to s3://bucket/key.
type Exporter struct {
	// S3 is used for s3:// destinations. When nil a client is built from
	// the default AWS configuration on first use.
	S3     S3API
	Logger *slog.Logger
}

// NewExporter creates an Exporter that builds its S3 client lazily.
func NewExporter(logger *slog.Logger) *Exporter {
	return &Exporter{Logger: logger.With("component", "report")}
}

// Export writes r as JSON to dest. An empty dest is a no-op.
func (e *Exporter) Export(ctx context.Context, r *Report, dest string) error {
	if dest == "" {
		return nil
	}
	data, err := r.JSON()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if strings.HasPrefix(dest, "s3://") {
		bucket, key, ok := ParseS3URL(dest)
		if !ok {
			return fmt.Errorf("invalid s3 destination %q: want s3://bucket/key", dest)
		}
		return e.upload(ctx, bucket, key, data)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	e.Logger.Info("report written", "path", dest, "size", len(data))
	return nil
}

func (e *Exporter) upload(ctx context.Context, bucket, key string, data []byte) error {
	client, err := e.s3Client(ctx)
	if err != nil {
		return err
	}
	e.Logger.Info("uploading report", "bucket", bucket, "key", key, "size", len(data))

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("upload report to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (e *Exporter) s3Client(ctx context.Context) (S3API, error) {
	if e.S3 != nil {
		return e.S3, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := os.Getenv("AWS_ENDPOINT_URL")
	e.S3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			// S3-compatible stores (MinIO, localstack) need path-style addressing.
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return e.S3, nil
}

// ParseS3URL splits s3://bucket/key. ok is false for anything else,
// including a URL without a key.
func ParseS3URL(dest string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(dest, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
