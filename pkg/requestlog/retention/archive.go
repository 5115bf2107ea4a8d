package retention

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mercator-hq/keygate/pkg/requestlog"
	"mercator-hq/keygate/pkg/requestlog/export"
)

// Archiver stores entries that are about to be pruned. name is a file name
// such as "requests-2024-07-26-030000.json".
type Archiver interface {
	Archive(ctx context.Context, name string, entries []*requestlog.Entry) (location string, err error)
}

func encodeArchive(ctx context.Context, entries []*requestlog.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := export.NewJSONExporter(true).Export(ctx, entries, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LocalArchiver writes archives into a directory.
type LocalArchiver struct {
	Dir string
}

// NewLocalArchiver creates an archiver writing to dir.
func NewLocalArchiver(dir string) *LocalArchiver {
	return &LocalArchiver{Dir: dir}
}

// Archive implements Archiver.
func (a *LocalArchiver) Archive(ctx context.Context, name string, entries []*requestlog.Entry) (string, error) {
	data, err := encodeArchive(ctx, entries)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	file := filepath.Join(a.Dir, name)
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	return file, nil
}

// S3API is the subset of *s3.Client the archiver uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds configuration for S3 archives. Endpoint is set for
// S3-compatible services such as MinIO or R2.
type S3Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Archiver uploads archives to an S3 bucket.
type S3Archiver struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Archiver creates an archiver with a client built from cfg.
func NewS3Archiver(cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive bucket is required")
	}

	awsCfg := aws.Config{
		Region: cfg.Region,
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiverWithClient creates an archiver using an existing client.
func NewS3ArchiverWithClient(client S3API, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: slog.Default().With("component", "requestlog.archive.s3"),
	}
}

// Archive implements Archiver.
func (a *S3Archiver) Archive(ctx context.Context, name string, entries []*requestlog.Entry) (string, error) {
	data, err := encodeArchive(ctx, entries)
	if err != nil {
		return "", err
	}

	key := name
	if a.prefix != "" {
		key = path.Join(a.prefix, name)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive to S3: %w", err)
	}

	a.logger.Debug("archive uploaded", "bucket", a.bucket, "key", key, "bytes", len(data))
	return "s3://" + a.bucket + "/" + key, nil
}
