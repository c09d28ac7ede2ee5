package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shiftline/shiftline-sync-server/internal/config"
)

// minioSink mirrors record sets into an S3-compatible bucket.
type minioSink struct {
	client     *minio.Client
	sourcePath string
	endpoint   string
	bucket     string
	prefix     string
}

// NewMinioSink creates an S3/MinIO sink from the destination configuration.
func NewMinioSink(sourcePath string, cfg *config.S3Config) (Sink, error) {
	secretKey, err := cfg.GetSecretKey()
	if err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, secretKey, ""),
		Secure:       !cfg.Insecure,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	return &minioSink{
		client:     client,
		sourcePath: sourcePath,
		endpoint:   cfg.Endpoint,
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *minioSink) Describe() string {
	if s.prefix == "" {
		return fmt.Sprintf("s3://%s/%s", s.endpoint, s.bucket)
	}
	return fmt.Sprintf("s3://%s/%s/%s", s.endpoint, s.bucket, s.prefix)
}

// Validate checks that the bucket exists and is reachable.
func (s *minioSink) Validate(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("destination bucket %s is not reachable: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("destination bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *minioSink) Mirror(ctx context.Context, recordSetName string) (*Result, error) {
	srcPath := filepath.Join(s.sourcePath, recordSetName)

	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, fmt.Errorf("record set %s is not readable: %w", recordSetName, err)
	}

	if !info.IsDir() {
		if err := s.upload(ctx, srcPath, recordSetName); err != nil {
			return nil, err
		}
		return &Result{ItemsCopied: 1}, nil
	}

	copied := 0
	err = filepath.WalkDir(srcPath, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.sourcePath, p)
		if err != nil {
			return err
		}
		if err := s.upload(ctx, p, filepath.ToSlash(rel)); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mirror record set %s: %w", recordSetName, err)
	}

	return &Result{ItemsCopied: copied}, nil
}

// upload puts one local file at the destination key. FPutObject replaces the
// object wholesale, so repeated mirrors converge on identical content.
func (s *minioSink) upload(ctx context.Context, localPath, key string) error {
	objectKey := key
	if s.prefix != "" {
		objectKey = path.Join(s.prefix, key)
	}

	if _, err := s.client.FPutObject(ctx, s.bucket, objectKey, localPath, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", localPath, objectKey, err)
	}
	return nil
}
