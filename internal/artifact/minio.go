package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig defines the configuration interface for the object storage sink.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOBucketTaxonomy() string
	IsMinIOEnabled() bool
}

// objectStore is the subset of *minio.Client the sink uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOSink uploads every document under runs/<runId>/ and mirrors it to latest/. Aborted runs
// upload only their OUTPUT.json and never touch latest/.
type MinIOSink struct {
	store  objectStore
	bucket string
}

// NewMinIOSink creates a sink from configuration.
func NewMinIOSink(cfg MinIOConfig) (*MinIOSink, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOSink{store: client, bucket: cfg.GetMinIOBucketTaxonomy()}, nil
}

func (s *MinIOSink) Name() string { return "minio" }

// RunKey returns the object key of a document for one run.
func RunKey(runID, name string) string {
	return path.Join("runs", runID, name)
}

// LatestKey returns the object key of the most recent copy of a document.
func LatestKey(name string) string {
	return path.Join("latest", name)
}

// Write uploads the artifact. The latest/ copies are written only after every run copy succeeded.
func (s *MinIOSink) Write(ctx context.Context, a *Artifact) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	files, err := a.Files()
	if err != nil {
		return err
	}

	if a.Aborted() {
		return s.put(ctx, RunKey(a.RunID, FileOutput), files[FileOutput])
	}

	names := a.FileNames()
	for _, name := range names {
		if err := s.put(ctx, RunKey(a.RunID, name), files[name]); err != nil {
			return err
		}
	}
	for _, name := range names {
		if err := s.put(ctx, LatestKey(name), files[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MinIOSink) ensureBucket(ctx context.Context) error {
	exists, err := s.store.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.store.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *MinIOSink) put(ctx context.Context, key string, data []byte) error {
	_, err := s.store.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
