package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/OTADrop/internal/config"
	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

const (
	archiveContentType  = "application/octet-stream"
	manifestContentType = "application/xml"
)

// Storage wraps MinIO/S3 interactions, one bucket per namespace.
type Storage struct {
	client  *minio.Client
	buckets map[storage.Namespace]string
	region  string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		buckets: map[storage.Namespace]string{
			storage.Archives:  cfg.ArchiveBucket,
			storage.Manifests: cfg.ManifestBucket,
		},
		region: cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure the archive/manifest buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, ns := range storage.Namespaces {
		bucket := s.buckets[ns]
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) bucket(ns storage.Namespace, name string) (string, error) {
	bucket, ok := s.buckets[ns]
	if !ok {
		return "", fmt.Errorf("unknown namespace %q", ns)
	}
	if err := storage.Validate(ns, name); err != nil {
		return "", err
	}
	return bucket, nil
}

// Save uploads data as a new object.
func (s *Storage) Save(ctx context.Context, ns storage.Namespace, name string, data []byte) error {
	bucket, err := s.bucket(ns, name)
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: contentType(ns)}
	if _, err := s.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("put %s object: %w", ns, err)
	}
	return nil
}

// Read downloads the object bytes.
func (s *Storage) Read(ctx context.Context, ns storage.Namespace, name string) ([]byte, error) {
	bucket, err := s.bucket(ns, name)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, "get %s object", ns)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err, "read %s object", ns)
	}
	return buf, nil
}

// Delete removes the object. S3 deletes are idempotent, so a stat first
// reports ErrNotFound like the other backends.
func (s *Storage) Delete(ctx context.Context, ns storage.Namespace, name string) error {
	bucket, err := s.bucket(ns, name)
	if err != nil {
		return err
	}
	if _, err := s.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{}); err != nil {
		return translate(err, "stat %s object", ns)
	}
	if err := s.client.RemoveObject(ctx, bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s object: %w", ns, err)
	}
	return nil
}

func contentType(ns storage.Namespace) string {
	if ns == storage.Manifests {
		return manifestContentType
	}
	return archiveContentType
}

func translate(err error, format string, ns storage.Namespace) error {
	if isNotFound(err) {
		return storage.ErrNotFound
	}
	return fmt.Errorf(format+": %w", ns, err)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}
