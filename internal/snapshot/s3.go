package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

const contentType = "application/octet-stream"

// S3Store keeps the snapshot as one object in an S3-compatible bucket.
type S3Store struct {
	mc     *minio.Client
	bucket string
	key    string
	log    *zap.Logger
}

// NewS3Store connects to the configured endpoint. No request is made until
// the first Load or Save.
func NewS3Store(cfg config.SnapshotConfig, log *zap.Logger) (*S3Store, error) {
	mc, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &S3Store{mc: mc, bucket: cfg.S3Bucket, key: cfg.S3Object, log: log}, nil
}

// Location implements Store.
func (s *S3Store) Location() string { return "s3://" + s.bucket + "/" + s.key }

// Stat implements Store.
func (s *S3Store) Stat(ctx context.Context) (time.Time, error) {
	info, err := s.mc.StatObject(ctx, s.bucket, s.key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", s.Location(), err)
	}
	return info.LastModified, nil
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context) (*Snapshot, error) {
	if _, err := s.Stat(ctx); err != nil {
		return nil, err
	}

	obj, err := s.mc.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.Location(), err)
	}
	defer obj.Close()
	return Decode(obj)
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, snap *Snapshot) error {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return err
	}
	info, err := s.mc.PutObject(ctx, s.bucket, s.key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", s.Location(), err)
	}
	s.log.Debug("snapshot uploaded", zap.String("location", s.Location()), zap.Int64("size", info.Size))
	return nil
}
