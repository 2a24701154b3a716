package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

const (
	LatestSnapshotKey string = "snapshots/latest.geojson"
	geoJSONType       string = "application/geo+json"
)

//Config holds the connection settings for an S3 compatible endpoint
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

//S3Service stores map snapshots in an S3 compatible bucket
type S3Service struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

//NewS3Service creates a client for the configured endpoint and makes sure the bucket exists
func NewS3Service(ctx context.Context, cfg Config, log zerolog.Logger) (*S3Service, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("endpoint, access key, secret key and bucket are all required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket existence: %w", err)
	}

	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Msgf("created bucket %s", cfg.Bucket)
	}

	return &S3Service{client: client, bucket: cfg.Bucket, log: log}, nil
}

//SnapshotKey returns the object key of a snapshot taken at t
func SnapshotKey(t time.Time) string {
	return fmt.Sprintf("snapshots/%s.geojson", t.UTC().Format("20060102T150405Z"))
}

//PublishSnapshot stores the GeoJSON both under a timestamped key and as the latest snapshot
func (s *S3Service) PublishSnapshot(ctx context.Context, takenAt time.Time, geoJSON []byte) error {
	for _, key := range []string{SnapshotKey(takenAt), LatestSnapshotKey} {
		_, err := s.client.PutObject(ctx, s.bucket, key,
			bytes.NewReader(geoJSON), int64(len(geoJSON)),
			minio.PutObjectOptions{ContentType: geoJSONType},
		)
		if err != nil {
			return fmt.Errorf("failed to store %s in bucket %s: %w", key, s.bucket, err)
		}
	}

	s.log.Debug().Msgf("published map snapshot (%d bytes) to bucket %s", len(geoJSON), s.bucket)
	return nil
}
