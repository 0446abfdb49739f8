package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// MinIOStore implements Store against MinIO/S3 object storage. The cache may
// sit on a shared bucket; overwriting an object with identical content is
// safe, so no cross-process locking is needed.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// MinIOConfig holds MinIO connection settings.
type MinIOConfig struct {
	Endpoint  string // e.g. "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinIOStore connects to MinIO and makes sure the cache bucket exists.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// Coverage lists the days materialized under a unit key by listing the
// object prefix.
func (s *MinIOStore) Coverage(ctx context.Context, prefix string) ([]model.Date, error) {
	var days []model.Date
	opts := minio.ListObjectsOptions{Prefix: prefix + "/"}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list cache objects under %q: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix+"/")
		name = strings.TrimSuffix(name, ".json")
		day, err := model.ParseDate(name)
		if err != nil {
			// Foreign object under our prefix; not ours to interpret.
			continue
		}
		days = append(days, day)
	}
	return model.SortDates(days), nil
}

// Read fetches and decodes one cached fragment.
func (s *MinIOStore) Read(ctx context.Context, prefix string, day model.Date) (*model.DataFragment, error) {
	key := ObjectKey{Prefix: prefix, Day: day}.Key()
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache object %q: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache object %q: %w", key, err)
	}
	frag, err := decodeFragment(data)
	if err != nil {
		return nil, fmt.Errorf("cache object %q: %w", key, err)
	}
	return frag, nil
}

// Write encodes and uploads one fragment.
func (s *MinIOStore) Write(ctx context.Context, prefix string, day model.Date, frag *model.DataFragment) error {
	key := ObjectKey{Prefix: prefix, Day: day}.Key()
	data, err := encodeFragment(frag)
	if err != nil {
		return fmt.Errorf("cache object %q: %w", key, err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload cache object %q: %w", key, err)
	}
	return nil
}
