package store

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3-compatible tier backend. One client per tier URL; the bucket and an
// optional key prefix come from the URL, connection settings from [Config].
type s3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func newS3Store(cfg Config, bucket, prefix string) (*s3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 tier URL has no bucket", ErrStore)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return &s3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *s3Store) object(key string) string {
	return path.Join(s.prefix, key)
}

func (s *s3Store) Stat(ctx context.Context, key string) (Info, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, s.object(key), minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Info{}, fmt.Errorf("%w: stat %s: %v", ErrStore, key, err)
	}
	return Info{Key: key, Size: stat.Size}, nil
}

func (s *s3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject defers errors until the first read; stat first so a
	// missing key surfaces as ErrNotFound here.
	if _, err := s.Stat(ctx, key); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStore, key, err)
	}
	return obj, nil
}

func (s *s3Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: put %s: size unknown", ErrStore, key)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.object(key), r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStore, key, err)
	}
	return nil
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.object(prefix)
	if full != "" {
		full += "/"
	}

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    full,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", ErrStore, prefix, obj.Err)
		}
		key := obj.Key
		if s.prefix != "" {
			key = key[len(s.prefix)+1:]
		}
		keys = append(keys, key)
	}
	return keys, nil
}
