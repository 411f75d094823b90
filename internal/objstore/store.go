// Package objstore provides the concrete S3 adapter staged payloads live
// in. It wraps minio-go and implements the scan.ObjectStore interface; the
// endpoint may be any S3-compatible store (DigitalOcean Spaces in
// production).
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store stages canonical payloads in one bucket between enqueue and worker
// acceptance.
type Store struct {
	client *minio.Client
	bucket string
}

// New reads the S3 settings from the environment and verifies the bucket
// answers before the server starts taking requests.
func New(ctx context.Context) (*Store, error) {
	var (
		accessKeyID = os.Getenv("S3AccessKeyId")
		accessKey   = os.Getenv("S3AccessKey")
		bucket      = os.Getenv("S3Bucket")
		endpoint    = os.Getenv("S3Url")
		region      = os.Getenv("S3Region")
	)
	if accessKeyID == "" || accessKey == "" || bucket == "" || endpoint == "" {
		return nil, errors.New("objstore: S3AccessKeyId, S3AccessKey, S3Bucket and S3Url must all be set")
	}
	if region == "" {
		slog.Warn("[ObjectStore] S3Region is empty, the s3 client will guess the region")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKeyID, accessKey, ""),
		Secure:       true,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: build s3 client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(pingCtx, bucket)
	if err != nil {
		return nil, fmt.Errorf("objstore: reach bucket %q: %w", bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("objstore: bucket %q does not exist", bucket)
	}

	slog.Info("[ObjectStore] s3 bucket reachable", "endpoint", endpoint, "bucket", bucket)
	return &Store{client: client, bucket: bucket}, nil
}

// Put writes one staged payload under its fingerprint key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("objstore: put %s: %w", key, err)
	}
	return nil
}

// Get fetches a staged payload. A missing key reports found=false rather
// than an error so callers can 404 without unwrapping s3 responses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("objstore: get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("objstore: read %s: %w", key, err)
	}
	return data, true, nil
}

// Delete frees a staged payload. Deleting a key that is already gone is
// success; the worker surface calls this on every accepted result.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("objstore: delete %s: %w", key, err)
	}
	return nil
}
