// Package media stores story assets in S3-compatible object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store wraps a MinIO client bound to a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("media: connect %s: %w", endpoint, err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("media: check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("media: create bucket %s: %w", bucket, err)
		}
		log.Printf("media: created bucket %s", bucket)
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Put uploads an object. The key is assetID/filename so uploads with the
// same filename never collide.
func (s *Store) Put(ctx context.Context, assetID, filename, contentType string, size int64, r io.Reader) error {
	key := objectKey(assetID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("media: put %s: %w", key, err)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for an asset.
func (s *Store) PresignedURL(ctx context.Context, assetID, filename string, expiry time.Duration) (string, error) {
	key := objectKey(assetID, filename)
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("media: presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Remove deletes an asset object. Missing objects are not an error.
func (s *Store) Remove(ctx context.Context, assetID, filename string) error {
	key := objectKey(assetID, filename)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("media: remove %s: %w", key, err)
	}
	return nil
}

func objectKey(assetID, filename string) string {
	return assetID + "/" + filename
}
