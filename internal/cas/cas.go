// Package cas stores snapshot blobs in an S3-compatible object store,
// content-addressed by the snapshot's root Cid. Snapshots are lattice
// state (typically small), not multi-gigabyte chain archives, so there is
// no chunk-manifest bookkeeping here: one object per snapshot.
package cas

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// CAS is a content-addressed blob store for snapshot payloads.
type CAS struct {
	client *minio.Client
	bucket string
}

// NewCAS creates a new CAS instance backed by an S3-compatible endpoint,
// creating bucket if it does not already exist.
func NewCAS(endpoint, accessKey, secretKey, bucket string, secure bool) (*CAS, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	c := &CAS{client: client, bucket: bucket}
	if err := c.ensureBucket(); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return c, nil
}

func (c *CAS) ensureBucket() error {
	exists, err := c.client.BucketExists(context.Background(), c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.client.MakeBucket(context.Background(), c.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
		log.Printf("cas: created bucket %s", c.bucket)
	}
	return nil
}

// Put uploads data under key cid, overwriting any existing object.
func (c *CAS) Put(ctx context.Context, cid string, data []byte) error {
	_, err := c.client.PutObject(ctx, c.bucket, c.objectKey(cid), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("cas: failed to put snapshot %s: %w", cid, err)
	}
	return nil
}

// Get retrieves the snapshot blob stored under cid.
func (c *CAS) Get(ctx context.Context, cid string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, c.objectKey(cid), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("cas: failed to get snapshot %s: %w", cid, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("cas: failed to read snapshot %s: %w", cid, err)
	}
	return data, nil
}

// Exists reports whether a snapshot blob is stored under cid.
func (c *CAS) Exists(ctx context.Context, cid string) (bool, error) {
	_, err := c.client.StatObject(ctx, c.bucket, c.objectKey(cid), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the snapshot blob stored under cid.
func (c *CAS) Delete(ctx context.Context, cid string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, c.objectKey(cid), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("cas: failed to delete snapshot %s: %w", cid, err)
	}
	return nil
}

func (c *CAS) objectKey(cid string) string {
	if len(cid) < 4 {
		return filepath.Join("snapshots", cid)
	}
	return filepath.Join("snapshots", cid[:2], cid[2:4], cid)
}
