// Package minio implements the checkpoint store on MinIO/S3.
package minio

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openrmt/openrmt/internal/observability/logging"
	"github.com/openrmt/openrmt/pkg/errors"
)

// Config holds the object store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CheckpointStore stores gob-encoded parameter states as objects under
// checkpoints/<run-id>/epoch-<n>.ckpt.
type CheckpointStore struct {
	client *miniogo.Client
	bucket string
	logger logging.Logger
}

// NewCheckpointStore connects to the object store and ensures the bucket
// exists.
func NewCheckpointStore(ctx context.Context, cfg Config, logger logging.Logger) (*CheckpointStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageFailed, "failed to create object store client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageFailed, "failed to check checkpoint bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorageFailed, "failed to create checkpoint bucket")
		}
	}

	return &CheckpointStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func objectKey(runID string, epoch int) string {
	return fmt.Sprintf("checkpoints/%s/epoch-%d.ckpt", runID, epoch)
}

// Save uploads a parameter state and returns its object key.
func (s *CheckpointStore) Save(ctx context.Context, runID string, epoch int, state map[string][]float64) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return "", errors.Wrap(err, errors.CodeStorageFailed, "failed to encode checkpoint")
	}

	key := objectKey(runID, epoch)
	_, err := s.client.PutObject(ctx, s.bucket, key, &buf, int64(buf.Len()), miniogo.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeStorageFailed, "failed to upload checkpoint "+key)
	}

	s.logger.Info("checkpoint saved",
		logging.String("run_id", runID),
		logging.Int("epoch", epoch),
		logging.String("key", key),
	)
	return key, nil
}

// Load fetches a parameter state by object key.
func (s *CheckpointStore) Load(ctx context.Context, key string) (map[string][]float64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageFailed, "failed to fetch checkpoint "+key)
	}
	defer obj.Close()

	var state map[string][]float64
	if err := gob.NewDecoder(obj).Decode(&state); err != nil {
		if err == io.EOF {
			return nil, errors.NotFoundError("checkpoint " + key)
		}
		return nil, errors.Wrap(err, errors.CodeStorageFailed, "failed to decode checkpoint "+key)
	}
	return state, nil
}

// List returns the checkpoint keys stored for a run, in listing order.
func (s *CheckpointStore) List(ctx context.Context, runID string) ([]string, error) {
	prefix := fmt.Sprintf("checkpoints/%s/", runID)
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.CodeStorageFailed, "failed to list checkpoints")
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Close is a no-op; the client holds no persistent connection.
func (s *CheckpointStore) Close() error { return nil }
