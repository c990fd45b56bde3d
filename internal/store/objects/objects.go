// Package objects wraps the object storage holding raw feed payloads.
//
// The fetch service stages payloads here byte-for-byte; the ingest service
// reads them back and subscribes to bucket notifications for newly created
// objects.
package objects

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sebvel/dolar-pipeline/internal/common/constants"
)

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Event is one "object created" notification.
type Event struct {
	Bucket string
	Key    string
}

// Store provides access to the raw payload bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New creates a Store for the configured endpoint and bucket.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create object storage client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = constants.DefaultRawBucket
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Bucket returns the bucket this store operates on.
func (s *Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %v", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %v", s.bucket, err)
	}
	slog.Info("Created bucket", "bucket", s.bucket)
	return nil
}

// Put stores body under key, unmodified.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("storing object %s/%s: %v", s.bucket, key, err)
	}
	return nil
}

// Fetch reads the full contents of an object.
func (s *Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting object %s/%s: %v", bucket, key, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %v", bucket, key, err)
	}
	return raw, nil
}

// Listen subscribes to "object created" notifications for the bucket and
// forwards them until the context is canceled. Notifications are delivered in
// batches, exactly as grouped by the storage server.
//
// Notification stream errors are logged and the stream is consumed until the
// server closes it; the trigger infrastructure owns reconnect policy.
func (s *Store) Listen(ctx context.Context) <-chan []Event {
	batches := make(chan []Event)
	go func() {
		defer close(batches)
		for info := range s.client.ListenBucketNotification(ctx, s.bucket, "", "", []string{
			"s3:ObjectCreated:*",
		}) {
			if info.Err != nil {
				slog.Error("Bucket notification error", "bucket", s.bucket, "err", info.Err)
				continue
			}
			batch := make([]Event, 0, len(info.Records))
			for _, rec := range info.Records {
				batch = append(batch, Event{Bucket: rec.S3.Bucket.Name, Key: rec.S3.Object.Key})
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case batches <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return batches
}
