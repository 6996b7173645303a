package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// NewGCSClient builds a storage client. A non-empty endpoint (e.g. a fake-gcs-server URL)
// disables authentication.
func NewGCSClient(ctx context.Context, endpoint string) (*storage.Client, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	return client, nil
}

// GCSWriter stores objects in a Google Cloud Storage bucket.
type GCSWriter struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

func NewGCSWriter(client *storage.Client, bucket, prefix string) *GCSWriter {
	if client == nil {
		panic("gcs writer requires client")
	}
	if bucket == "" {
		panic("gcs writer requires bucket")
	}
	return &GCSWriter{Client: client, Bucket: bucket, Prefix: prefix}
}

func (w *GCSWriter) Put(ctx context.Context, key string, body []byte) error {
	loc, err := ResolveObjectLocation(w.Bucket, w.Prefix, key)
	if err != nil {
		return err
	}

	obj := w.Client.Bucket(loc.Bucket).Object(loc.FullPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write gcs object %s: %w", loc.FullPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close gcs object %s: %w", loc.FullPath, err)
	}
	return nil
}

var _ Writer = (*GCSWriter)(nil)
