// Package gcs mirrors raw page snapshots to a Google Cloud Storage
// bucket.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Provider writes snapshot payloads as objects in a GCS bucket.
type Provider struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewProvider initializes a GCS client and verifies the bucket is
// reachable, failing fast on bad configuration. Authentication goes
// through Application Default Credentials.
func NewProvider(ctx context.Context, bucket string, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close gcs client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}

	return &Provider{client: client, bucket: bucket, logger: logger}, nil
}

// Save uploads data to the named object.
func (p *Provider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := p.client.Bucket(p.bucket).Object(objectName).NewWriter(ctx)

	if _, err := wc.Write(data); err != nil {
		// Close anyway to release the writer; the write error is primary.
		if closeErr := wc.Close(); closeErr != nil {
			p.logger.Warn("close gcs writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close gcs writer for object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}
