// Package storage selects the blob store artifacts are written to.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-harvester/internal/storage/gcs"
	"github.com/JakeFAU/sitemap-harvester/internal/storage/local"
	"github.com/JakeFAU/sitemap-harvester/internal/storage/memory"
)

// Providers.
const (
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	OutputDir string
	GCSBucket string
	Prefix    string
}

// Open builds the configured store. The returned close func releases any
// client the store holds and is never nil.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (BlobStore, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.OutputDir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local store: %w", err)
		}
		logger.Info("writing artifacts to local directory", zap.String("dir", cfg.OutputDir))
		return store, noop, nil
	case ProviderGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.Open(ctx, client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("failed to close gcs client", zap.Error(closeErr))
			}
			return nil, noop, fmt.Errorf("open gcs store: %w", err)
		}
		logger.Info("writing artifacts to gcs", zap.String("bucket", cfg.GCSBucket), zap.String("prefix", cfg.Prefix))
		return store, client.Close, nil
	case ProviderMemory:
		logger.Warn("artifacts are kept in memory only")
		return memory.NewBlobStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
