package blob

import (
	"context"
	"fmt"
	"strings"

	"episodegen/internal/config"
	"episodegen/internal/ports"
)

var (
	_ ports.BlobStore = (*S3)(nil)
	_ ports.BlobStore = (*FS)(nil)
)

// New returns the blob store selected by cfg.Storage.Provider.
func New(ctx context.Context, cfg *config.Config) (ports.BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Provider)) {
	case "", "s3":
		return NewS3(ctx, S3Config{
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UsePathStyle:    cfg.Storage.UsePathStyle,
		})
	case "fs":
		return NewFS(cfg.Storage.Dir)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Storage.Provider)
	}
}
