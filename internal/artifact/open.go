package artifact

import (
	"context"
	"fmt"
	"io"

	"github.com/Davygupta47/notebook/internal/config"
)

// Open returns the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageFilesystem, "":
		return NewFilesystem(cfg.Paths.ArtifactDir)
	case config.StorageSQLite:
		return OpenSQLite(ctx, cfg.Storage.SQLitePath)
	case config.StorageMinio:
		return NewMinio(ctx, MinioOptions{
			Endpoint:  cfg.Storage.MinioEndpoint,
			AccessKey: cfg.Storage.MinioAccessKey,
			SecretKey: cfg.Storage.MinioSecretKey,
			Bucket:    cfg.Storage.MinioBucket,
			Prefix:    cfg.Storage.MinioPrefix,
			UseSSL:    cfg.Storage.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases backend resources when the store holds any.
func Close(store Store) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
