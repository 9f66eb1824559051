package storage

import (
	"context"
	"errors"
	"fmt"

	"hubtask/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("archive object not found")

// Archive stores raw sync snapshots as JSON objects.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// NewArchive builds the archive selected by ARCHIVE_TYPE. It returns nil
// when archiving is disabled.
func NewArchive(ctx context.Context, cfg *config.Config) (Archive, error) {
	switch cfg.ArchiveType {
	case "":
		return nil, nil
	case "local":
		return NewLocalStorage(cfg.ArchiveDir), nil
	case "r2":
		r2cfg := R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.R2Bucket,
		}
		if err := r2cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid R2 archive config: %w", err)
		}
		r2, err := NewR2Storage(ctx, r2cfg)
		if err != nil {
			return nil, err
		}
		return r2, nil
	default:
		return nil, fmt.Errorf("unsupported ARCHIVE_TYPE %q", cfg.ArchiveType)
	}
}
