// Package storage persists vector index snapshots (the chunk table and the
// manifest written next to the vectors) and measures disk usage.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kansa/internal/models"
)

// ErrSchemaVersion is returned when a snapshot was written with a schema this
// build does not read.
var ErrSchemaVersion = errors.New("unsupported snapshot schema version")

// Snapshot is one persisted index's chunk table and manifest. Snapshots are
// written once into a fresh staging directory and only read afterwards.
type Snapshot interface {
	// WriteChunks appends chunks in order; a duplicate ID is an error.
	WriteChunks(ctx context.Context, chunks []*models.Chunk) error
	// Chunks returns every chunk in write order.
	Chunks(ctx context.Context) ([]*models.Chunk, error)
	SetManifest(ctx context.Context, manifest map[string]string) error
	Manifest(ctx context.Context) (map[string]string, error)
	Close() error
}
