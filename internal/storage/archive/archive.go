// Package archive composes a primary snapshot store with a best-effort
// blob mirror.
package archive

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harvestlabs/dirharvest/internal/harvest"
)

// BlobStore is the mirror surface; the GCS provider satisfies it.
type BlobStore interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// SnapshotStore writes every snapshot to the primary store and mirrors
// the raw payload to blob storage. Mirror failures are logged, never
// surfaced: losing a mirror copy must not fail a page.
type SnapshotStore struct {
	primary harvest.SnapshotStore
	mirror  BlobStore
	logger  *zap.Logger
}

// New composes primary with mirror.
func New(primary harvest.SnapshotStore, mirror BlobStore, logger *zap.Logger) *SnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{primary: primary, mirror: mirror, logger: logger}
}

// StoreSnapshots persists to the primary store first, then mirrors each
// payload.
func (s *SnapshotStore) StoreSnapshots(ctx context.Context, snapshots []harvest.Snapshot) (int, error) {
	stored, err := s.primary.StoreSnapshots(ctx, snapshots)
	if err != nil {
		return stored, err
	}
	for _, snap := range snapshots {
		name := objectName(snap)
		if mirrorErr := s.mirror.Save(ctx, name, snap.Payload); mirrorErr != nil {
			s.logger.Warn("snapshot mirror write failed",
				zap.String("object", name), zap.Error(mirrorErr))
		}
	}
	return stored, nil
}

func objectName(snap harvest.Snapshot) string {
	return fmt.Sprintf("snapshots/%s/%s/%s-page-%04d.json",
		snap.Region, snap.Locality, snap.FetchedAt.UTC().Format("20060102T150405Z"), snap.Page)
}
