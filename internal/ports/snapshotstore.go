package ports

import (
	"context"
	"lunchbell/internal/types"
)

// SnapshotStore persists the registry snapshot. Saves replace the previous snapshot wholesale.
type SnapshotStore interface {
	// LoadSnapshot returns the last saved snapshot.
	// MUST return types.ErrNotFound if nothing was ever saved.
	LoadSnapshot(ctx context.Context) (types.Snapshot, error)

	SaveSnapshot(ctx context.Context, snapshot types.Snapshot) error
}
