package file

import (
	"context"
	"errors"
	"io/fs"
	"lunchbell/internal/types"
	"os"
	"path/filepath"
)

// SnapshotStore keeps the snapshot as a JSON document on local disk.
// Saves write a temp file next to the target and rename it over, so a crash mid-write
// leaves the previous snapshot intact.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) LoadSnapshot(_ context.Context) (types.Snapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.ErrNotFound
		}
		return nil, types.Err(types.ErrDataStoreAccess, err, "read %s", s.path)
	}
	return types.DecodeSnapshot(b)
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot types.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := types.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "create temp file in %s", dir)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return types.Err(types.ErrDataStoreAccess, err, "write snapshot")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return types.Err(types.ErrDataStoreAccess, err, "sync snapshot")
	}
	if err := tmp.Close(); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "close snapshot")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "replace %s", s.path)
	}
	return nil
}
