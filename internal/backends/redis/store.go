package redis

import (
	"context"
	"errors"
	"lunchbell/internal/types"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const defaultSnapshotKey = "_lunchbell_subscribers"

// SnapshotStore keeps the snapshot under a single key as zstd-compressed JSON.
type SnapshotStore struct {
	cli *redis.Client
	key string

	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewSnapshotStore(cli *redis.Client, key string) *SnapshotStore {
	if key == "" {
		key = defaultSnapshotKey
	}
	// Neither constructor can fail without options.
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &SnapshotStore{cli: cli, key: key, enc: enc, dec: dec}
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (types.Snapshot, error) {
	out, err := s.cli.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, types.ErrNotFound
		}
		return nil, types.Err(types.ErrDataStoreAccess, err, "get %s", s.key)
	}
	raw, err := s.dec.DecodeAll(out, nil)
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "decompress %s", s.key)
	}
	return types.DecodeSnapshot(raw)
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot types.Snapshot) error {
	raw, err := types.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	packed := s.enc.EncodeAll(raw, nil)
	log.WithFields(log.Fields{
		"key":         s.key,
		"subscribers": len(snapshot),
		"bytes":       len(packed),
	}).Debug("saving snapshot to redis")
	if err := s.cli.Set(ctx, s.key, packed, 0).Err(); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "set %s", s.key)
	}
	return nil
}

// Clear removes the snapshot key.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	return s.cli.Del(ctx, s.key).Err()
}
