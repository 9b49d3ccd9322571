package types

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EncodeSnapshot renders a snapshot in its persisted JSON form:
// {"identity": {"sms": "handle", "slack": "local"}}.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}
	return json.Marshal(s)
}

// DecodeSnapshot parses the persisted JSON form. Unknown channel kinds are dropped and
// identities are normalized, so snapshots written by older builds still load.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var raw map[string]map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return SnapshotFromRaw(raw), nil
}

// Raw converts the snapshot to plain string maps for encoders that need them.
func (s Snapshot) Raw() map[string]map[string]string {
	out := make(map[string]map[string]string, len(s))
	for id, b := range s {
		m := make(map[string]string, len(b))
		for k, h := range b {
			m[k.String()] = h
		}
		out[id] = m
	}
	return out
}

// SnapshotFromRaw is the inverse of Raw, with the same cleanup as DecodeSnapshot.
func SnapshotFromRaw(raw map[string]map[string]string) Snapshot {
	out := make(Snapshot, len(raw))
	for id, bindings := range raw {
		id = NormalizeIdentity(id)
		if id == "" {
			continue
		}
		b := make(Bindings, len(bindings))
		for name, handle := range bindings {
			if k, ok := ParseKind(name); ok && handle != "" {
				b[k] = handle
			}
		}
		out[id] = b
	}
	return out
}
