package types

import "strings"

// Bindings maps a channel kind to the handle issued by the provider, or LocalBinding.
type Bindings map[Kind]string

// Snapshot is the full identity -> bindings mapping, the unit of persistence.
type Snapshot map[string]Bindings

// Clone returns a deep copy of the bindings.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Kinds returns the bound kinds in the canonical order of types.Kinds.
func (b Bindings) Kinds() []Kind {
	out := make([]Kind, 0, len(b))
	for _, k := range Kinds {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, b := range s {
		out[id] = b.Clone()
	}
	return out
}

// RegistrationCommand is the parsed form of an inbound text message. It is never persisted.
type RegistrationCommand struct {
	Identity      string
	IsUnsubscribe bool
	// Channels holds the recognized kinds in first-seen order, without duplicates.
	Channels []Kind
}

// Extra carries channel-specific context for a send, e.g. today's menu for chat channels.
type Extra struct {
	// Recipient is the identity the send is for. Shared chat rooms use it to address the user.
	Recipient string
	Menu      string
}

// NormalizeIdentity case-folds and trims an identity key.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
