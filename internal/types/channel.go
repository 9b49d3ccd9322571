package types

import "strings"

// Kind is a notification channel kind. The set is closed; see Kinds.
type Kind string

const (
	KindSMS      Kind = "sms"
	KindSlack    Kind = "slack"
	KindTelegram Kind = "telegram"
	KindPush     Kind = "push"
)

// LocalBinding is stored for channels that need no binding at the provider.
const LocalBinding = "local"

// Kinds lists every known channel kind.
var Kinds = []Kind{KindSMS, KindSlack, KindTelegram, KindPush}

// commandTokens maps the tokens accepted in a text command to their kind.
// Push is absent on purpose: a push binding needs a device token.
var commandTokens = map[string]Kind{
	"sms":      KindSMS,
	"text":     KindSMS,
	"slack":    KindSlack,
	"telegram": KindTelegram,
}

// KindFromToken resolves a command token (case-insensitive, trimmed).
func KindFromToken(token string) (Kind, bool) {
	k, ok := commandTokens[strings.ToLower(strings.TrimSpace(token))]
	return k, ok
}

// ParseKind resolves any kind name, including the ones not selectable by command.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// External reports whether bindings of this kind are created at an external provider.
func (k Kind) External() bool {
	return k == KindSMS || k == KindPush
}

// RichContext reports whether the channel renders extra context such as the menu.
func (k Kind) RichContext() bool {
	return k == KindSlack || k == KindTelegram
}

func (k Kind) String() string { return string(k) }
