package command

import (
	"lunchbell/internal/types"
	"strings"
)

const separator = ":"

// unsubscribeKeywords are matched case-insensitively against the whole payload.
var unsubscribeKeywords = map[string]struct{}{
	"stop":        {},
	"unsubscribe": {},
}

// Parse turns a raw `identity: payload` text into a RegistrationCommand.
// It returns types.ErrMalformedCommand when the separator or the identity is missing.
// A payload without any known channel still parses, with an empty channel list;
// rejecting it is up to the caller so the user gets a specific answer.
func Parse(body string) (types.RegistrationCommand, error) {
	identity, payload, found := strings.Cut(body, separator)
	if !found {
		return types.RegistrationCommand{}, types.Err(types.ErrMalformedCommand, nil, "missing %q separator", separator)
	}
	identity = types.NormalizeIdentity(identity)
	if identity == "" {
		return types.RegistrationCommand{}, types.Err(types.ErrMalformedCommand, nil, "missing identity")
	}

	cmd := types.RegistrationCommand{Identity: identity}
	payload = strings.TrimSpace(payload)
	if _, ok := unsubscribeKeywords[strings.ToLower(payload)]; ok {
		cmd.IsUnsubscribe = true
		return cmd, nil
	}

	cmd.Channels = make([]types.Kind, 0, 3)
	seen := make(map[types.Kind]struct{}, 3)
	for _, token := range strings.Split(payload, ",") {
		k, ok := types.KindFromToken(token)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		cmd.Channels = append(cmd.Channels, k)
	}
	return cmd, nil
}
