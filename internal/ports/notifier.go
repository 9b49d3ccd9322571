package ports

import (
	"context"
	"lunchbell/internal/types"
)

// Notifier sends a message over one channel kind.
// Chat kinds may render extra.Menu; the others ignore it.
type Notifier interface {
	Send(ctx context.Context, handle string, message string, extra types.Extra) error
}
