package ports

import (
	"context"
	"lunchbell/internal/types"
)

// BindingClient creates and deletes bindings at external channel providers.
// Only kinds for which Kind.External() is true are ever passed in.
// Implementations SHOULD bound every provider call with a timeout.
type BindingClient interface {
	// CreateBinding registers address for identity on the given channel and returns
	// the provider's opaque handle. extra carries provider-specific values (e.g. a
	// device token for push).
	CreateBinding(ctx context.Context, identity string, kind types.Kind, address string, extra map[string]string) (string, error)

	// DeleteBinding removes a previously created binding.
	DeleteBinding(ctx context.Context, kind types.Kind, handle string) error
}
