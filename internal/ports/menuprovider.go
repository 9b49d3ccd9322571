package ports

import "context"

// MenuProvider fetches today's menu. It is only called by the readiness gate.
type MenuProvider interface {
	FetchTodaysMenu(ctx context.Context) (string, error)
}
