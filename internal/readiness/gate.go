package readiness

import (
	"context"
	"lunchbell/internal/metrics"
	"lunchbell/internal/ports"
	"lunchbell/internal/types"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultFetchTimeout = 20 * time.Second

// Gate holds the latest menu-load outcome. A failed refresh keeps whatever content was
// loaded before, since a stale menu beats none.
type Gate struct {
	provider ports.MenuProvider
	metrics  *metrics.Metrics
	timeout  time.Duration

	mu        sync.RWMutex
	state     types.MenuState
	content   string
	hasMenu   bool
	updatedAt time.Time

	settleOnce sync.Once
	settled    chan struct{}
}

type Option func(*Gate)

func WithFetchTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(provider ports.MenuProvider, opts ...Option) *Gate {
	g := &Gate{
		provider: provider,
		timeout:  defaultFetchTimeout,
		state:    types.MenuNotLoaded,
		settled:  make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Refresh fetches the menu from the provider and records the outcome.
func (g *Gate) Refresh(ctx context.Context) error {
	defer g.settleOnce.Do(func() { close(g.settled) })

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	content, err := g.provider.FetchTodaysMenu(ctx)
	g.metrics.ObserveMenuRefresh(err)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.state = types.MenuFailed
		log.WithError(err).WithField("stale_menu", g.hasMenu).Warn("menu refresh failed")
		return types.Err(types.ErrMenuFetch, err, "")
	}
	g.state = types.MenuLoaded
	g.content = content
	g.hasMenu = true
	g.updatedAt = time.Now()
	log.WithField("bytes", len(content)).Info("menu refreshed")
	return nil
}

// Menu returns the most recent menu. ok is false while no refresh has ever succeeded.
func (g *Gate) Menu() (content string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.content, g.hasMenu
}

func (g *Gate) State() types.MenuState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// UpdatedAt is the time of the last successful refresh; zero when none.
func (g *Gate) UpdatedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.updatedAt
}

// Settled is closed once the first Refresh has finished, successfully or not.
func (g *Gate) Settled() <-chan struct{} {
	return g.settled
}

// WaitSettled blocks until the first Refresh settles or ctx is done.
func (g *Gate) WaitSettled(ctx context.Context) error {
	select {
	case <-g.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
