package registry

import (
	"context"
	"errors"
	"lunchbell/internal/metrics"
	"lunchbell/internal/ports"
	"lunchbell/internal/types"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	defaultFlushTimeout = 30 * time.Second
	maxPersistRetries   = 3

	pushTokenKey = "token"
)

// Registry owns the identity -> bindings map. Every mutation goes through its methods
// and is followed by an asynchronous flush of the whole snapshot.
//
// The mutex only guards the map itself. Binding calls run outside of it, so two
// concurrent Subscribe calls for the same identity race and the last one to finish
// wins. Flushes are not serialized against each other either: each one writes the
// map as it was when the flush started.
type Registry struct {
	mu   sync.RWMutex
	subs types.Snapshot

	store   ports.SnapshotStore
	binder  ports.BindingClient
	metrics *metrics.Metrics

	keepEmpty    bool
	flushTimeout time.Duration
	newBackOff   func() backoff.BackOff

	flushes sync.WaitGroup
}

type Option func(*Registry)

// WithKeepEmpty retains subscribers whose bindings all failed instead of pruning them.
func WithKeepEmpty() Option {
	return func(r *Registry) { r.keepEmpty = true }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithBackOff replaces the retry policy used by Persist.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(r *Registry) { r.newBackOff = f }
}

func WithFlushTimeout(d time.Duration) Option {
	return func(r *Registry) { r.flushTimeout = d }
}

func New(store ports.SnapshotStore, binder ports.BindingClient, opts ...Option) *Registry {
	r := &Registry{
		subs:         make(types.Snapshot),
		store:        store,
		binder:       binder,
		flushTimeout: defaultFlushTimeout,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SubscribeResult is the outcome of a Subscribe call. Failed holds the channels whose
// binding could not be created; they are absent from Bindings.
type SubscribeResult struct {
	Bindings types.Bindings
	Failed   map[types.Kind]error
}

// Load replaces the in-memory map with the stored snapshot. A missing or unreadable
// snapshot yields an empty registry; it is never fatal.
func (r *Registry) Load(ctx context.Context) {
	snap, err := r.store.LoadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			log.Info("no registry snapshot found, starting empty")
		} else {
			log.WithError(err).Warn("registry snapshot unreadable, starting empty")
		}
		snap = make(types.Snapshot)
	}

	subs := make(types.Snapshot, len(snap))
	for id, b := range snap {
		id = types.NormalizeIdentity(id)
		if id == "" || (len(b) == 0 && !r.keepEmpty) {
			continue
		}
		subs[id] = b.Clone()
	}

	r.mu.Lock()
	r.subs = subs
	r.mu.Unlock()
	r.metrics.SetSubscribers(len(subs))
	log.WithField("subscribers", len(subs)).Info("registry loaded")
}

// Subscribe replaces the identity's whole binding set with the requested channels.
// Channels whose binding fails are left out; the rest are stored. Previous external
// handles, push included, are deleted at the provider. Push cannot be requested here
// since it needs a device token; a request naming only push has no valid channels.
// The snapshot is flushed once, after all binding attempts, without waiting for the flush.
func (r *Registry) Subscribe(ctx context.Context, identity string, kinds []types.Kind, address string) (SubscribeResult, error) {
	identity = types.NormalizeIdentity(identity)
	if identity == "" {
		return SubscribeResult{}, types.Err(types.ErrMalformedCommand, nil, "empty identity")
	}
	selectable := make([]types.Kind, 0, len(kinds))
	for _, k := range kinds {
		if k != types.KindPush {
			selectable = append(selectable, k)
		}
	}
	if len(selectable) == 0 {
		return SubscribeResult{}, types.ErrNoValidChannels
	}

	r.mu.RLock()
	previous := r.subs[identity].Clone()
	r.mu.RUnlock()

	res := SubscribeResult{
		Bindings: make(types.Bindings, len(selectable)),
		Failed:   make(map[types.Kind]error),
	}
	for _, k := range selectable {
		if !k.External() {
			res.Bindings[k] = types.LocalBinding
			continue
		}
		handle, err := r.binder.CreateBinding(ctx, identity, k, address, nil)
		r.metrics.ObserveBinding(k.String(), err)
		if err != nil {
			err = types.Err(types.ErrChannelBinding, err, "create %s binding", k)
			log.WithError(err).WithFields(log.Fields{
				"identity": identity,
				"kind":     k,
			}).Warn("channel binding failed, channel omitted")
			res.Failed[k] = err
			continue
		}
		res.Bindings[k] = handle
	}

	r.mu.Lock()
	if len(res.Bindings) == 0 && !r.keepEmpty {
		delete(r.subs, identity)
	} else {
		r.subs[identity] = res.Bindings.Clone()
	}
	n := len(r.subs)
	r.mu.Unlock()
	r.metrics.SetSubscribers(n)

	// Handles replaced by this registration would otherwise leak at the provider.
	for k, h := range previous {
		if k.External() && res.Bindings[k] != h {
			r.deleteBinding(ctx, identity, k, h)
		}
	}

	log.WithFields(log.Fields{
		"identity": identity,
		"bound":    res.Bindings.Kinds(),
		"failed":   len(res.Failed),
	}).Info("subscriber registered")
	r.persistAsync()
	return res, nil
}

// Unsubscribe removes the identity and deletes its external bindings. Unknown
// identities are a no-op and return false.
func (r *Registry) Unsubscribe(ctx context.Context, identity string) (bool, error) {
	identity = types.NormalizeIdentity(identity)

	r.mu.Lock()
	bindings, ok := r.subs[identity]
	if ok {
		delete(r.subs, identity)
	}
	n := len(r.subs)
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	r.metrics.SetSubscribers(n)

	for k, h := range bindings {
		if k.External() {
			r.deleteBinding(ctx, identity, k, h)
		}
	}
	log.WithField("identity", identity).Info("subscriber removed")
	r.persistAsync()
	return true, nil
}

// BindPush creates (or replaces) the identity's browser push binding from a device
// token. Unlike Subscribe it merges into the existing bindings.
func (r *Registry) BindPush(ctx context.Context, identity, token string) (string, error) {
	identity = types.NormalizeIdentity(identity)
	if identity == "" || token == "" {
		return "", types.Err(types.ErrMalformedCommand, nil, "identity and token are required")
	}
	handle, err := r.binder.CreateBinding(ctx, identity, types.KindPush, "", map[string]string{pushTokenKey: token})
	r.metrics.ObserveBinding(types.KindPush.String(), err)
	if err != nil {
		return "", types.Err(types.ErrChannelBinding, err, "create push binding")
	}

	r.mu.Lock()
	b, ok := r.subs[identity]
	if !ok {
		b = make(types.Bindings, 1)
		r.subs[identity] = b
	}
	old, hadOld := b[types.KindPush]
	b[types.KindPush] = handle
	n := len(r.subs)
	r.mu.Unlock()
	r.metrics.SetSubscribers(n)

	if hadOld && old != handle {
		r.deleteBinding(ctx, identity, types.KindPush, old)
	}
	log.WithField("identity", identity).Info("push binding registered")
	r.persistAsync()
	return handle, nil
}

// UnbindPush removes the identity's push binding. The identity itself is removed
// when it has no other binding left.
func (r *Registry) UnbindPush(ctx context.Context, identity string) (bool, error) {
	identity = types.NormalizeIdentity(identity)

	r.mu.Lock()
	b := r.subs[identity]
	handle, ok := b[types.KindPush]
	if ok {
		delete(b, types.KindPush)
		if len(b) == 0 {
			delete(r.subs, identity)
		}
	}
	n := len(r.subs)
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	r.metrics.SetSubscribers(n)

	r.deleteBinding(ctx, identity, types.KindPush, handle)
	r.persistAsync()
	return true, nil
}

// List returns a copy of the whole registry.
func (r *Registry) List() types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs.Clone()
}

// Get returns a copy of the identity's bindings.
func (r *Registry) Get(identity string) (types.Bindings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.subs[types.NormalizeIdentity(identity)]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Persist writes the current snapshot, retrying a bounded number of times. Callers
// that need durability call it directly; mutations only schedule it.
func (r *Registry) Persist(ctx context.Context) error {
	snap := r.List()
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), maxPersistRetries), ctx)
	err := backoff.Retry(func() error {
		return r.store.SaveSnapshot(ctx, snap)
	}, b)
	r.metrics.ObserveFlush(err)
	if err != nil {
		return types.Err(types.ErrPersistence, err, "save snapshot of %d subscribers", len(snap))
	}
	return nil
}

// Flush blocks until every flush scheduled so far has completed.
// Call it only after mutations have stopped (shutdown, tests): a mutation scheduling
// a flush while Flush is waiting is not allowed.
func (r *Registry) Flush() {
	r.flushes.Wait()
}

func (r *Registry) persistAsync() {
	r.flushes.Add(1)
	go func() {
		defer r.flushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.flushTimeout)
		defer cancel()
		if err := r.Persist(ctx); err != nil {
			log.WithError(err).Error("registry flush failed, in-memory state stays authoritative")
		}
	}()
}

func (r *Registry) deleteBinding(ctx context.Context, identity string, kind types.Kind, handle string) {
	if err := r.binder.DeleteBinding(ctx, kind, handle); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"identity": identity,
			"kind":     kind,
		}).Warn("failed to delete channel binding")
	}
}
