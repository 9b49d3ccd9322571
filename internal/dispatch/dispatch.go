package dispatch

import (
	"context"
	"lunchbell/internal/metrics"
	"lunchbell/internal/ports"
	"lunchbell/internal/types"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers     = 8
	defaultSendTimeout = 10 * time.Second
)

// SnapshotSource is the read side of the registry the dispatcher needs.
type SnapshotSource interface {
	List() types.Snapshot
}

// Failure records one (identity, channel) send that did not go through.
type Failure struct {
	Identity string
	Kind     types.Kind
	Err      error
}

// Report summarizes a dispatch. A dispatch always completes; failures are only counted.
type Report struct {
	ID        string
	Attempted int
	Succeeded int
	Failures  []Failure
}

type Dispatcher struct {
	source      SnapshotSource
	notifiers   map[types.Kind]ports.Notifier
	metrics     *metrics.Metrics
	workers     int
	sendTimeout time.Duration

	// detached tracks Trigger runs.
	detached sync.WaitGroup
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(source SnapshotSource, notifiers map[types.Kind]ports.Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:      source,
		notifiers:   notifiers,
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch sends message to every bound channel of every subscriber. Each send is
// independent: a failing channel or subscriber never stops the others. Subscriber
// order is unspecified.
func (d *Dispatcher) Dispatch(ctx context.Context, message string, extra types.Extra) Report {
	return d.dispatch(ctx, uuid.NewString(), message, extra)
}

// Trigger starts a dispatch in the background and returns its ID right away.
func (d *Dispatcher) Trigger(message string, extra types.Extra) string {
	id := uuid.NewString()
	d.detached.Add(1)
	go func() {
		defer d.detached.Done()
		d.dispatch(context.Background(), id, message, extra)
	}()
	return id
}

// Wait blocks until every triggered dispatch has finished.
func (d *Dispatcher) Wait() {
	d.detached.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, id, message string, extra types.Extra) Report {
	start := time.Now()
	snap := d.source.List()
	report := Report{ID: id}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for identity, bindings := range snap {
		for kind, handle := range bindings {
			report.Attempted++
			g.Go(func() error {
				x := extra
				x.Recipient = identity
				err := d.send(ctx, kind, handle, message, x)
				d.metrics.ObserveSend(kind.String(), err)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failures = append(report.Failures, Failure{Identity: identity, Kind: kind, Err: err})
					log.WithError(err).WithFields(log.Fields{
						"dispatch": id,
						"identity": identity,
						"kind":     kind,
					}).Warn("send failed")
					return nil
				}
				report.Succeeded++
				return nil
			})
		}
	}
	// Tasks never return an error so the group never cancels siblings.
	_ = g.Wait()

	d.metrics.ObserveDispatch(time.Since(start))
	log.WithFields(log.Fields{
		"dispatch":    id,
		"subscribers": len(snap),
		"attempted":   report.Attempted,
		"succeeded":   report.Succeeded,
		"failed":      len(report.Failures),
	}).Info("dispatch completed")
	return report
}

func (d *Dispatcher) send(ctx context.Context, kind types.Kind, handle, message string, extra types.Extra) (err error) {
	n, ok := d.notifiers[kind]
	if !ok || n == nil {
		return types.Err(types.ErrDispatchSend, nil, "no notifier for channel %s", kind)
	}
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = types.Err(types.ErrDispatchSend, nil, "%s notifier panicked: %v", kind, r)
		}
	}()
	if !kind.RichContext() {
		extra.Menu = ""
	}
	if err := n.Send(ctx, handle, message, extra); err != nil {
		return types.Err(types.ErrDispatchSend, err, "send via %s", kind)
	}
	return nil
}
