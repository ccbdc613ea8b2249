// Package replica holds the client-side copies of each entity family. A
// replica serves reads from its local items, applies mutations optimistically,
// forwards them to the store manager and reverts them if the manager refuses.
// Broadcasts from the manager replace the local items wholesale.
package replica

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Option configures a replica or session.
type Option func(*settings)

type settings struct {
	timeout time.Duration
	logger  *slog.Logger
}

// WithTimeout bounds every remote call. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLogger sets the logger used to report failed remote calls.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Replica is the last-known collection of one entity family.
//
// Mutations on one replica are serialized; broadcasts may land at any time,
// including while a mutation's remote call is in flight.
type Replica[T any] struct {
	clone func(T) T
	cfg   settings
	name  string

	opMu     sync.Mutex // held across a whole mutation
	notifyMu sync.Mutex // orders listener calls

	mu        sync.Mutex
	items     []T
	version   uint64
	lastErr   error
	listeners map[int]func([]T)
	nextID    int
}

func newReplica[T any](name string, clone func(T) T, cfg settings) *Replica[T] {
	return &Replica[T]{
		name:      name,
		clone:     clone,
		cfg:       cfg,
		items:     []T{},
		listeners: make(map[int]func([]T)),
	}
}

func (r *Replica[T]) copyItems(items []T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = r.clone(it)
	}
	return out
}

// Items returns a copy of the local collection.
func (r *Replica[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyItems(r.items)
}

// Err returns the error of the last failed operation, nil after a success.
func (r *Replica[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Version increases every time the local collection changes.
func (r *Replica[T]) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Subscribe registers fn to receive the collection after every change and
// returns a function that removes it.
func (r *Replica[T]) Subscribe(fn func([]T)) (cancel func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Replace installs an authoritative collection, typically a broadcast payload.
func (r *Replica[T]) Replace(items []T) {
	r.mu.Lock()
	r.items = r.copyItems(items)
	r.version++
	r.mu.Unlock()
	r.notify()
}

func (r *Replica[T]) notify() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	items := r.copyItems(r.items)
	fns := make([]func([]T), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(items)
	}
}

func (r *Replica[T]) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

func (r *Replica[T]) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.timeout > 0 {
		return context.WithTimeout(ctx, r.cfg.timeout)
	}
	return context.WithCancel(ctx)
}

// load fetches the whole collection and installs it.
func (r *Replica[T]) load(ctx context.Context, fetch func(context.Context) ([]T, error)) error {
	ctx, cancel := r.remoteCtx(ctx)
	defer cancel()
	items, err := fetch(ctx)
	if err != nil {
		r.setErr(err)
		return err
	}
	r.setErr(nil)
	r.Replace(items)
	return nil
}

// fail records an error raised before any remote call.
func (r *Replica[T]) fail(err error) error {
	r.setErr(err)
	return err
}

// mutate applies the change locally, publishes it, then runs the remote call.
// On failure the pre-mutation items come back unless a broadcast replaced
// them in the meantime, in which case the broadcast stands.
func (r *Replica[T]) mutate(ctx context.Context, apply func([]T) []T, remote func(context.Context) error) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	snapshot := r.items
	r.items = apply(r.copyItems(snapshot))
	r.version++
	applied := r.version
	r.mu.Unlock()
	r.notify()

	rctx, cancel := r.remoteCtx(ctx)
	err := remote(rctx)
	cancel()

	if err == nil {
		r.setErr(nil)
		return nil
	}

	r.cfg.logger.Warn("replica: remote call failed, reverting",
		slog.String("family", r.name),
		slog.String("error", err.Error()))

	r.mu.Lock()
	r.lastErr = err
	restored := r.version == applied
	if restored {
		r.items = snapshot
		r.version++
	}
	r.mu.Unlock()
	if restored {
		r.notify()
	}
	return err
}
