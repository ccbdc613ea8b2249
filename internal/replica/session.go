package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/starford/bitkeep/internal/models"
)

// Session is the set of replicas one window works with.
type Session struct {
	Types       *BitTypeStore
	Bits        *BitStore
	Collections *CollectionStore
}

// NewSession creates the three replicas over remote.
func NewSession(remote Remote, opts ...Option) *Session {
	types := NewBitTypeStore(remote, opts...)
	return &Session{
		Types:       types,
		Bits:        NewBitStore(remote, types, opts...),
		Collections: NewCollectionStore(remote, opts...),
	}
}

// Load fetches all three families concurrently.
func (s *Session) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Types.Load(ctx) })
	g.Go(func() error { return s.Bits.Load(ctx) })
	g.Go(func() error { return s.Collections.Load(ctx) })
	return g.Wait()
}

// Apply installs one broadcast payload into the replica for its channel.
func (s *Session) Apply(channel string, payload []byte) error {
	switch channel {
	case models.ChannelBitTypes:
		var defs []models.BitTypeDefinition
		if err := json.Unmarshal(payload, &defs); err != nil {
			return fmt.Errorf("replica: decode %s: %w", channel, err)
		}
		s.Types.Replace(defs)
	case models.ChannelBits:
		var bits []models.Bit
		if err := json.Unmarshal(payload, &bits); err != nil {
			return fmt.Errorf("replica: decode %s: %w", channel, err)
		}
		s.Bits.Replace(bits)
	case models.ChannelCollections:
		var cols []models.Collection
		if err := json.Unmarshal(payload, &cols); err != nil {
			return fmt.Errorf("replica: decode %s: %w", channel, err)
		}
		s.Collections.Replace(cols)
	default:
		return fmt.Errorf("replica: unknown channel %q", channel)
	}
	return nil
}

// ErrInboxFull is returned by Window.Push when the window is not keeping up.
var ErrInboxFull = errors.New("replica: window inbox full")

type delivery struct {
	channel string
	payload []byte
}

// Window is an in-process broadcast subscriber. It queues broadcasts and
// applies them to its session on its own goroutine, in arrival order.
type Window struct {
	id      string
	session *Session
	logger  *slog.Logger

	inbox     chan delivery
	done      chan struct{}
	drained   chan struct{}
	destroyed atomic.Bool
	once      sync.Once
}

// NewWindow starts a window over session with room for buffer queued broadcasts.
func NewWindow(session *Session, buffer int, logger *slog.Logger) *Window {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Window{
		id:      "window-" + ulid.Make().String(),
		session: session,
		logger:  logger,
		inbox:   make(chan delivery, buffer),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Window) loop() {
	defer close(w.drained)
	for {
		select {
		case <-w.done:
			return
		case d := <-w.inbox:
			if err := w.session.Apply(d.channel, d.payload); err != nil {
				w.logger.Warn("replica: apply broadcast failed",
					slog.String("window", w.id),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (w *Window) ID() string            { return w.id }
func (w *Window) Done() <-chan struct{} { return w.done }
func (w *Window) Session() *Session     { return w.session }

// Alive reports false once the window is destroyed or closed.
func (w *Window) Alive() bool {
	if w.destroyed.Load() {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Push queues a broadcast without blocking.
func (w *Window) Push(channel string, payload []byte) error {
	select {
	case w.inbox <- delivery{channel: channel, payload: payload}:
		return nil
	default:
		return ErrInboxFull
	}
}

// Destroy marks the window's handle as gone. Its teardown (Close) may follow
// later; until then the window stays registered but receives nothing.
func (w *Window) Destroy() { w.destroyed.Store(true) }

// Close destroys the window, signals Done and waits for its loop to stop.
func (w *Window) Close() {
	w.once.Do(func() {
		w.destroyed.Store(true)
		close(w.done)
	})
	<-w.drained
}
