// Package registry tracks the live subscribers (client windows) that receive
// broadcasts and fans each broadcast out to them.
package registry

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Subscriber is an abstract broadcast receiver. It is decoupled from any UI
// toolkit or transport.
type Subscriber interface {
	// ID identifies the subscriber; registering the same ID twice is a no-op.
	ID() string
	// Alive reports whether the subscriber can still receive. A subscriber that
	// reports false is skipped even if its teardown has not been processed yet.
	Alive() bool
	// Push delivers one broadcast. It must not block.
	Push(channel string, payload []byte) error
	// Done is closed when the subscriber goes away.
	Done() <-chan struct{}
}

type publishReq struct {
	channel string
	payload []byte
	done    chan int
}

type registerReq struct {
	sub   Subscriber
	added chan bool
}

// Registry owns the subscriber set.
//
// Concurrency model: a single internal event loop (goroutine) owns the set.
// Public methods communicate with the loop through channels, so no mutexes are
// required, and broadcasts are fanned out in the order Publish was called.
type Registry struct {
	logger *slog.Logger

	registerCh   chan registerReq
	unregisterCh chan string
	publishCh    chan publishReq
	countReqCh   chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a registry and starts its event loop.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:       logger,
		registerCh:   make(chan registerReq),
		unregisterCh: make(chan string, 64),
		publishCh:    make(chan publishReq),
		countReqCh:   make(chan chan int),
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	defer close(r.stopped)

	subs := make(map[string]Subscriber)

	fanOut := func(req publishReq) int {
		delivered := 0
		for id, s := range subs {
			if !s.Alive() {
				continue
			}
			if err := s.Push(req.channel, req.payload); err != nil {
				r.logger.Warn("registry: push failed",
					slog.String("subscriber", id),
					slog.String("channel", req.channel),
					slog.String("error", err.Error()))
				continue
			}
			delivered++
		}
		return delivered
	}

	for {
		select {
		case <-r.stopCh:
			return

		case req := <-r.registerCh:
			id := req.sub.ID()
			if _, ok := subs[id]; ok {
				req.added <- false
				continue
			}
			subs[id] = req.sub
			req.added <- true

		case id := <-r.unregisterCh:
			delete(subs, id)

		case req := <-r.publishCh:
			req.done <- fanOut(req)

		case resp := <-r.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the event loop. Subscribers are left to close themselves.
func (r *Registry) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.stopCh)
	}
	<-r.stopped
}

// Register adds s unless a subscriber with the same ID is present, and
// removes it once s.Done() is closed. It reports whether s was added.
func (r *Registry) Register(s Subscriber) bool {
	if r.closed.Load() {
		return false
	}
	req := registerReq{sub: s, added: make(chan bool, 1)}
	select {
	case r.registerCh <- req:
	case <-r.stopped:
		return false
	}
	if !<-req.added {
		return false
	}

	go func() {
		select {
		case <-s.Done():
			r.Unregister(s.ID())
		case <-r.stopped:
		}
	}()
	return true
}

// Unregister removes the subscriber with the given ID, if present.
func (r *Registry) Unregister(id string) {
	if r.closed.Load() {
		return
	}
	select {
	case r.unregisterCh <- id:
	case <-r.stopped:
	}
}

// Count returns the number of registered subscribers, live or not.
func (r *Registry) Count() int {
	if r.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case r.countReqCh <- resp:
	case <-r.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-r.stopped:
		return 0
	}
}

// Publish marshals v once and pushes it on channel to every live subscriber.
// It returns after fan-out with the number of subscribers reached, so callers
// that publish in commit order get delivery in commit order.
func (r *Registry) Publish(channel string, v any) int {
	if r.closed.Load() {
		return 0
	}
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("registry: marshal failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return 0
	}
	req := publishReq{channel: channel, payload: payload, done: make(chan int, 1)}
	select {
	case r.publishCh <- req:
	case <-r.stopped:
		return 0
	}
	select {
	case n := <-req.done:
		return n
	case <-r.stopped:
		return 0
	}
}
