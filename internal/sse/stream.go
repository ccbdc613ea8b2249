// Package sse streams broadcasts to HTTP clients as Server-Sent Events.
package sse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/bitkeep/internal/registry"
)

// DefaultBuffer is the per-stream queue length used when none is configured.
const DefaultBuffer = 64

var (
	// ErrClosed is returned by Push after the stream went away.
	ErrClosed = errors.New("sse: stream closed")
	// ErrFull is returned by Push when the client is not draining its queue.
	ErrFull = errors.New("sse: stream buffer full")
)

// Stream is one SSE client seen as a registry subscriber. Pushed broadcasts are
// framed as SSE events and queued until the handler writes them out.
type Stream struct {
	id    string
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
	alive atomic.Bool
}

// NewStream creates a stream with a queue of buffer events.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Stream{
		id:   "sse-" + ulid.Make().String(),
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

func (s *Stream) ID() string            { return s.id }
func (s *Stream) Alive() bool           { return s.alive.Load() }
func (s *Stream) Done() <-chan struct{} { return s.done }

// Messages returns the queue of framed events.
func (s *Stream) Messages() <-chan []byte { return s.ch }

// Push frames one broadcast and queues it without blocking.
func (s *Stream) Push(channel string, payload []byte) error {
	if !s.alive.Load() {
		return ErrClosed
	}
	msg := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", channel, payload))
	select {
	case s.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Close marks the stream dead and signals Done. It is safe to call twice.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.alive.Store(false)
		close(s.done)
	})
}

// Registrar is the part of the registry the handler needs.
type Registrar interface {
	Register(s registry.Subscriber) bool
}

// Handler is the SSE endpoint (GET /api/events). Each request registers a new
// stream that lives until the client disconnects or the registry shuts down.
type Handler struct {
	reg       Registrar
	buffer    int
	keepalive time.Duration
	logger    *slog.Logger
}

// NewHandler creates the endpoint. A zero keepalive disables comment pings.
func NewHandler(reg Registrar, buffer int, keepalive time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reg: reg, buffer: buffer, keepalive: keepalive, logger: logger}
}

// ServeHTTP streams events until the request context ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s := NewStream(h.buffer)
	defer s.Close()
	if !h.reg.Register(s) {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	h.logger.Debug("sse: stream opened", slog.String("id", s.ID()))

	var tick <-chan time.Time
	if h.keepalive > 0 {
		t := time.NewTicker(h.keepalive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("sse: stream closed", slog.String("id", s.ID()))
			return
		case <-tick:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-s.Messages():
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
