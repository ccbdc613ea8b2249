// Package ws streams broadcasts to WebSocket clients. Every message is a JSON
// models.Envelope carrying the channel name and the structured payload.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/registry"
)

const (
	// DefaultBuffer is the per-connection queue length used when none is configured.
	DefaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

var (
	// ErrClosed is returned by Push after the connection went away.
	ErrClosed = errors.New("ws: connection closed")
	// ErrFull is returned by Push when the client is not draining its queue.
	ErrFull = errors.New("ws: connection buffer full")
)

// Peer is one WebSocket connection seen as a registry subscriber.
type Peer struct {
	id    string
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
	alive atomic.Bool
}

func newPeer(buffer int) *Peer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	p := &Peer{
		id:   "ws-" + ulid.Make().String(),
		ch:   make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	p.alive.Store(true)
	return p
}

func (p *Peer) ID() string            { return p.id }
func (p *Peer) Alive() bool           { return p.alive.Load() }
func (p *Peer) Done() <-chan struct{} { return p.done }

// Push wraps one broadcast in an envelope and queues it without blocking.
func (p *Peer) Push(channel string, payload []byte) error {
	if !p.alive.Load() {
		return ErrClosed
	}
	msg, err := json.Marshal(models.Envelope{Channel: channel, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case p.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

func (p *Peer) close() {
	p.once.Do(func() {
		p.alive.Store(false)
		close(p.done)
	})
}

// Registrar is the part of the registry the handler needs.
type Registrar interface {
	Register(s registry.Subscriber) bool
}

// Handler is the WebSocket endpoint (GET /api/ws).
type Handler struct {
	reg     Registrar
	buffer  int
	origins []string
	logger  *slog.Logger
}

// NewHandler creates the endpoint. origins are passed to websocket.Accept as
// OriginPatterns; empty means same-origin only.
func NewHandler(reg Registrar, buffer int, origins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reg: reg, buffer: buffer, origins: origins, logger: logger}
}

// ServeHTTP upgrades the request and writes queued envelopes until the client
// goes away. Client messages are ignored.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	p := newPeer(h.buffer)
	defer p.close()

	// CloseRead discards client frames and cancels ctx once the peer hangs up.
	ctx := conn.CloseRead(r.Context())
	if !h.reg.Register(p) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.logger.Debug("ws: client connected", slog.String("id", p.ID()))

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws: client disconnected", slog.String("id", p.ID()))
			return
		case msg := <-p.ch:
			if err := write(ctx, conn, msg); err != nil {
				h.logger.Warn("ws: write failed", slog.String("id", p.ID()), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
