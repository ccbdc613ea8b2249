// Package client talks to a remote bitkeep server. Client implements the
// replica remote contract over the REST API and listens for broadcasts over
// the WebSocket endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/starford/bitkeep/internal/api"
	"github.com/starford/bitkeep/internal/apperr"
	"github.com/starford/bitkeep/internal/models"
)

// ErrNoServer is returned by New when no server url is configured.
var ErrNoServer = errors.New("client: no server configured")

// Client is a remote store manager.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the Bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at rawURL (e.g. http://localhost:8080).
func New(rawURL string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		return nil, ErrNoServer
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: server url must be http or https, got %q", rawURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.base.String(), "/") + "/api" + path
}

// statusErr maps an error response back onto the apperr taxonomy.
func statusErr(status int, msg string) error {
	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = apperr.ErrValidation
	case http.StatusNotFound:
		sentinel = apperr.ErrNotFound
	case http.StatusConflict:
		sentinel = apperr.ErrAlreadyExists
	default:
		return fmt.Errorf("client: server returned %d: %s", status, msg)
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return statusErr(resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func esc(id string) string { return url.PathEscape(id) }

// StructuredBits implements replica.BitRemote.
func (c *Client) StructuredBits(ctx context.Context) ([]models.Bit, error) {
	var out []models.Bit
	err := c.do(ctx, http.MethodGet, "/bits", nil, &out)
	return out, err
}

// StructuredPinnedBits returns only pinned bits.
func (c *Client) StructuredPinnedBits(ctx context.Context) ([]models.Bit, error) {
	var out []models.Bit
	err := c.do(ctx, http.MethodGet, "/bits?pinned=true", nil, &out)
	return out, err
}

// Bit returns one structured bit.
func (c *Client) Bit(ctx context.Context, id string) (models.Bit, error) {
	var out models.Bit
	err := c.do(ctx, http.MethodGet, "/bits/"+esc(id), nil, &out)
	return out, err
}

func (c *Client) AddBit(ctx context.Context, in models.BitInput) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodPost, "/bits", in, &out)
	return out, err
}

func (c *Client) UpdateBit(ctx context.Context, id string, data []models.BitData, ts time.Time) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodPut, "/bits/"+esc(id), api.UpdateBitRequest{Data: data, Timestamp: ts}, &out)
	return out, err
}

func (c *Client) TogglePin(ctx context.Context, id string, pinned bool, ts time.Time) (string, error) {
	var out api.IDResponse
	err := c.do(ctx, http.MethodPut, "/bits/"+esc(id)+"/pin", api.PinRequest{Pinned: pinned, Timestamp: ts}, &out)
	return out.ID, err
}

func (c *Client) DeleteBit(ctx context.Context, id string) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodDelete, "/bits/"+esc(id), nil, &out)
	return out, err
}

func (c *Client) AddBitNote(ctx context.Context, n models.Note) (string, error) {
	var out api.IDResponse
	err := c.do(ctx, http.MethodPost, "/bits/"+esc(n.BitID)+"/notes", n, &out)
	return out.ID, err
}

func (c *Client) UpdateBitNote(ctx context.Context, id, content string, ts time.Time) (string, error) {
	var out api.IDResponse
	err := c.do(ctx, http.MethodPut, "/notes/"+esc(id), api.UpdateNoteRequest{Content: content, Timestamp: ts}, &out)
	return out.ID, err
}

func (c *Client) DeleteBitNote(ctx context.Context, id string) (string, error) {
	var out api.IDResponse
	err := c.do(ctx, http.MethodDelete, "/notes/"+esc(id), nil, &out)
	return out.ID, err
}

// StructuredBitTypes implements replica.BitTypeRemote.
func (c *Client) StructuredBitTypes(ctx context.Context) ([]models.BitTypeDefinition, error) {
	var out []models.BitTypeDefinition
	err := c.do(ctx, http.MethodGet, "/bit-types", nil, &out)
	return out, err
}

func (c *Client) AddBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodPost, "/bit-types", def, &out)
	return out, err
}

func (c *Client) UpdateBitType(ctx context.Context, def models.BitTypeDefinition) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodPut, "/bit-types/"+esc(def.ID), def, &out)
	return out, err
}

func (c *Client) DeleteBitType(ctx context.Context, id string) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodDelete, "/bit-types/"+esc(id), nil, &out)
	return out, err
}

// StructuredCollections implements replica.CollectionRemote.
func (c *Client) StructuredCollections(ctx context.Context) ([]models.Collection, error) {
	var out []models.Collection
	err := c.do(ctx, http.MethodGet, "/collections", nil, &out)
	return out, err
}

func (c *Client) AddCollection(ctx context.Context, col models.Collection) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodPost, "/collections", col, &out)
	return out, err
}

func (c *Client) UpdateCollection(ctx context.Context, col models.Collection) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodPut, "/collections/"+esc(col.ID), col, &out)
	return out, err
}

func (c *Client) DeleteCollection(ctx context.Context, id string) (models.Ref, error) {
	var out models.Ref
	err := c.do(ctx, http.MethodDelete, "/collections/"+esc(id), nil, &out)
	return out, err
}

// Listen connects to the broadcast socket and calls fn for every envelope
// until ctx ends or the connection drops. A cancelled ctx returns nil.
func (c *Client) Listen(ctx context.Context, fn func(channel string, payload []byte)) error {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"

	// The dialer refuses clients with a Timeout; the context bounds the handshake.
	opts := &websocket.DialOptions{}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.token}}
	}
	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", u.String(), err)
	}
	defer conn.CloseNow()
	// Full-collection payloads can be large.
	conn.SetReadLimit(64 << 20)
	c.logger.Debug("client: listening", slog.String("url", u.String()))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("client: read: %w", err)
		}
		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("client: bad envelope", slog.String("error", err.Error()))
			continue
		}
		fn(env.Channel, env.Payload)
	}
}
