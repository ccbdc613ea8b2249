package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/starford/bitkeep/internal/models"
	"github.com/starford/bitkeep/internal/registry"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPeerPush(t *testing.T) {
	p := newPeer(1)
	if err := p.Push("bits-updated", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := p.Push("bits-updated", []byte(`[]`)); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	var env models.Envelope
	if err := json.Unmarshal(<-p.ch, &env); err != nil {
		t.Fatal(err)
	}
	if env.Channel != "bits-updated" || string(env.Payload) != "[]" {
		t.Errorf("unexpected envelope %+v", env)
	}
	p.close()
	if err := p.Push("x", []byte(`1`)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestHandlerDeliversEnvelopes(t *testing.T) {
	reg := registry.New(nil)
	defer reg.Close()
	srv := httptest.NewServer(NewHandler(reg, 8, nil, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	eventually(t, func() bool { return reg.Count() == 1 })
	reg.Publish(models.ChannelBitTypes, []map[string]string{{"id": "note"}})
	reg.Publish(models.ChannelBits, []string{})

	for _, want := range []string{models.ChannelBitTypes, models.ChannelBits} {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		if env.Channel != want {
			t.Errorf("channel = %q, want %q", env.Channel, want)
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")
	eventually(t, func() bool { return reg.Count() == 0 })
}
