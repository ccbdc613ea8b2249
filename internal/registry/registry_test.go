package registry

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSub struct {
	id     string
	alive  atomic.Bool
	done   chan struct{}
	once   sync.Once
	failed bool

	mu     sync.Mutex
	pushes []string
}

func newFake(id string) *fakeSub {
	s := &fakeSub{id: id, done: make(chan struct{})}
	s.alive.Store(true)
	return s
}

func (s *fakeSub) ID() string            { return s.id }
func (s *fakeSub) Alive() bool           { return s.alive.Load() }
func (s *fakeSub) Done() <-chan struct{} { return s.done }

func (s *fakeSub) Push(channel string, payload []byte) error {
	if s.failed {
		return errors.New("queue full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, channel+" "+string(payload))
	return nil
}

func (s *fakeSub) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pushes...)
}

// destroy marks the subscriber dead without closing Done, as when a window
// is gone but its close notification has not arrived.
func (s *fakeSub) destroy() { s.alive.Store(false) }

func (s *fakeSub) close() {
	s.alive.Store(false)
	s.once.Do(func() { close(s.done) })
}

func eventually(t *testing.T, timeout time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error(msg)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New(nil)
	defer r.Close()
	if r.Count() != 0 {
		t.Fatal("expected empty registry")
	}
	s := newFake("w1")
	if !r.Register(s) {
		t.Fatal("first register should add")
	}
	if r.Register(s) {
		t.Fatal("second register should be a no-op")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
}

func TestTeardownRemovesOnDone(t *testing.T) {
	r := New(nil)
	defer r.Close()
	s := newFake("w1")
	r.Register(s)
	s.close()
	eventually(t, time.Second, func() bool { return r.Count() == 0 }, "subscriber not removed after Done")
}

func TestPublishSkipsDestroyedSubscribers(t *testing.T) {
	r := New(nil)
	defer r.Close()

	live := []*fakeSub{newFake("a"), newFake("b"), newFake("c")}
	for _, s := range live {
		r.Register(s)
	}
	dead := newFake("dead")
	r.Register(dead)
	dead.destroy()

	if n := r.Publish("bits-updated", []string{"b1"}); n != 3 {
		t.Fatalf("delivered to %d, want 3", n)
	}
	for _, s := range live {
		got := s.received()
		if len(got) != 1 || got[0] != `bits-updated ["b1"]` {
			t.Errorf("%s received %v", s.id, got)
		}
	}
	if got := dead.received(); len(got) != 0 {
		t.Errorf("destroyed subscriber received %v", got)
	}
}

func TestPublishOrderIsPreserved(t *testing.T) {
	r := New(nil)
	defer r.Close()
	s := newFake("w")
	r.Register(s)
	for i := 0; i < 20; i++ {
		r.Publish("bits-updated", i)
	}
	got := s.received()
	if len(got) != 20 {
		t.Fatalf("received %d, want 20", len(got))
	}
	for i, msg := range got {
		want := "bits-updated " + strconv.Itoa(i)
		if msg != want {
			t.Fatalf("message %d = %q, want %q", i, msg, want)
		}
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	r := New(nil)
	defer r.Close()
	if n := r.Publish("collections-updated", []int{}); n != 0 {
		t.Fatalf("delivered = %d, want 0", n)
	}
}

func TestPushFailureDoesNotStopFanOut(t *testing.T) {
	r := New(nil)
	defer r.Close()
	bad := newFake("bad")
	bad.failed = true
	good := newFake("good")
	r.Register(bad)
	r.Register(good)
	if n := r.Publish("bittypes-updated", nil); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if len(good.received()) != 1 {
		t.Error("healthy subscriber missed the broadcast")
	}
}

func TestCloseStopsOperations(t *testing.T) {
	r := New(nil)
	s := newFake("w")
	r.Register(s)
	r.Close()
	r.Close()

	if r.Count() != 0 {
		t.Error("count after close should be 0")
	}
	if r.Register(newFake("late")) {
		t.Error("register after close should fail")
	}
	if n := r.Publish("bits-updated", 1); n != 0 {
		t.Error("publish after close should deliver nothing")
	}
	r.Unregister("w")
}
