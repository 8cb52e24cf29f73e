package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
)

type collector struct {
	mu       sync.Mutex
	messages []string
	presence []domain.PresenceEvent
}

func (c *collector) onMessage(name string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, name+":"+string(payload))
}

func (c *collector) onPresence(ev domain.PresenceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, ev)
}

func (c *collector) snapshot() ([]string, []domain.PresenceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...), append([]domain.PresenceEvent(nil), c.presence...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustJoin(t *testing.T, r *MemoryRelay, topic string, id domain.Identity, c *collector) {
	t.Helper()
	ctx := context.Background()
	if err := r.Attach(ctx, topic); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := r.Subscribe(ctx, topic, "signal", c.onMessage); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := r.SubscribePresence(ctx, topic, c.onPresence); err != nil {
		t.Fatalf("subscribe presence: %v", err)
	}
	if id != "" {
		if err := r.PresenceEnter(ctx, topic, id); err != nil {
			t.Fatalf("enter: %v", err)
		}
	}
}

func TestMemoryRelay_OrderedFanOut(t *testing.T) {
	hub := NewHub()
	a, b := hub.Connect("a"), hub.Connect("b")
	defer a.Close()
	defer b.Close()
	var ca, cb collector
	mustJoin(t, a, "t", "", &ca)
	mustJoin(t, b, "t", "", &cb)

	ctx := context.Background()
	for i := range 50 {
		if err := a.Publish(ctx, "t", "signal", []byte(fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Publish(ctx, "t", "other", []byte("x")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fan out", func() bool {
		ma, _ := ca.snapshot()
		mb, _ := cb.snapshot()
		return len(ma) == 50 && len(mb) == 50
	})
	mb, _ := cb.snapshot()
	for i, m := range mb {
		if m != fmt.Sprintf("signal:%d", i) {
			t.Fatalf("message %d = %s", i, m)
		}
	}
}

func TestMemoryRelay_Presence(t *testing.T) {
	hub := NewHub()
	a, b := hub.Connect("a"), hub.Connect("b")
	defer a.Close()
	var ca collector
	mustJoin(t, a, "t", "alice", &ca)
	mustJoin(t, b, "t", "bob", &collector{})
	ctx := context.Background()

	members, err := a.PresenceSnapshot(ctx, "t")
	if err != nil || len(members) != 2 || members[0] != "alice" || members[1] != "bob" {
		t.Fatalf("snapshot = %v, %v", members, err)
	}

	// Closing detaches, which leaves presence.
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "bob leave event", func() bool {
		_, ps := ca.snapshot()
		return len(ps) == 3 && ps[2].Identity == "bob" && ps[2].Action == domain.PresenceLeave
	})
	members, _ = a.PresenceSnapshot(ctx, "t")
	if len(members) != 1 {
		t.Fatalf("members after leave = %v", members)
	}
	if err := b.Publish(ctx, "t", "signal", []byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close = %v", err)
	}
}

func TestMemoryRelay_Errors(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	anon := hub.Connect("")
	defer anon.Close()
	if err := anon.Attach(ctx, "t"); !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("attach without token = %v", err)
	}

	r := hub.Connect("tok")
	defer r.Close()
	if err := r.Publish(ctx, "t", "signal", []byte("x")); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("publish unattached = %v", err)
	}
	if err := r.Detach(ctx, "t"); err != nil {
		t.Fatalf("detach unattached = %v", err)
	}
	if err := r.PresenceLeave(ctx, "t"); err != nil {
		t.Fatalf("leave unattached = %v", err)
	}

	mustJoin(t, r, "t", "", &collector{})
	r.FailPublish(2)
	for range 2 {
		if err := r.Publish(ctx, "t", "signal", []byte("x")); !errors.Is(err, ErrInjected) {
			t.Fatalf("injected = %v", err)
		}
	}
	if err := r.Publish(ctx, "t", "signal", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if r.Published() != 1 {
		t.Fatalf("published = %d", r.Published())
	}
}

func TestMemoryRelay_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	hub := NewHub()
	r := hub.Connect("tok")
	defer r.Close()
	ctx := context.Background()
	if err := r.Attach(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	var c collector
	calls := 0
	err := r.Subscribe(ctx, "t", "signal", func(name string, payload []byte) {
		calls++
		if calls == 1 {
			panic("first message kills the handler")
		}
		c.onMessage(name, payload)
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Publish(ctx, "t", "signal", []byte("1"))
	_ = r.Publish(ctx, "t", "signal", []byte("2"))
	waitFor(t, "second message", func() bool {
		m, _ := c.snapshot()
		return len(m) == 1 && m[0] == "signal:2"
	})
}
