package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotAttached = errors.New("relay: topic not attached")
	ErrClosed      = errors.New("relay: closed")
	// ErrInjected is returned by publishes failed through FailPublish.
	ErrInjected = errors.New("relay: injected publish failure")
)

var _ core.Relay = (*MemoryRelay)(nil)

// Hub is an in-process pub/sub relay shared by MemoryRelay clients. Every
// client gets its own delivery goroutine, so handlers of one client run
// one at a time and in publish order.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*hubTopic
}

type hubTopic struct {
	attached map[*MemoryRelay]struct{}
	handlers map[*MemoryRelay]map[string][]core.MessageHandler
	presence map[*MemoryRelay][]core.PresenceHandler
	members  map[*MemoryRelay]domain.Identity
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]*hubTopic)}
}

func (h *Hub) topic(name string) *hubTopic {
	t, ok := h.topics[name]
	if !ok {
		t = &hubTopic{
			attached: make(map[*MemoryRelay]struct{}),
			handlers: make(map[*MemoryRelay]map[string][]core.MessageHandler),
			presence: make(map[*MemoryRelay][]core.PresenceHandler),
			members:  make(map[*MemoryRelay]domain.Identity),
		}
		h.topics[name] = t
	}
	return t
}

// Connect returns a new client of the hub. An empty token is accepted here
// and reported as domain.ErrMissingCredentials on first attach.
func (h *Hub) Connect(token string) *MemoryRelay {
	r := &MemoryRelay{hub: h, token: token, box: newMailbox()}
	go r.box.run()
	return r
}

// MemoryRelay is one client connection to a Hub.
type MemoryRelay struct {
	hub   *Hub
	token string
	box   *mailbox

	failPublish atomic.Int32
	published   atomic.Int64
	closed      atomic.Bool
}

// FailPublish makes the next n publishes fail with ErrInjected.
func (r *MemoryRelay) FailPublish(n int) {
	r.failPublish.Store(int32(n))
}

// Published counts successful publishes.
func (r *MemoryRelay) Published() int64 {
	return r.published.Load()
}

func (r *MemoryRelay) Attach(_ context.Context, topic string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if r.token == "" {
		return domain.ErrMissingCredentials
	}
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	r.hub.topic(topic).attached[r] = struct{}{}
	log.Debug().Str("module", "relay.memory").Str("topic", topic).Msg("attached")
	return nil
}

// Detach drops the client's subscriptions on topic and leaves presence.
// Detaching a topic that is not attached is a no-op.
func (r *MemoryRelay) Detach(_ context.Context, topic string) error {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	t, ok := r.hub.topics[topic]
	if !ok {
		return nil
	}
	if _, ok := t.attached[r]; !ok {
		return nil
	}
	r.hub.leaveLocked(topic, t, r)
	delete(t.attached, r)
	delete(t.handlers, r)
	delete(t.presence, r)
	if len(t.attached) == 0 {
		delete(r.hub.topics, topic)
	}
	log.Debug().Str("module", "relay.memory").Str("topic", topic).Msg("detached")
	return nil
}

func (r *MemoryRelay) Publish(_ context.Context, topic, name string, payload []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	for {
		n := r.failPublish.Load()
		if n <= 0 {
			break
		}
		if r.failPublish.CompareAndSwap(n, n-1) {
			return ErrInjected
		}
	}

	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	t, ok := r.hub.topics[topic]
	if !ok {
		return fmt.Errorf("publish %s: %w", topic, ErrNotAttached)
	}
	if _, ok := t.attached[r]; !ok {
		return fmt.Errorf("publish %s: %w", topic, ErrNotAttached)
	}
	data := append([]byte(nil), payload...)
	for client, byName := range t.handlers {
		for _, h := range byName[name] {
			client.box.post(func() { h(name, data) })
		}
	}
	r.published.Add(1)
	return nil
}

func (r *MemoryRelay) Subscribe(_ context.Context, topic, name string, handler core.MessageHandler) error {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	t, ok := r.hub.topics[topic]
	if !ok {
		return fmt.Errorf("subscribe %s: %w", topic, ErrNotAttached)
	}
	if _, ok := t.attached[r]; !ok {
		return fmt.Errorf("subscribe %s: %w", topic, ErrNotAttached)
	}
	if t.handlers[r] == nil {
		t.handlers[r] = make(map[string][]core.MessageHandler)
	}
	t.handlers[r][name] = append(t.handlers[r][name], handler)
	return nil
}

func (r *MemoryRelay) SubscribePresence(_ context.Context, topic string, handler core.PresenceHandler) error {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	t, ok := r.hub.topics[topic]
	if !ok {
		return fmt.Errorf("subscribe presence %s: %w", topic, ErrNotAttached)
	}
	if _, ok := t.attached[r]; !ok {
		return fmt.Errorf("subscribe presence %s: %w", topic, ErrNotAttached)
	}
	t.presence[r] = append(t.presence[r], handler)
	return nil
}

func (r *MemoryRelay) PresenceEnter(_ context.Context, topic string, identity domain.Identity) error {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	t, ok := r.hub.topics[topic]
	if !ok {
		return fmt.Errorf("presence enter %s: %w", topic, ErrNotAttached)
	}
	if _, ok := t.attached[r]; !ok {
		return fmt.Errorf("presence enter %s: %w", topic, ErrNotAttached)
	}
	if cur, ok := t.members[r]; ok && cur == identity {
		return nil
	}
	t.members[r] = identity
	r.hub.notifyLocked(t, domain.PresenceEvent{Topic: topic, Identity: identity, Action: domain.PresenceEnter})
	return nil
}

func (r *MemoryRelay) PresenceLeave(_ context.Context, topic string) error {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	if t, ok := r.hub.topics[topic]; ok {
		r.hub.leaveLocked(topic, t, r)
	}
	return nil
}

// PresenceSnapshot lists the identities present on topic, sorted.
func (r *MemoryRelay) PresenceSnapshot(_ context.Context, topic string) ([]domain.Identity, error) {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	t, ok := r.hub.topics[topic]
	if !ok {
		return nil, fmt.Errorf("presence snapshot %s: %w", topic, ErrNotAttached)
	}
	out := make([]domain.Identity, 0, len(t.members))
	for _, id := range t.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// Close detaches every topic and stops delivery to this client.
func (r *MemoryRelay) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.hub.mu.Lock()
	var topics []string
	for name, t := range r.hub.topics {
		if _, ok := t.attached[r]; ok {
			topics = append(topics, name)
		}
	}
	r.hub.mu.Unlock()
	for _, name := range topics {
		_ = r.Detach(context.Background(), name)
	}
	r.box.close()
	return nil
}

func (h *Hub) leaveLocked(topic string, t *hubTopic, r *MemoryRelay) {
	id, ok := t.members[r]
	if !ok {
		return
	}
	delete(t.members, r)
	h.notifyLocked(t, domain.PresenceEvent{Topic: topic, Identity: id, Action: domain.PresenceLeave})
}

func (h *Hub) notifyLocked(t *hubTopic, ev domain.PresenceEvent) {
	for client, handlers := range t.presence {
		for _, handler := range handlers {
			client.box.post(func() { handler(ev) })
		}
	}
}
