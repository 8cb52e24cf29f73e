package orch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/adapters/relay"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// fakeEngine hands out in-memory peers whose descriptors name both ends.
type fakeEngine struct {
	local domain.Identity

	mu          sync.Mutex
	peers       map[domain.Identity][]*fakePeer
	failNewPeer map[domain.Identity]error
	failOffer   map[domain.Identity]error
	panicClose  map[domain.Identity]bool
}

func newFakeEngine(local domain.Identity) *fakeEngine {
	return &fakeEngine{
		local:       local,
		peers:       make(map[domain.Identity][]*fakePeer),
		failNewPeer: make(map[domain.Identity]error),
		failOffer:   make(map[domain.Identity]error),
		panicClose:  make(map[domain.Identity]bool),
	}
}

func (e *fakeEngine) NewPeer(_ context.Context, peer domain.Identity, local []core.Resource) (core.PeerMedia, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failNewPeer[peer]; err != nil {
		return nil, err
	}
	p := &fakePeer{
		engine:     e,
		peer:       peer,
		local:      local,
		failOffer:  e.failOffer[peer],
		panicClose: e.panicClose[peer],
	}
	e.peers[peer] = append(e.peers[peer], p)
	return p, nil
}

func (e *fakeEngine) created(peer domain.Identity) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers[peer])
}

func (e *fakeEngine) last(peer domain.Identity) *fakePeer {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps := e.peers[peer]
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

type fakePeer struct {
	engine     *fakeEngine
	peer       domain.Identity
	local      []core.Resource
	failOffer  error
	panicClose bool

	mu         sync.Mutex
	remote     []domain.Descriptor
	candidates []domain.Candidate
	onCand     func(domain.Candidate)
	onState    func(core.MediaState)
	closed     bool
}

func (p *fakePeer) descriptor(kind domain.SignalKind) domain.Descriptor {
	blob, _ := json.Marshal(map[string]string{
		"type": string(kind),
		"sdp":  fmt.Sprintf("%s->%s", p.engine.local, p.peer),
	})
	return domain.Descriptor{Kind: kind, Blob: blob}
}

func (p *fakePeer) CreateOffer(context.Context) (domain.Descriptor, error) {
	if p.failOffer != nil {
		return domain.Descriptor{}, p.failOffer
	}
	return p.descriptor(domain.KindOffer), nil
}

func (p *fakePeer) CreateAnswer(context.Context) (domain.Descriptor, error) {
	return p.descriptor(domain.KindAnswer), nil
}

func (p *fakePeer) ApplyRemote(d domain.Descriptor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = append(p.remote, d)
	return nil
}

func (p *fakePeer) AddCandidate(c domain.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.remote) == 0 {
		return errors.New("candidate before remote description")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnLocalCandidate(fn func(domain.Candidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCand = fn
}

func (p *fakePeer) OnStateChange(fn func(core.MediaState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if p.panicClose {
		panic("close handler blew up")
	}
	return nil
}

func (p *fakePeer) emitCandidate(blob string) {
	p.mu.Lock()
	fn := p.onCand
	p.mu.Unlock()
	fn(domain.Candidate{Peer: p.peer, Blob: json.RawMessage(blob)})
}

func (p *fakePeer) emitState(s core.MediaState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(s)
}

func (p *fakePeer) snapshot() (remote []domain.Descriptor, candidates []domain.Candidate, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Descriptor(nil), p.remote...), append([]domain.Candidate(nil), p.candidates...), p.closed
}

type event struct {
	kind   string
	room   domain.RoomID
	peer   domain.Identity
	reason error
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnSessionEstablished(room domain.RoomID, peer domain.Identity) {
	r.add(event{kind: "established", room: room, peer: peer})
}

func (r *recorder) OnSessionClosed(room domain.RoomID, peer domain.Identity) {
	r.add(event{kind: "closed", room: room, peer: peer})
}

func (r *recorder) OnNegotiationFailed(room domain.RoomID, peer domain.Identity, reason error) {
	r.add(event{kind: "failed", room: room, peer: peer, reason: reason})
}

func (r *recorder) count(kind string, peer domain.Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.kind == kind && e.peer == peer {
			n++
		}
	}
	return n
}

func (r *recorder) find(kind string, peer domain.Identity) (event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.kind == kind && e.peer == peer {
			return e, true
		}
	}
	return event{}, false
}

// spy subscribes a bare relay client to a room topic and collects envelopes.
type spy struct {
	mu   sync.Mutex
	msgs []domain.SignalingMessage
}

func newSpy(t *testing.T, hub *relay.Hub, room domain.RoomID) *spy {
	t.Helper()
	s := &spy{}
	client := hub.Connect("spy-token")
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	topic := domain.SignalingTopic(room)
	if err := client.Attach(ctx, topic); err != nil {
		t.Fatalf("spy attach: %v", err)
	}
	err := client.Subscribe(ctx, topic, domain.SignalName, func(_ string, payload []byte) {
		msg, err := domain.DecodeSignalingMessage(payload)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.msgs = append(s.msgs, msg)
		s.mu.Unlock()
	})
	if err != nil {
		t.Fatalf("spy subscribe: %v", err)
	}
	return s
}

func (s *spy) matching(kind domain.SignalKind, from, to domain.Identity) []domain.SignalingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SignalingMessage
	for _, m := range s.msgs {
		if m.Kind == kind && m.SenderIdentity == from && m.TargetIdentity == to {
			out = append(out, m)
		}
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
