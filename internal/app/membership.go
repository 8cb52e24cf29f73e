package app

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcall/internal/app/media"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Membership is the local participant's presence in one room: its
// sessions, keyed by remote identity, and the local media captured for it.
type Membership struct {
	Room  domain.RoomID
	Local domain.Identity
	Topic string
	Media *media.Manager

	mu       sync.RWMutex
	sessions map[domain.Identity]*core.Session
	closed   atomic.Bool

	// ctx lives until Close; relay callbacks and media events run under it.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMembership(room domain.RoomID, local domain.Identity, m *media.Manager) *Membership {
	if m == nil {
		m = media.NewManager()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Membership{
		Room:     room,
		Local:    local,
		Topic:    domain.SignalingTopic(room),
		Media:    m,
		sessions: make(map[domain.Identity]*core.Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context is canceled when the membership is closed.
func (m *Membership) Context() context.Context { return m.ctx }

// GetOrCreate returns the session for peer, building it with create when
// absent. At most one session exists per peer. A closed membership returns nil.
func (m *Membership) GetOrCreate(peer domain.Identity, create func() *core.Session) (*core.Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[peer]
	m.mu.RUnlock()
	if ok {
		return s, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return nil, false
	}
	if s, ok = m.sessions[peer]; ok {
		return s, false
	}
	s = create()
	m.sessions[peer] = s
	log.Debug().Str("module", "app.membership").Str("room", string(m.Room)).Str("peer", string(peer)).Msg("session added")
	return s, true
}

// Remove deletes and returns the session for peer.
func (m *Membership) Remove(peer domain.Identity) (*core.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[peer]
	if ok {
		delete(m.sessions, peer)
		log.Debug().Str("module", "app.membership").Str("room", string(m.Room)).Str("peer", string(peer)).Msg("session removed")
	}
	return s, ok
}

// RemoveSession deletes s only if it is still the session registered for
// its peer, so a stale failure never evicts a newer session.
func (m *Membership) RemoveSession(s *core.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.Peer()]; ok && cur == s {
		delete(m.sessions, s.Peer())
		return true
	}
	return false
}

// Drain empties the session map and returns what it held.
func (m *Membership) Drain() []*core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.sessions = make(map[domain.Identity]*core.Session)
	return out
}

func (m *Membership) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshot lists the sessions ordered by peer identity.
func (m *Membership) Snapshot() []core.SessionInfo {
	m.mu.RLock()
	sessions := make([]*core.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]core.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer.Less(out[j].Peer) })
	return out
}

// Close marks the membership as left. Only the first call returns true.
// Taking the write lock orders it against in-flight GetOrCreate calls.
func (m *Membership) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed.CompareAndSwap(false, true) {
		return false
	}
	m.cancel()
	return true
}

func (m *Membership) Closed() bool {
	return m.closed.Load()
}
