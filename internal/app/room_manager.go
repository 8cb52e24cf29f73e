package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/meshcall/internal/domain"
)

// RoomManager holds the rooms the local participant is currently in.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Membership
	locks map[domain.RoomID]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[domain.RoomID]*Membership),
		locks: make(map[domain.RoomID]*roomLock),
	}
}

// Lock serializes relay side effects on room across successive
// memberships of it. Call the returned func to unlock.
func (f *RoomManager) Lock(room domain.RoomID) func() {
	f.mu.Lock()
	l, ok := f.locks[room]
	if !ok {
		l = &roomLock{}
		f.locks[room] = l
	}
	l.refs++
	f.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, room)
		}
		f.mu.Unlock()
	}
}

// Create registers m. A room that is already joined is rejected.
func (f *RoomManager) Create(m *Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[m.Room]; ok {
		return fmt.Errorf("room %s: %w", m.Room, domain.ErrAlreadyJoined)
	}
	f.rooms[m.Room] = m
	return nil
}

func (f *RoomManager) Get(room domain.RoomID) (*Membership, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.rooms[room]
	return m, ok
}

// RemoveIf removes room only while it still maps to m.
func (f *RoomManager) RemoveIf(m *Membership) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rooms[m.Room]; ok && cur == m {
		delete(f.rooms, m.Room)
		return true
	}
	return false
}

func (f *RoomManager) All() []*Membership {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Membership, 0, len(f.rooms))
	for _, m := range f.rooms {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}
