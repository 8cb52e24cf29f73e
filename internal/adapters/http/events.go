package http

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

const (
	EventSessionEstablished = "session_established"
	EventSessionClosed      = "session_closed"
	EventNegotiationFailed  = "negotiation_failed"
)

// Event is what the call UI receives on /api/events.
type Event struct {
	Type   string          `json:"type"`
	Room   domain.RoomID   `json:"room"`
	Peer   domain.Identity `json:"peer"`
	Reason string          `json:"reason,omitempty"`
}

var _ core.Observer = (*EventStream)(nil)

// EventStream fans negotiation events out to websocket subscribers. A
// subscriber that cannot keep up is disconnected.
type EventStream struct {
	mu   sync.RWMutex
	subs map[*eventConn]struct{}
}

func NewEventStream() *EventStream {
	return &EventStream{subs: make(map[*eventConn]struct{})}
}

type eventConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *eventConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *eventConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

func (s *EventStream) OnSessionEstablished(room domain.RoomID, peer domain.Identity) {
	s.publish(Event{Type: EventSessionEstablished, Room: room, Peer: peer})
}

func (s *EventStream) OnSessionClosed(room domain.RoomID, peer domain.Identity) {
	s.publish(Event{Type: EventSessionClosed, Room: room, Peer: peer})
}

func (s *EventStream) OnNegotiationFailed(room domain.RoomID, peer domain.Identity, reason error) {
	ev := Event{Type: EventNegotiationFailed, Room: room, Peer: peer}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	s.publish(ev)
}

func (s *EventStream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *EventStream) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("marshal event")
		return
	}
	s.mu.RLock()
	var slow []*eventConn
	for c := range s.subs {
		if err := c.TrySend(data); err != nil {
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()
	for _, c := range slow {
		log.Warn().Str("module", "adapters.http").Str("event", ev.Type).Msg("event subscriber too slow, dropped")
		s.remove(c)
	}
}

// Serve registers conn and runs its pumps until either side closes.
func (s *EventStream) Serve(conn *websocket.Conn) {
	c := &eventConn{conn: conn, send: make(chan []byte, 32)}
	s.mu.Lock()
	s.subs[c] = struct{}{}
	s.mu.Unlock()
	log.Info().Str("module", "adapters.http").Msg("event subscriber connected")

	go s.writePump(c)
	s.readPump(c)
}

func (s *EventStream) remove(c *eventConn) {
	s.mu.Lock()
	delete(s.subs, c)
	s.mu.Unlock()
	c.Close()
}

func (s *EventStream) writePump(c *eventConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("writePump set deadline")
			s.remove(c)
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("writePump write error")
			s.remove(c)
			return
		}
	}
}

// readPump only watches for the client going away.
func (s *EventStream) readPump(c *eventConn) {
	defer func() {
		log.Info().Str("module", "adapters.http").Msg("event subscriber closing")
		s.remove(c)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
