package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("relay: send queue full")
	// ErrRejected wraps the error text of a request the relay refused.
	ErrRejected = errors.New("relay: request rejected")
)

const (
	writeWait      = 5 * time.Second
	sendQueueSize  = 64
	defaultPing    = 20 * time.Second
	defaultReadLim = 1 << 20
)

type WSConfig struct {
	URL        string
	Token      string
	PingPeriod time.Duration
	ReadLimit  int64
	Dialer     *websocket.Dialer
}

var _ core.Relay = (*WSRelay)(nil)

// WSRelay is a websocket client of a pub/sub relay. It dials on first use.
// Handlers run on a single goroutine in arrival order.
type WSRelay struct {
	cfg WSConfig

	connMu sync.Mutex
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed bool

	pendMu  sync.Mutex
	pending map[string]chan Frame

	subMu    sync.RWMutex
	attached map[string]bool
	handlers map[string]map[string][]core.MessageHandler
	presence map[string][]core.PresenceHandler

	box *mailbox
}

func NewWSRelay(cfg WSConfig) *WSRelay {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPing
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLim
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	box := newMailbox()
	go box.run()
	return &WSRelay{
		cfg:      cfg,
		pending:  make(map[string]chan Frame),
		attached: make(map[string]bool),
		handlers: make(map[string]map[string][]core.MessageHandler),
		presence: make(map[string][]core.PresenceHandler),
		box:      box,
	}
}

// Connect dials the relay unless already connected.
func (r *WSRelay) Connect(ctx context.Context) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.conn != nil {
		return nil
	}
	if r.cfg.Token == "" {
		return domain.ErrMissingCredentials
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.cfg.Token)
	conn, resp, err := r.cfg.Dialer.DialContext(ctx, r.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("dial %s: %w (status %d)", r.cfg.URL, domain.ErrMissingCredentials, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", r.cfg.URL, err)
	}
	conn.SetReadLimit(r.cfg.ReadLimit)

	r.conn = conn
	r.send = make(chan []byte, sendQueueSize)
	r.done = make(chan struct{})
	go r.writePump(conn, r.send, r.done)
	go r.readPump(conn, r.done)
	log.Info().Str("module", "relay.ws").Str("url", r.cfg.URL).Msg("connected")
	return nil
}

func (r *WSRelay) Attach(ctx context.Context, topic string) error {
	if _, err := r.request(ctx, Frame{Action: ActionAttach, Topic: topic}); err != nil {
		return err
	}
	r.subMu.Lock()
	r.attached[topic] = true
	r.subMu.Unlock()
	return nil
}

// Detach drops the local handlers of topic even when the request fails.
func (r *WSRelay) Detach(ctx context.Context, topic string) error {
	r.subMu.Lock()
	was := r.attached[topic]
	delete(r.attached, topic)
	delete(r.handlers, topic)
	delete(r.presence, topic)
	r.subMu.Unlock()
	if !was {
		return nil
	}
	_, err := r.request(ctx, Frame{Action: ActionDetach, Topic: topic})
	return err
}

func (r *WSRelay) Publish(ctx context.Context, topic, name string, payload []byte) error {
	_, err := r.request(ctx, Frame{Action: ActionPublish, Topic: topic, Name: name, Data: payload})
	return err
}

func (r *WSRelay) Subscribe(ctx context.Context, topic, name string, handler core.MessageHandler) error {
	r.subMu.Lock()
	if !r.attached[topic] {
		r.subMu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, ErrNotAttached)
	}
	if r.handlers[topic] == nil {
		r.handlers[topic] = make(map[string][]core.MessageHandler)
	}
	first := len(r.handlers[topic][name]) == 0
	r.handlers[topic][name] = append(r.handlers[topic][name], handler)
	r.subMu.Unlock()
	if !first {
		return nil
	}
	_, err := r.request(ctx, Frame{Action: ActionSubscribe, Topic: topic, Name: name})
	return err
}

func (r *WSRelay) SubscribePresence(ctx context.Context, topic string, handler core.PresenceHandler) error {
	r.subMu.Lock()
	if !r.attached[topic] {
		r.subMu.Unlock()
		return fmt.Errorf("subscribe presence %s: %w", topic, ErrNotAttached)
	}
	first := len(r.presence[topic]) == 0
	r.presence[topic] = append(r.presence[topic], handler)
	r.subMu.Unlock()
	if !first {
		return nil
	}
	_, err := r.request(ctx, Frame{Action: ActionSubscribePresence, Topic: topic})
	return err
}

func (r *WSRelay) PresenceEnter(ctx context.Context, topic string, identity domain.Identity) error {
	_, err := r.request(ctx, Frame{Action: ActionPresenceEnter, Topic: topic, Identity: identity})
	return err
}

func (r *WSRelay) PresenceLeave(ctx context.Context, topic string) error {
	_, err := r.request(ctx, Frame{Action: ActionPresenceLeave, Topic: topic})
	return err
}

func (r *WSRelay) PresenceSnapshot(ctx context.Context, topic string) ([]domain.Identity, error) {
	ack, err := r.request(ctx, Frame{Action: ActionPresenceSnapshot, Topic: topic})
	if err != nil {
		return nil, err
	}
	return ack.Members, nil
}

// Close drops the connection and fails every request in flight.
func (r *WSRelay) Close() error {
	r.connMu.Lock()
	if r.closed {
		r.connMu.Unlock()
		return nil
	}
	r.closed = true
	conn, done := r.conn, r.done
	r.connMu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = conn.Close()
		<-done
	}
	r.box.close()
	return err
}

func (r *WSRelay) request(ctx context.Context, f Frame) (Frame, error) {
	if err := r.Connect(ctx); err != nil {
		return Frame{}, err
	}
	r.connMu.Lock()
	send, done := r.send, r.done
	r.connMu.Unlock()

	f.ID = uuid.NewString()
	data, err := json.Marshal(f)
	if err != nil {
		return Frame{}, err
	}
	ch := make(chan Frame, 1)
	r.pendMu.Lock()
	r.pending[f.ID] = ch
	r.pendMu.Unlock()
	defer func() {
		r.pendMu.Lock()
		delete(r.pending, f.ID)
		r.pendMu.Unlock()
	}()

	select {
	case send <- data:
	case <-done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	default:
		return Frame{}, ErrBackpressure
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, fmt.Errorf("%s %s: %w: %s", f.Action, f.Topic, ErrRejected, ack.Error)
		}
		return ack, nil
	case <-done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (r *WSRelay) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case data := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "relay.ws").Msg("writePump set deadline")
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay.ws").Msg("writePump write error")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "relay.ws").Msg("ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func (r *WSRelay) readPump(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		log.Info().Str("module", "relay.ws").Msg("readPump closing")
		close(done)
		_ = conn.Close()
	}()

	// A peer that misses two pings is gone.
	deadline := 2*r.cfg.PingPeriod + writeWait
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "relay.ws").Msg("readPump read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Str("module", "relay.ws").Msg("bad frame")
			continue
		}
		r.handleFrame(f)
	}
}

func (r *WSRelay) handleFrame(f Frame) {
	switch f.Action {
	case ActionAck:
		r.pendMu.Lock()
		ch, ok := r.pending[f.ID]
		r.pendMu.Unlock()
		if ok {
			ch <- f
		}
	case ActionMessage:
		r.subMu.RLock()
		hs := append([]core.MessageHandler(nil), r.handlers[f.Topic][f.Name]...)
		r.subMu.RUnlock()
		for _, h := range hs {
			r.box.post(func() { h(f.Name, f.Data) })
		}
	case ActionPresence:
		r.subMu.RLock()
		hs := append([]core.PresenceHandler(nil), r.presence[f.Topic]...)
		r.subMu.RUnlock()
		ev := domain.PresenceEvent{Topic: f.Topic, Identity: f.Identity, Action: domain.PresenceAction(f.Name)}
		for _, h := range hs {
			r.box.post(func() { h(ev) })
		}
	default:
		log.Warn().Str("module", "relay.ws").Str("action", f.Action).Msg("unknown frame")
	}
}
