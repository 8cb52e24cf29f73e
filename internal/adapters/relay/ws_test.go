package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// testRelayServer speaks the websocket relay protocol on top of a Hub.
type testRelayServer struct {
	hub *Hub
}

type serverConn struct {
	ws     *websocket.Conn
	client *MemoryRelay
	send   chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *serverConn) trySend(f Frame) {
	data, _ := json.Marshal(f)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *serverConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	_ = c.client.Close()
}

func newTestRelay(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &testRelayServer{hub: NewHub()}
	r := gin.New()
	r.GET("/relay", s.handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/relay"
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (s *testRelayServer) handle(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" || token == "revoked" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := &serverConn{ws: ws, client: s.hub.Connect(token), send: make(chan []byte, 64)}
	go func() {
		for data := range conn.send {
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()
	go s.readPump(conn)
}

func (s *testRelayServer) readPump(c *serverConn) {
	defer c.close()
	ctx := context.Background()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		ack := Frame{Action: ActionAck, ID: f.ID}
		switch f.Action {
		case ActionAttach:
			err = c.client.Attach(ctx, f.Topic)
		case ActionDetach:
			err = c.client.Detach(ctx, f.Topic)
		case ActionPublish:
			err = c.client.Publish(ctx, f.Topic, f.Name, f.Data)
		case ActionSubscribe:
			topic := f.Topic
			err = c.client.Subscribe(ctx, topic, f.Name, func(name string, payload []byte) {
				c.trySend(Frame{Action: ActionMessage, Topic: topic, Name: name, Data: payload})
			})
		case ActionSubscribePresence:
			err = c.client.SubscribePresence(ctx, f.Topic, func(ev domain.PresenceEvent) {
				c.trySend(Frame{Action: ActionPresence, Topic: ev.Topic, Name: string(ev.Action), Identity: ev.Identity})
			})
		case ActionPresenceEnter:
			err = c.client.PresenceEnter(ctx, f.Topic, f.Identity)
		case ActionPresenceLeave:
			err = c.client.PresenceLeave(ctx, f.Topic)
		case ActionPresenceSnapshot:
			ack.Members, err = c.client.PresenceSnapshot(ctx, f.Topic)
		default:
			err = errors.New("unknown action")
		}
		if err != nil {
			ack.Error = err.Error()
		}
		c.trySend(ack)
	}
}

func TestWSRelay_RoundTrip(t *testing.T) {
	_, url := newTestRelay(t)
	ctx := context.Background()
	topic := domain.SignalingTopic("r1")

	alice := NewWSRelay(WSConfig{URL: url, Token: "alice-token", PingPeriod: 50 * time.Millisecond})
	bob := NewWSRelay(WSConfig{URL: url, Token: "bob-token"})
	defer alice.Close()
	defer bob.Close()

	var got collector
	for _, step := range []func() error{
		func() error { return bob.Attach(ctx, topic) },
		func() error { return bob.Subscribe(ctx, topic, domain.SignalName, got.onMessage) },
		func() error { return bob.SubscribePresence(ctx, topic, got.onPresence) },
		func() error { return bob.PresenceEnter(ctx, topic, "bob") },
		func() error { return alice.Attach(ctx, topic) },
		func() error { return alice.PresenceEnter(ctx, topic, "alice") },
	} {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}

	members, err := alice.PresenceSnapshot(ctx, topic)
	if err != nil || len(members) != 2 {
		t.Fatalf("snapshot = %v, %v", members, err)
	}

	msg := domain.SignalingMessage{SenderIdentity: "alice", TargetIdentity: "bob", Kind: domain.KindOffer, Payload: json.RawMessage(`{"sdp":"v=0"}`)}
	payload, err := msg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := alice.Publish(ctx, topic, domain.SignalName, payload); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "messages and presence", func() bool {
		ms, ps := got.snapshot()
		return len(ms) == 3 && len(ps) == 2
	})
	ms, ps := got.snapshot()
	decoded, err := domain.DecodeSignalingMessage([]byte(strings.TrimPrefix(ms[0], domain.SignalName+":")))
	if err != nil || decoded.SenderIdentity != "alice" || decoded.Kind != domain.KindOffer {
		t.Fatalf("decoded = %+v, %v", decoded, err)
	}
	if ps[1].Identity != "alice" || ps[1].Action != domain.PresenceEnter {
		t.Fatalf("presence = %+v", ps)
	}

	// Survives a few heartbeats.
	time.Sleep(150 * time.Millisecond)
	if err := alice.PresenceLeave(ctx, topic); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "leave event", func() bool {
		_, ps := got.snapshot()
		return len(ps) == 3 && ps[2].Action == domain.PresenceLeave
	})
	if err := alice.Detach(ctx, topic); err != nil {
		t.Fatal(err)
	}
}

func TestWSRelay_Credentials(t *testing.T) {
	_, url := newTestRelay(t)
	ctx := context.Background()

	missing := NewWSRelay(WSConfig{URL: url})
	defer missing.Close()
	if err := missing.Attach(ctx, "t"); !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("no token = %v", err)
	}

	revoked := NewWSRelay(WSConfig{URL: url, Token: "revoked"})
	defer revoked.Close()
	err := revoked.Attach(ctx, "t")
	if !errors.Is(err, domain.ErrMissingCredentials) || !domain.IsConfigError(err) {
		t.Fatalf("rejected token = %v", err)
	}
}

func TestWSRelay_RejectedRequest(t *testing.T) {
	_, url := newTestRelay(t)
	ctx := context.Background()
	r := NewWSRelay(WSConfig{URL: url, Token: "tok"})
	defer r.Close()

	err := r.Publish(ctx, "never-attached", domain.SignalName, []byte("{}"))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v", err)
	}
	var nop core.MessageHandler = func(string, []byte) {}
	if err := r.Subscribe(ctx, "never-attached", domain.SignalName, nop); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("subscribe = %v", err)
	}
}

func TestWSRelay_CloseFailsRequests(t *testing.T) {
	_, url := newTestRelay(t)
	ctx := context.Background()
	r := NewWSRelay(WSConfig{URL: url, Token: "tok"})
	if err := r.Attach(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	_ = r.Close()
	if err := r.Close(); err != nil {
		t.Fatalf("second close = %v", err)
	}
	if err := r.Publish(ctx, "t", domain.SignalName, []byte("{}")); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close = %v", err)
	}
}
