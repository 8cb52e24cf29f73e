package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/adapters/relay"
	"github.com/dkeye/meshcall/internal/app/orch"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gorilla/websocket"
)

type testAPI struct {
	srv    *httptest.Server
	client *nethttp.Client
	orch   *orch.Orchestrator
	events *EventStream
}

func newTestAPI(t *testing.T, token string) *testAPI {
	t.Helper()
	hub := relay.NewHub()
	rl := hub.Connect(token)
	events := NewEventStream()
	o := orch.New(orch.Options{Relay: rl, Observer: events})
	cfg := &config.Config{Mode: "test", Secret: "test-secret", Identity: "alice"}
	srv := httptest.NewServer(SetupRouter(cfg, o, events))
	jar, _ := cookiejar.New(nil)
	t.Cleanup(func() {
		srv.Close()
		_ = o.Close(context.Background())
		_ = rl.Close()
	})
	return &testAPI{srv: srv, client: &nethttp.Client{Jar: jar}, orch: o, events: events}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := nethttp.NewRequest(method, a.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAPI_JoinAndLeave(t *testing.T) {
	a := newTestAPI(t, "tok")

	status, body := a.do(t, "POST", "/api/rooms/r1/join", "")
	if status != nethttp.StatusOK || body["local"] != "alice" || body["room"] != "r1" {
		t.Fatalf("join = %d %v", status, body)
	}
	if status, _ := a.do(t, "POST", "/api/rooms/r1/join", `{"identity":"alice"}`); status != nethttp.StatusConflict {
		t.Fatalf("second join = %d", status)
	}
	status, body = a.do(t, "POST", "/api/rooms/r2/join", `{"identity":"bob"}`)
	if status != nethttp.StatusOK || body["local"] != "bob" {
		t.Fatalf("join r2 = %d %v", status, body)
	}
	if rooms := a.orch.Rooms(); len(rooms) != 2 {
		t.Fatalf("rooms = %v", rooms)
	}

	// The cookie session remembers the last joined room.
	if status, _ := a.do(t, "DELETE", "/api/room", ""); status != nethttp.StatusOK {
		t.Fatalf("leave current = %d", status)
	}
	if status, _ := a.do(t, "DELETE", "/api/room", ""); status != nethttp.StatusNotFound {
		t.Fatalf("leave current again = %d", status)
	}
	if status, _ := a.do(t, "DELETE", "/api/rooms/r1", ""); status != nethttp.StatusOK {
		t.Fatalf("leave r1 = %d", status)
	}
	if status, _ := a.do(t, "DELETE", "/api/rooms/r1", ""); status != nethttp.StatusNotFound {
		t.Fatalf("leave r1 again = %d", status)
	}
	if rooms := a.orch.Rooms(); len(rooms) != 0 {
		t.Fatalf("rooms after leave = %v", rooms)
	}
}

func TestAPI_ConfigurationErrorsAreBadRequests(t *testing.T) {
	a := newTestAPI(t, "")
	status, body := a.do(t, "POST", "/api/rooms/r1/join", "")
	if status != nethttp.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, domain.ErrMissingCredentials.Error()) {
		t.Fatalf("body = %v", body)
	}
	long := strings.Repeat("x", domain.MaxIdentityLen+1)
	if status, _ := a.do(t, "POST", "/api/rooms/r1/join", `{"identity":"`+long+`"}`); status != nethttp.StatusBadRequest {
		t.Fatalf("long identity = %d", status)
	}
	if status, _ := a.do(t, "POST", "/api/rooms/r1/join", `{"identity":`); status != nethttp.StatusBadRequest {
		t.Fatalf("bad json = %d", status)
	}
}

func TestAPI_JoinRateLimited(t *testing.T) {
	a := newTestAPI(t, "")
	var last int
	for range 6 {
		last, _ = a.do(t, "POST", "/api/rooms/r1/join", "")
	}
	if last != nethttp.StatusTooManyRequests {
		t.Fatalf("sixth attempt = %d", last)
	}
}

func TestAPI_ToggleAudioAndList(t *testing.T) {
	a := newTestAPI(t, "tok")
	if status, _ := a.do(t, "POST", "/api/audio", `{"mute":true}`); status != nethttp.StatusOK {
		t.Fatalf("mute = %d", status)
	}
	if !a.orch.AudioMuted() {
		t.Fatal("not muted")
	}
	if status, _ := a.do(t, "POST", "/api/audio", `{}`); status != nethttp.StatusBadRequest {
		t.Fatalf("empty body = %d", status)
	}

	a.do(t, "POST", "/api/rooms/r1/join", "")
	resp, err := a.client.Get(a.srv.URL + "/api/rooms")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rooms []orch.RoomStatus
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].Room != "r1" || rooms[0].Local != "alice" {
		t.Fatalf("rooms = %+v", rooms)
	}
}

func TestAPI_EventStream(t *testing.T) {
	a := newTestAPI(t, "tok")
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/api/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for a.events.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	a.events.OnNegotiationFailed("r1", "bob", errors.New("offer failed"))
	a.events.OnSessionClosed("r1", "bob")

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventNegotiationFailed || ev.Peer != "bob" || ev.Room != "r1" || ev.Reason != "offer failed" {
		t.Fatalf("event = %+v", ev)
	}
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventSessionClosed {
		t.Fatalf("event = %+v", ev)
	}

	_ = ws.Close()
	deadline = time.Now().Add(2 * time.Second)
	for a.events.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if a.events.Subscribers() != 0 {
		t.Fatal("closed subscriber still registered")
	}
}

func TestEventConn_Backpressure(t *testing.T) {
	c := &eventConn{send: make(chan []byte, 2)}
	for range 2 {
		if err := c.TrySend([]byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.TrySend([]byte("x")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("err = %v", err)
	}
}

func TestJoinRateLimiter_Window(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewJoinRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("c") || !rl.Allow("c") {
		t.Fatal("first two attempts must pass")
	}
	if rl.Allow("c") {
		t.Fatal("third attempt inside the window passed")
	}
	if !rl.Allow("other") {
		t.Fatal("limits must be per client")
	}
	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("c") {
		t.Fatal("window did not slide")
	}
}
