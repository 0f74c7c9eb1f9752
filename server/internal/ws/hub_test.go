package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/roomrelay/server/internal/metrics"
	"github.com/obsidianstack/roomrelay/server/internal/rooms"
	wsHub "github.com/obsidianstack/roomrelay/server/internal/ws"
)

// --- helpers ----------------------------------------------------------------

type fixture struct {
	url     string
	hub     *wsHub.Hub
	rooms   *rooms.Registry
	metrics *metrics.Metrics
	cancel  func()
}

// startHub starts a test HTTP server with the hub as its handler and the
// hub's Run loop on a cancellable context.
func startHub(t *testing.T) *fixture {
	t.Helper()
	return startHubWith(t, rooms.Options{})
}

// startHubWith is startHub with a configured room registry.
func startHubWith(t *testing.T, opts rooms.Options) *fixture {
	t.Helper()

	reg := rooms.New(opts)
	m := metrics.New(reg.Len, func() int { return 0 })
	hub := wsHub.New(reg, m, wsHub.Options{})
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &fixture{
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		hub:     hub,
		rooms:   reg,
		metrics: m,
		cancel:  cancel,
	}
}

// join dials the hub into room and waits until the server has subscribed it.
func (f *fixture) join(t *testing.T, room string) *websocket.Conn {
	t.Helper()
	before := f.subscribers(room)
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?room="+room, nil)
	if err != nil {
		t.Fatalf("dial room %s: %v", room, err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, func() bool { return f.subscribers(room) == before+1 })
	return conn
}

func (f *fixture) subscribers(room string) int {
	for _, info := range f.rooms.List() {
		if info.Name == room {
			return info.Subscribers
		}
	}
	return 0
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return string(msg)
}

// expectSilence asserts nothing arrives on conn for a short window.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Errorf("unexpected message: %s", msg)
	}
}

const hello = `{"username":"alice","message":"hello"}`

// --- tests ------------------------------------------------------------------

func TestHub_RelaysToEveryoneInRoom(t *testing.T) {
	f := startHub(t)
	alice := f.join(t, "lobby")
	bob := f.join(t, "lobby")

	send(t, alice, hello)

	if got := readMessage(t, bob); got != hello {
		t.Errorf("bob: got %s, want %s", got, hello)
	}
	if got := readMessage(t, alice); got != hello {
		t.Errorf("alice echo: got %s, want %s", got, hello)
	}
}

func TestHub_RelaysVerbatim(t *testing.T) {
	f := startHub(t)
	alice := f.join(t, "lobby")
	bob := f.join(t, "lobby")

	raw := `{ "message" : "hi there", "username":"alice", "extra": 1 }`
	send(t, alice, raw)

	if got := readMessage(t, bob); got != raw {
		t.Errorf("got %s, want byte-identical %s", got, raw)
	}
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	f := startHub(t)
	alice := f.join(t, "a")
	bob := f.join(t, "b")

	send(t, alice, hello)

	readMessage(t, alice)
	expectSilence(t, bob)
}

func TestHub_PreservesOrder(t *testing.T) {
	f := startHub(t)
	alice := f.join(t, "lobby")
	bob := f.join(t, "lobby")

	msgs := []string{
		`{"username":"alice","message":"1"}`,
		`{"username":"alice","message":"2"}`,
		`{"username":"alice","message":"3"}`,
	}
	for _, m := range msgs {
		send(t, alice, m)
	}
	for i, want := range msgs {
		if got := readMessage(t, bob); got != want {
			t.Errorf("message %d: got %s, want %s", i, got, want)
		}
	}
}

func TestHub_DropsBadMessagesAndKeepsGoing(t *testing.T) {
	f := startHub(t)
	alice := f.join(t, "lobby")
	bob := f.join(t, "lobby")

	send(t, alice, `not json at all`)
	send(t, alice, `{"username":"alice","message":"   "}`)
	send(t, alice, `{"username":"","message":"hi"}`)
	send(t, alice, "{\"username\":\"alice\",\"message\":\"hi\xff\"}")
	send(t, alice, hello)

	if got := readMessage(t, bob); got != hello {
		t.Errorf("got %s, want %s", got, hello)
	}

	// Each of alice and bob drops all four bad messages.
	waitFor(t, func() bool {
		v, err := f.metrics.Values()
		if err != nil {
			t.Fatalf("Values: %v", err)
		}
		return v["messages_dropped_total"] == 8 && v["messages_published_total"] == 5
	})
}

func TestHub_LaggingClientIsDisconnected(t *testing.T) {
	f := startHubWith(t, rooms.Options{Buffer: 1})
	conn := f.join(t, "lobby")

	room, created := f.rooms.Resolve("lobby")
	if created {
		t.Fatal("Resolve created a second room")
	}
	// The client reads nothing while the burst is published.
	for i := 0; i < 10000; i++ {
		room.Publish(hello)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage: got %v, want normal close", err)
	}

	waitFor(t, func() bool { return f.hub.Count() == 0 })
	if n := room.Subscribers(); n != 0 {
		t.Errorf("Subscribers: got %d, want 0", n)
	}
	dropped, err := f.metrics.ByLabel("messages_dropped_total", "reason")
	if err != nil {
		t.Fatalf("ByLabel: %v", err)
	}
	if dropped[metrics.ReasonLagged] == 0 {
		t.Errorf("lagged drops: got 0, want > 0 (%v)", dropped)
	}
}

func TestHub_IgnoresBinaryFrames(t *testing.T) {
	f := startHub(t)
	alice := f.join(t, "lobby")
	bob := f.join(t, "lobby")

	if err := alice.WriteMessage(websocket.BinaryMessage, []byte(hello)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	expectSilence(t, bob)
}

func TestHub_CreatesRoomOnJoin(t *testing.T) {
	f := startHub(t)
	if f.rooms.Exists("fresh") {
		t.Fatal("room exists before join")
	}
	f.join(t, "fresh")
	if !f.rooms.Exists("fresh") {
		t.Error("room not created on join")
	}
}

func TestHub_Count(t *testing.T) {
	f := startHub(t)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = f.join(t, "lobby")
	}
	if n := f.hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	conns[0].Close()
	waitFor(t, func() bool { return f.hub.Count() == 2 })
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	f := startHub(t)
	conn := f.join(t, "lobby")

	f.cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage after cancel: got %v, want going-away close", err)
	}
	waitFor(t, func() bool { return f.hub.Count() == 0 })
}

func TestHub_MissingRoom_Returns400(t *testing.T) {
	f := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err == nil {
		t.Fatal("dial without room: expected error")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %v, want 400", resp)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	reg := rooms.New(rooms.Options{})
	m := metrics.New(reg.Len, func() int { return 0 })
	hub := wsHub.New(reg, m, wsHub.Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers.
	resp, err := http.Get(srv.URL + "?room=lobby")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}

	v, _ := m.Values()
	if v["upgrade_failures_total"] != 1 {
		t.Errorf("upgrade_failures_total: got %v, want 1", v["upgrade_failures_total"])
	}
}

func TestHub_OversizedFrameClosesConnection(t *testing.T) {
	reg := rooms.New(rooms.Options{})
	m := metrics.New(reg.Len, func() int { return 0 })
	hub := wsHub.New(reg, m, wsHub.Options{MaxMessageSize: 64})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?room=lobby", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send(t, conn, `{"username":"alice","message":"`+strings.Repeat("x", 128)+`"}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
	waitFor(t, func() bool { return hub.Count() == 0 })
}
