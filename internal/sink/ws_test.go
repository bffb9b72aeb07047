package sink

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/billdback/scarab/internal/core"
)

type fakeController struct {
	paused, resumed, shutdown int
}

func (f *fakeController) Pause()    { f.paused++ }
func (f *fakeController) Resume()   { f.resumed++ }
func (f *fakeController) Shutdown() { f.shutdown++ }

type fakeLister struct {
	events []core.EntityCreatedEvent
}

func (f *fakeLister) LiveEntityCreatedEvents() []core.EntityCreatedEvent { return f.events }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, s *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSSinkReplaysLiveEntitiesOnConnect(t *testing.T) {
	lister := &fakeLister{events: []core.EntityCreatedEvent{
		{EventHeader: core.EventHeader{Kind: core.KindEntityCreated, Target: "a-1"}},
	}}
	ws := New(newTestLogger(), &fakeController{}, lister)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if !strings.Contains(string(data), "a-1") {
		t.Fatalf("expected replay of entity a-1, got %s", data)
	}
}

func TestWSSinkBroadcastsSend(t *testing.T) {
	ws := New(newTestLogger(), &fakeController{}, &fakeLister{})
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	time.Sleep(50 * time.Millisecond) // let the server register the client

	ev := core.EntityChangedEvent{EventHeader: core.EventHeader{Kind: core.KindEntityChanged, Target: "b-2"}}
	if err := ws.Send(ev); err != nil {
		t.Fatalf("send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if !strings.Contains(string(data), "b-2") {
		t.Fatalf("expected broadcast of b-2, got %s", data)
	}
}

func TestWSSinkHandlesControlCommands(t *testing.T) {
	ctrl := &fakeController{}
	ws := New(newTestLogger(), ctrl, &fakeLister{})
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("pause")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("bogus")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if ctrl.paused != 1 {
		t.Fatalf("expected Pause called once, got %d", ctrl.paused)
	}
}
