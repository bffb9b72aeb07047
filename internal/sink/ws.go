// Package sink provides a reference implementation of the driver's
// EventSink interface over a WebSocket connection: every routed event
// is broadcast as a JSON frame to each connected client, and each
// client may send back plain-text control strings (start, pause,
// resume, shutdown) that the sink forwards to a Controller.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/billdback/scarab/internal/core"
)

// Controller is the subset of the driver a WSSink drives in response to
// control messages from a client.
type Controller interface {
	Pause()
	Resume()
	Shutdown()
}

// LiveLister supplies the on-connect replay: one EntityCreatedEvent per
// currently-live entity, so a client joining mid-run sees the current
// world before the live event stream begins.
type LiveLister interface {
	LiveEntityCreatedEvents() []core.EntityCreatedEvent
}

// WSSink serves a WebSocket endpoint that broadcasts every event routed
// by the driver and accepts plain-text control commands back.
type WSSink struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	clients    sync.Map // *websocket.Conn -> struct{}
	controller Controller
	lister     LiveLister
}

// New returns a WSSink. log must not be nil. controller and lister may
// be nil during construction and set later via Bind, e.g. once the
// driver that owns them has finished constructing itself.
func New(log *slog.Logger, controller Controller, lister LiveLister) *WSSink {
	return &WSSink{
		log:        log,
		controller: controller,
		lister:     lister,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Bind attaches the controller and lister a sink constructed before its
// driver now needs.
func (s *WSSink) Bind(controller Controller, lister LiveLister) {
	s.controller = controller
	s.lister = lister
}

// Handler returns the http.HandlerFunc that upgrades connections and
// runs each client's read loop.
func (s *WSSink) Handler() http.HandlerFunc {
	return s.handleClient
}

func (s *WSSink) handleClient(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}
	s.clients.Store(conn, struct{}{})
	s.log.Info("sink client connected", "remote", r.RemoteAddr)

	if s.lister != nil {
		for _, ev := range s.lister.LiveEntityCreatedEvents() {
			if err := s.writeEvent(conn, ev); err != nil {
				s.log.Error("sink fault during connect replay", "err", err)
			}
		}
	}

	s.readLoop(conn)
}

// readLoop consumes plain-text control messages until the connection
// closes, then removes the client from the broadcast set.
func (s *WSSink) readLoop(conn *websocket.Conn) {
	defer func() {
		s.clients.Delete(conn)
		conn.Close()
		s.log.Info("sink client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Error("sink read error", "err", err)
			}
			return
		}
		s.handleControl(string(data))
	}
}

func (s *WSSink) handleControl(cmd string) {
	if s.controller == nil {
		s.log.Warn("control message received with no controller bound", "cmd", cmd)
		return
	}
	switch cmd {
	case "start", "resume":
		s.controller.Resume()
	case "pause":
		s.controller.Pause()
	case "shutdown":
		s.controller.Shutdown()
	default:
		s.log.Warn("unknown control message", "cmd", cmd)
	}
}

// Send implements core.EventSink by broadcasting e as a JSON frame to
// every connected client. A write failure to one client is logged and
// does not prevent delivery to the others; Send itself only returns an
// error if marshaling e fails, since that would affect every client
// identically.
func (s *WSSink) Send(e core.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("scarab: marshal event for sink: %w", err)
	}

	s.clients.Range(func(key, _ any) bool {
		conn := key.(*websocket.Conn)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.log.Error("sink write failed", "err", err)
		}
		return true
	})
	return nil
}

func (s *WSSink) writeEvent(conn *websocket.Conn, e core.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes every client connection, e.g. on driver shutdown.
func (s *WSSink) Close(ctx context.Context) error {
	s.clients.Range(func(key, _ any) bool {
		conn := key.(*websocket.Conn)
		conn.Close()
		s.clients.Delete(key)
		return true
	})
	return nil
}
