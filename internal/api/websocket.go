package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homestate-core/internal/stream"
)

// wsWriteWait bounds every frame write, including pings.
const wsWriteWait = 10 * time.Second

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// WSFrame is one message on /ws. Data is the same JSON an SSE client
// receives on the data line.
type WSFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsSink writes stream bundles as one text frame per message.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(events []stream.Event) error {
	for _, e := range events {
		data, err := json.Marshal(WSFrame{Event: e.Kind(), Data: e.Data})
		if err != nil {
			return err
		}
		//nolint:errcheck // Best-effort deadline; write error caught below
		s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *wsSink) Ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// handleWebSocket serves GET /ws?deviceId=<id>. It applies the same checks
// as /stream before upgrading, then streams until either side goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	sink := &wsSink{}

	session, initial, status, msg := stream.Open(r.Context(), s.registry, s.states, deviceID, sink, s.sessionOptions("websocket"))
	if session == nil {
		http.Error(w, msg, status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		session.Close()
		s.logger.Warn("websocket upgrade failed", "device_id", deviceID, "error", err)
		return
	}
	sink.conn = conn

	s.wsClients.Add(1)
	defer s.wsClients.Add(-1)

	// A hijacked connection's request context does not follow the peer,
	// so the read pump and server shutdown cancel explicitly.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	go s.wsReadPump(conn, cancel)

	_ = session.Run(ctx, initial) //nolint:errcheck // logged by the session

	//nolint:errcheck // Best-effort close handshake
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
	conn.Close()
}

// wsReadPump drains inbound frames so control frames are processed, and
// cancels the stream when the peer disconnects or stops answering pings.
func (s *Server) wsReadPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	if s.streamCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(s.streamCfg.MaxMessageSize))
	}
	wait := 2*s.streamCfg.HeartbeatPeriod() + wsWriteWait
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			} else {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message also counts as liveness.
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(wait))
	}
}
