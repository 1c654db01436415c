package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentcore/runtime/internal/agent"
	"github.com/agentcore/runtime/internal/eventbus"
	"github.com/agentcore/runtime/pkg/models"
)

// WebSocket connection handling, grounded on
// internal/gateway/ws_control_plane.go's upgrade-then-read/write-loop
// shape (wsSession.run/readLoop/writeLoop, buffered send channel,
// SetReadDeadline/SetPongHandler liveness), adapted from that file's
// generic {type,id,method,params} RPC envelope to this spec's fixed
// named message set, and from the teacher's WS-control-frame-only
// liveness check to an application-level Ping/Pong exchange (spec.md
// §6.2 names Ping and Pong as first-class message types in both
// directions, and SPEC_FULL.md §6 decision 3 requires the server to
// originate Ping frames on its own heartbeat timer rather than relying
// solely on a client Pong as the teacher's control plane does).
const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
	wsSendBuffer      = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsConn struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()

	log *slog.Logger
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.GatewayAuth != nil && s.GatewayAuth.Enabled() {
		if err := s.GatewayAuth.Authorize(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	wc := &wsConn{
		server: s,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		ctx:    ctx,
		cancel: cancel,
		log:    s.Log.With("component", "gateway.ws"),
	}
	go wc.writeLoop()
	wc.readLoop()
}

func (c *wsConn) close() {
	c.cancel()
	if c.unsub != nil {
		c.unsub()
	}
	close(c.send)
	_ = c.conn.Close()
}

// readWait is 2x the configured heartbeat interval (spec.md §6.2:
// "absence of any socket traffic for 2 x interval triggers connection
// close"), matching the cadence writeLoop's Ping ticker actually runs
// at instead of a fixed constant.
func (c *wsConn) readWait() time.Duration {
	return 2 * c.server.Config.Gateway.HeartbeatInterval()
}

func (c *wsConn) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.readWait()))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readWait()))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendServer(errorMessage(c.sessionID, "invalid_frame", err.Error()))
			continue
		}
		if err := validateClientMessage(msg); err != nil {
			c.sendServer(errorMessage(c.sessionID, "invalid_message", err.Error()))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.server.Config.Gateway.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeServer(pingMessage())
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) sendServer(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Buffer full: drop rather than block the read loop, matching
		// the event bus's own wait-free-send discipline.
	}
}

// writeServer writes directly, bypassing the buffered channel, for use
// only from the write loop's own goroutine (the heartbeat ticker).
func (c *wsConn) writeServer(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) dispatch(msg ClientMessage) {
	switch msg.Type {
	case ClientConnect:
		c.handleConnect(msg.Payload)
	case ClientChat:
		c.handleChat(msg.Payload)
	case ClientCommand:
		c.handleCommand(msg.Payload)
	case ClientPing:
		c.sendServer(pongMessage())
	}
}

func (c *wsConn) handleConnect(raw json.RawMessage) {
	var p ConnectPayload
	_ = json.Unmarshal(raw, &p)

	sess, err := c.resolveSession(p.SessionID)
	if err != nil {
		c.sendServer(errorMessage("", "session_error", err.Error()))
		return
	}
	c.sessionID = sess.ID

	sub, unsub := c.server.Bus.Subscribe(sess.ID)
	c.unsub = unsub
	go c.forwardBusEvents(sub)

	c.sendServer(connectedMessage(sess.ID))
}

func (c *wsConn) resolveSession(sessionID string) (*models.Session, error) {
	if sessionID != "" {
		if sess, err := c.server.Sessions.Get(sessionID); err == nil {
			return sess, nil
		}
	}
	sess := &models.Session{
		ID:       uuid.NewString(),
		Provider: c.server.Config.LLM.DefaultProvider,
	}
	if err := c.server.Sessions.Create(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (c *wsConn) forwardBusEvents(sub *eventbus.Subscription) {
	for evt := range sub.Events() {
		if evt.Kind != models.EventChatResponse {
			continue
		}
		c.sendServer(chunkToServerMessage(evt.SessionID, evt.Chunk))
	}
}

func (c *wsConn) handleChat(raw json.RawMessage) {
	var p ChatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendServer(errorMessage(c.sessionID, "invalid_payload", err.Error()))
		return
	}
	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = c.sessionID
	}
	if sessionID == "" {
		c.sendServer(errorMessage("", "no_session", "Connect before sending Chat"))
		return
	}

	chunks, err := c.server.Runtime.Run(c.ctx, sessionID, p.Content, agent.DefaultRunOptions())
	if err != nil {
		if errors.Is(err, agent.ErrSessionBusy) {
			c.sendServer(errorMessage(sessionID, "SessionBusy", err.Error()))
			return
		}
		c.sendServer(errorMessage(sessionID, "run_failed", err.Error()))
		return
	}
	go func() {
		target := models.WebSocketReply(sessionID)
		for chunk := range chunks {
			c.server.Router.Deliver(sessionID, target, chunk)
		}
	}()
}

func (c *wsConn) handleCommand(raw json.RawMessage) {
	var p CommandPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendServer(errorMessage(c.sessionID, "invalid_payload", err.Error()))
		return
	}
	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = c.sessionID
	}
	switch p.Name {
	case "stop":
		c.server.Runtime.Cancel(sessionID)
	default:
		c.sendServer(errorMessage(sessionID, "unknown_command", p.Name))
	}
}

// chunkToServerMessage maps one internal Chunk onto its WS wire
// representation.
func chunkToServerMessage(sessionID string, chunk models.Chunk) ServerMessage {
	switch chunk.Kind {
	case models.ChunkContent:
		return agentTokenMessage(sessionID, chunk.Text)
	case models.ChunkToolCallStart:
		return agentToolStartMessage(sessionID, chunk.ToolCallID, chunk.ToolCallName)
	case models.ChunkToolCallEnd:
		return agentToolCompleteMessage(sessionID, chunk.ToolCallID, chunk.ToolCallName, true, "")
	case models.ChunkFinish:
		return agentCompleteMessage(sessionID, string(chunk.Reason))
	case models.ChunkError:
		return errorMessage(sessionID, "agent_error", chunk.Message)
	default:
		return ServerMessage{Type: ServerAgentToken, SessionID: sessionID}
	}
}
