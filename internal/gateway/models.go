package gateway

import "encoding/json"

// wire.go's types: WebSocket frames are plain JSON objects with a
// "type" discriminator (spec.md §6.2), following the single-struct/
// Kind-field idiom pkg/models already uses for Chunk and Event, rather
// than the teacher's RPC-shaped {type, id, method, params} envelope
// (ws_control_plane.go's wsFrame) — this spec's WS surface is a fixed
// named message set, not a generic method dispatcher.

// Client message types (spec.md §6.2).
const (
	ClientConnect = "Connect"
	ClientChat    = "Chat"
	ClientCommand = "Command"
	ClientPing    = "Ping"
)

// Server message types (spec.md §6.2).
const (
	ServerConnected          = "Connected"
	ServerAgentToken         = "AgentToken"
	ServerAgentToolStart     = "AgentToolStart"
	ServerAgentToolComplete  = "AgentToolComplete"
	ServerAgentComplete      = "AgentComplete"
	ServerError              = "Error"
	ServerPong               = "Pong"
	ServerPing               = "Ping"
)

// ClientMessage is the envelope every inbound WS frame decodes into
// before dispatch; Payload is parsed again into the type-specific
// struct once Type is known.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectPayload authenticates a new WS connection.
type ConnectPayload struct {
	Token     string `json:"token,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatPayload submits one user turn on the connection's session.
type ChatPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

// CommandPayload issues an out-of-band control command, e.g. "stop".
type CommandPayload struct {
	SessionID string            `json:"session_id,omitempty"`
	Name      string            `json:"name"`
	Args      map[string]string `json:"args,omitempty"`
}

// ServerMessage is every outbound WS frame's shape: one struct with
// every variant's fields, populated according to Type. Mirrors
// pkg/models.Chunk's builder-function pattern.
type ServerMessage struct {
	Type string `json:"type"`

	SessionID string `json:"session_id,omitempty"`

	// AgentToken
	Text string `json:"text,omitempty"`

	// AgentToolStart / AgentToolComplete
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Output     string `json:"output,omitempty"`

	// AgentComplete
	FinishReason string `json:"finish_reason,omitempty"`

	// Error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func connectedMessage(sessionID string) ServerMessage {
	return ServerMessage{Type: ServerConnected, SessionID: sessionID}
}

func agentTokenMessage(sessionID, text string) ServerMessage {
	return ServerMessage{Type: ServerAgentToken, SessionID: sessionID, Text: text}
}

func agentToolStartMessage(sessionID, callID, name string) ServerMessage {
	return ServerMessage{Type: ServerAgentToolStart, SessionID: sessionID, ToolCallID: callID, ToolName: name}
}

func agentToolCompleteMessage(sessionID, callID, name string, success bool, output string) ServerMessage {
	return ServerMessage{
		Type: ServerAgentToolComplete, SessionID: sessionID,
		ToolCallID: callID, ToolName: name, Success: &success, Output: output,
	}
}

func agentCompleteMessage(sessionID, reason string) ServerMessage {
	return ServerMessage{Type: ServerAgentComplete, SessionID: sessionID, FinishReason: reason}
}

func errorMessage(sessionID, code, message string) ServerMessage {
	return ServerMessage{Type: ServerError, SessionID: sessionID, Code: code, Message: message}
}

func pongMessage() ServerMessage { return ServerMessage{Type: ServerPong} }
func pingMessage() ServerMessage { return ServerMessage{Type: ServerPing} }
