package models

// FinishReason is why an assistant turn stopped producing Chunks.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength         FinishReason = "length"
	FinishToolCalls      FinishReason = "tool_calls"
	FinishContentFilter  FinishReason = "content_filter"
	FinishCancelled      FinishReason = "cancelled"
	FinishError          FinishReason = "error"
)

// ChunkKind discriminates a Chunk's tagged variant.
type ChunkKind string

const (
	ChunkStart         ChunkKind = "start"
	ChunkContent       ChunkKind = "content"
	ChunkToolCallStart ChunkKind = "tool_call_start"
	ChunkToolCallDelta ChunkKind = "tool_call_delta"
	ChunkToolCallEnd   ChunkKind = "tool_call_end"
	ChunkUsage         ChunkKind = "usage"
	ChunkFinish        ChunkKind = "finish"
	ChunkError         ChunkKind = "error"
)

// Chunk is one streaming unit emitted by a Provider and consumed by the
// agent loop. Exactly the fields relevant to Kind are populated; this
// mirrors the teacher's own streaming-chunk shape but as a single tagged
// struct rather than an interface, matching spec.md's variant list.
type Chunk struct {
	Kind Kind

	// Start
	Model string

	// Content
	Text string

	// ToolCallStart / ToolCallDelta / ToolCallEnd
	ToolCallID   string
	ToolCallName string
	ArgsDelta    string
	// ToolCallIndex is the backend's positional index for this tool
	// call within the current assistant turn. Some OpenAI-compatible
	// backends omit the id on continuation deltas and only repeat the
	// index; the provider's SSE assembler uses this to recover the id
	// for a ToolCallDelta whose ToolCallID arrives empty.
	ToolCallIndex int

	// Usage
	InputTokens  int
	OutputTokens int

	// Finish
	Reason FinishReason

	// Error
	Message string
}

// Kind is an alias kept for readability at call sites (Chunk.Kind ==
// ChunkContent reads better than Chunk.Kind == Kind(ChunkContent)).
type Kind = ChunkKind

// StartChunk builds a Start chunk.
func StartChunk(model string) Chunk { return Chunk{Kind: ChunkStart, Model: model} }

// ContentChunk builds a Content chunk.
func ContentChunk(text string) Chunk { return Chunk{Kind: ChunkContent, Text: text} }

// ToolCallStartChunk builds a ToolCallStart chunk.
func ToolCallStartChunk(id, name string) Chunk {
	return Chunk{Kind: ChunkToolCallStart, ToolCallID: id, ToolCallName: name}
}

// ToolCallStartChunkAt builds a ToolCallStart chunk carrying the
// backend's positional index, for backends that key continuation
// deltas by index rather than repeating the id.
func ToolCallStartChunkAt(id, name string, index int) Chunk {
	return Chunk{Kind: ChunkToolCallStart, ToolCallID: id, ToolCallName: name, ToolCallIndex: index}
}

// ToolCallDeltaChunk builds a ToolCallDelta chunk.
func ToolCallDeltaChunk(id, delta string) Chunk {
	return Chunk{Kind: ChunkToolCallDelta, ToolCallID: id, ArgsDelta: delta}
}

// ToolCallDeltaChunkAt builds a ToolCallDelta chunk carrying the
// backend's positional index, used when id is empty on continuation
// frames.
func ToolCallDeltaChunkAt(id, delta string, index int) Chunk {
	return Chunk{Kind: ChunkToolCallDelta, ToolCallID: id, ArgsDelta: delta, ToolCallIndex: index}
}

// ToolCallEndChunk builds a ToolCallEnd chunk.
func ToolCallEndChunk(id string) Chunk { return Chunk{Kind: ChunkToolCallEnd, ToolCallID: id} }

// UsageChunk builds a Usage chunk.
func UsageChunk(in, out int) Chunk {
	return Chunk{Kind: ChunkUsage, InputTokens: in, OutputTokens: out}
}

// FinishChunk builds a Finish chunk.
func FinishChunk(reason FinishReason) Chunk { return Chunk{Kind: ChunkFinish, Reason: reason} }

// ErrorChunk builds an Error chunk.
func ErrorChunk(message string) Chunk { return Chunk{Kind: ChunkError, Message: message} }

// ReplyKind discriminates a ReplyTarget.
type ReplyKind string

const (
	ReplyWebSocket ReplyKind = "websocket"
	ReplyHTTP      ReplyKind = "http"
)

// ReplyTarget is the destination for an agent run's Chunks: either a
// WebSocket-attached session (delivered via the event bus) or a single
// HTTP request's SSE writer (delivered directly, never via the bus).
type ReplyTarget struct {
	Kind      ReplyKind
	SessionID string // set when Kind == ReplyWebSocket
	RequestID string // set when Kind == ReplyHTTP
}

// WebSocketReply builds a ReplyTarget bound to a session's socket.
func WebSocketReply(sessionID string) ReplyTarget {
	return ReplyTarget{Kind: ReplyWebSocket, SessionID: sessionID}
}

// HTTPReply builds a ReplyTarget bound to one HTTP request's SSE writer.
func HTTPReply(requestID string) ReplyTarget {
	return ReplyTarget{Kind: ReplyHTTP, RequestID: requestID}
}

// EventKind discriminates an Event on the internal bus.
type EventKind string

const (
	EventChatRequest    EventKind = "chat_request"
	EventChatResponse   EventKind = "chat_response"
	EventToolInvoked    EventKind = "tool_invoked"
	EventSessionCreated EventKind = "session_created"
	EventSessionClosed  EventKind = "session_closed"
	EventConfigUpdated  EventKind = "config_updated"
	EventHTTPResponse   EventKind = "http_response"
)

// Event is one message on the process-wide broadcast bus.
type Event struct {
	Kind      EventKind
	SessionID string

	// ChatRequest
	Content string
	ReplyTo ReplyTarget

	// ChatResponse / HttpResponse
	Chunk Chunk

	// ToolInvoked
	Call ToolCall

	// ConfigUpdated
	Sections []string
}
