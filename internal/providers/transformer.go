package providers

import (
	"encoding/json"

	"github.com/agentcore/runtime/pkg/models"
)

// ChatRequest is the internal, backend-agnostic shape of one completion
// request, built by the agent loop and handed to a Transformer.
type ChatRequest struct {
	Model       string
	Messages    []models.Message
	Tools       []models.ToolDefinition
	Stream      bool
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	JSONMode    bool
}

// Capabilities gates which ChatRequest fields a provider is allowed to
// forward to its backend.
type Capabilities struct {
	Streaming   bool
	ToolCalling bool
	Vision      bool
	JSONMode    bool
}

// Transformer is a pure, stateless adapter between the internal request
// and chunk model and one backend's wire JSON. Implementations must not
// hold request-scoped state: a single Transformer instance is shared
// across concurrent calls.
type Transformer interface {
	// TransformRequest builds the POST body for req.
	TransformRequest(req ChatRequest) (json.RawMessage, error)

	// ParseStreamChunk interprets one data:-stripped SSE payload. It
	// returns ok=false when the payload contributes no observable chunk
	// (e.g. a heartbeat comment or a field this transformer doesn't
	// recognize yet, per spec.md §4.1's "ignore unknown fields" rule).
	ParseStreamChunk(payload string) (chunk models.Chunk, ok bool, err error)

	// TransformTools converts tool definitions into the backend's "tools"
	// array shape.
	TransformTools(tools []models.ToolDefinition) (json.RawMessage, error)

	// CompletionsPath returns the path appended to the provider's
	// base_url, e.g. "/chat/completions".
	CompletionsPath() string
}

// DoneSentinel is the SSE payload that terminates a stream with no
// further JSON to parse (spec.md §4.1).
const DoneSentinel = "[DONE]"
