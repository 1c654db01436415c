package providers

import (
	"encoding/json"
	"strings"

	"github.com/agentcore/runtime/pkg/models"
)

// OpenAITransformer implements Transformer for the OpenAI-compatible
// chat-completions wire format. It is grounded on the message-building
// and SSE-chunk-shape handling of internal/agent/providers/ollama.go,
// generalized to OpenAI's own delta/tool_calls layout rather than
// wrapping github.com/sashabaranov/go-openai (see DESIGN.md: the SDK's
// own stream reader would hide the line-assembly mechanism this
// runtime specifies).
type OpenAITransformer struct{}

type oaiMessage struct {
	Role       string          `json:"role"`
	Content    any             `json:"content,omitempty"`
	ToolCalls  []oaiToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type oaiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function oaiToolCallFunc `json:"function"`
}

type oaiToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiContentPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *oaiImageURLPart `json:"image_url,omitempty"`
}

type oaiImageURLPart struct {
	URL string `json:"url"`
}

// TransformRequest builds an OpenAI chat-completions request body.
func (OpenAITransformer) TransformRequest(req ChatRequest) (json.RawMessage, error) {
	messages := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := oaiMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		if len(m.Parts) > 0 {
			parts := make([]oaiContentPart, 0, len(m.Parts))
			for _, p := range m.Parts {
				switch p.Type {
				case models.ContentTypeText:
					parts = append(parts, oaiContentPart{Type: "text", Text: p.Text})
				case models.ContentTypeImage:
					parts = append(parts, oaiContentPart{
						Type:     "image_url",
						ImageURL: &oaiImageURLPart{URL: p.DataURI()},
					})
				}
			}
			om.Content = parts
		} else {
			om.Content = m.Text
		}
		if len(m.ToolCalls) > 0 {
			calls := make([]oaiToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, oaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: oaiToolCallFunc{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			om.ToolCalls = calls
			om.Content = nil
		}
		messages = append(messages, om)
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   req.Stream,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		body["max_tokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.JSONMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	if len(req.Tools) > 0 {
		toolsJSON, err := OpenAITransformer{}.TransformTools(req.Tools)
		if err != nil {
			return nil, err
		}
		var tools any
		if err := json.Unmarshal(toolsJSON, &tools); err != nil {
			return nil, Wrap(KindTransform, err, "decode transformed tools")
		}
		body["tools"] = tools
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, Wrap(KindTransform, err, "marshal request body")
	}
	return out, nil
}

// TransformTools converts tool definitions into OpenAI's function-tool shape.
func (OpenAITransformer) TransformTools(tools []models.ToolDefinition) (json.RawMessage, error) {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		var params any
		if err := json.Unmarshal(t.JSONSchema(), &params); err != nil {
			return nil, Wrap(KindTransform, err, "decode tool schema for "+t.Name)
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, Wrap(KindTransform, err, "marshal tools array")
	}
	return data, nil
}

// CompletionsPath returns the standard OpenAI-compatible path.
func (OpenAITransformer) CompletionsPath() string { return "/chat/completions" }

type oaiStreamChunk struct {
	Choices []oaiStreamChoice `json:"choices"`
	Usage   *oaiUsage         `json:"usage"`
}

type oaiStreamChoice struct {
	Delta        oaiDelta `json:"delta"`
	FinishReason string   `json:"finish_reason"`
}

type oaiDelta struct {
	Content   string            `json:"content"`
	ToolCalls []oaiDeltaToolCall `json:"tool_calls"`
}

type oaiDeltaToolCall struct {
	Index    int             `json:"index"`
	ID       string          `json:"id"`
	Function oaiDeltaFunc    `json:"function"`
}

type oaiDeltaFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ParseStreamChunk interprets one OpenAI-compatible SSE data payload.
//
// Per spec.md §4.1 a JSON payload yields at most one kind of chunk; this
// implementation checks, in order, usage, tool-call deltas, content and
// finish reason, and returns a chunk for the first of these that the
// frame populates.
func (t OpenAITransformer) ParseStreamChunk(payload string) (models.Chunk, bool, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return models.Chunk{}, false, nil
	}
	if payload == DoneSentinel {
		return models.FinishChunk(models.FinishStop), true, nil
	}

	var sc oaiStreamChunk
	if err := json.Unmarshal([]byte(payload), &sc); err != nil {
		return models.Chunk{}, false, Wrap(KindStream, err, "parse stream chunk")
	}

	if sc.Usage != nil {
		return models.UsageChunk(sc.Usage.PromptTokens, sc.Usage.CompletionTokens), true, nil
	}
	if len(sc.Choices) == 0 {
		return models.Chunk{}, false, nil
	}
	choice := sc.Choices[0]

	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		// OpenAI-compatible backends send the id and name only on the
		// first delta of a tool call; continuation frames repeat just
		// the index (spec.md §4.1's S2 example). ToolCallIndex lets
		// the provider's SSE assembler recover the id downstream.
		if tc.ID != "" && tc.Function.Name != "" {
			return models.ToolCallStartChunkAt(tc.ID, tc.Function.Name, tc.Index), true, nil
		}
		if tc.Function.Arguments != "" {
			return models.ToolCallDeltaChunkAt(tc.ID, tc.Function.Arguments, tc.Index), true, nil
		}
		return models.Chunk{}, false, nil
	}

	if choice.Delta.Content != "" {
		return models.ContentChunk(choice.Delta.Content), true, nil
	}

	if choice.FinishReason != "" {
		return models.FinishChunk(mapFinishReason(choice.FinishReason)), true, nil
	}

	return models.Chunk{}, false, nil
}

func mapFinishReason(r string) models.FinishReason {
	switch r {
	case "length":
		return models.FinishLength
	case "tool_calls":
		return models.FinishToolCalls
	case "content_filter":
		return models.FinishContentFilter
	default:
		return models.FinishStop
	}
}
