package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentcore/runtime/pkg/models"
)

// Config describes one configured backend, per spec.md §4.3.
type Config struct {
	ID             string
	Name           string
	BaseURL        string
	Headers        map[string]string
	TimeoutSeconds int
	Capabilities   Capabilities
}

// Provider is a generic HTTP+SSE backend client, parameterized by a
// Transformer and an Authenticator. It owns its own SSE line-assembly
// loop rather than wrapping a vendor SDK, grounded on
// internal/agent/providers/ollama.go's raw net/http + bufio.Scanner
// streaming pattern and internal/agent/providers/base.go's retry helper.
type Provider struct {
	Config        Config
	Transformer   Transformer
	Authenticator Authenticator
	HTTPClient    *http.Client
}

// New constructs a Provider. If client is nil, a client with the
// configured timeout is built.
func New(cfg Config, t Transformer, a Authenticator, client *http.Client) *Provider {
	if client == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Provider{Config: cfg, Transformer: t, Authenticator: a, HTTPClient: client}
}

// ChatResponse is the fully aggregated result of a non-streaming chat call.
type ChatResponse struct {
	Message      models.Message
	FinishReason models.FinishReason
	InputTokens  int
	OutputTokens int
}

// Chat performs a non-streaming call by accumulating chat_stream's
// output until Finish (spec.md §4.3).
func (p *Provider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	req.Stream = true // the provider always streams internally; non-streaming just aggregates
	chunks, errs := p.ChatStream(ctx, req)
	agg := NewAggregator()
	for c := range chunks {
		agg.Feed(c)
	}
	if err := <-errs; err != nil {
		return ChatResponse{}, err
	}
	return agg.Result(), nil
}

// ChatStream issues the request and streams normalized Chunks. The
// returned error channel receives exactly one value (nil on success)
// once the stream is fully drained or failed; the chunk channel is
// always closed first.
//
// Per spec.md §7, a RateLimited failure MAY be retried once with a
// delay equal to its Retry-After value; a second RateLimited surfaces
// to the caller instead of retrying again (testable property 12).
func (p *Provider) ChatStream(ctx context.Context, req ChatRequest) (<-chan models.Chunk, <-chan error) {
	out := make(chan models.Chunk)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		err := p.runStream(ctx, req, out)
		if pe, ok := AsError(err); ok && pe.Kind == KindRateLimited {
			delay := time.Duration(pe.RetryAfter) * time.Second
			if delay <= 0 {
				delay = time.Second
			}
			select {
			case <-time.After(delay):
				err = p.runStream(ctx, req, out)
			case <-ctx.Done():
				err = NewError(KindCancelled, "cancelled during rate-limit backoff")
			}
		}
		errc <- err
	}()

	return out, errc
}

func (p *Provider) runStream(ctx context.Context, req ChatRequest, out chan<- models.Chunk) error {
	// Step 1: refresh credentials if needed.
	if p.Authenticator != nil && p.Authenticator.NeedsRefresh() {
		if err := p.Authenticator.Refresh(ctx); err != nil {
			return Wrap(KindAuth, err, "authenticator refresh")
		}
	}

	// Step 2: build the wire body.
	if !p.Config.Capabilities.ToolCalling {
		req.Tools = nil
	}
	if !p.Config.Capabilities.Vision {
		req = stripImageParts(req)
	}
	if !p.Config.Capabilities.JSONMode {
		req.JSONMode = false
	}
	body, err := p.Transformer.TransformRequest(req)
	if err != nil {
		return err
	}

	// Step 3: build the POST request.
	url := strings.TrimRight(p.Config.BaseURL, "/") + p.Transformer.CompletionsPath()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Wrap(KindNetwork, err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range p.Config.Headers {
		httpReq.Header.Set(k, v)
	}
	if p.Authenticator != nil {
		if h, ok, err := p.Authenticator.AuthHeader(ctx); err != nil {
			return Wrap(KindAuth, err, "build auth header")
		} else if ok {
			httpReq.Header.Set(h.Name, h.Value)
		}
	}

	// Step 4: send.
	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return NewError(KindCancelled, "request cancelled")
		}
		return Wrap(KindNetwork, err, "send request")
	}
	defer resp.Body.Close()

	// Step 5: classify non-2xx.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if e := ClassifyStatus(resp.StatusCode, retryAfter, string(data)); e != nil {
			return e
		}
		return NewError(KindAPI, fmt.Sprintf("unexpected status %d", resp.StatusCode)).WithStatus(resp.StatusCode)
	}

	// Step 6: run the SSE assembler and dispatch through the transformer.
	return p.assembleSSE(ctx, resp.Body, out)
}

// assembleSSE implements the line-assembly buffer contract of spec.md
// §4.1: bytes are appended, split on '\n', and the remainder with no
// trailing newline is retained across reads, so an SSE event split
// across TCP reads is never lost or mis-parsed.
func (p *Provider) assembleSSE(ctx context.Context, body io.Reader, out chan<- models.Chunk) error {
	reader := bufio.NewReaderSize(body, 64*1024)
	var openToolCallID string
	idByIndex := map[int]string{}

	emit := func(c models.Chunk) error {
		select {
		case out <- c:
			return nil
		case <-ctx.Done():
			return NewError(KindCancelled, "stream consumer cancelled")
		}
	}

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if line == "" || !strings.HasPrefix(line, "data:") {
				// fall through to err handling below
			} else {
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				chunk, ok, perr := p.Transformer.ParseStreamChunk(payload)
				if perr != nil {
					return perr
				}
				if ok {
					if chunk.Kind == models.ChunkToolCallStart {
						if openToolCallID != "" && openToolCallID != chunk.ToolCallID {
							if e := emit(models.ToolCallEndChunk(openToolCallID)); e != nil {
								return e
							}
						}
						idByIndex[chunk.ToolCallIndex] = chunk.ToolCallID
						openToolCallID = chunk.ToolCallID
					}
					if chunk.Kind == models.ChunkToolCallDelta && chunk.ToolCallID == "" {
						if id, ok := idByIndex[chunk.ToolCallIndex]; ok {
							chunk.ToolCallID = id
						}
					}
					if chunk.Kind == models.ChunkFinish && openToolCallID != "" {
						if e := emit(models.ToolCallEndChunk(openToolCallID)); e != nil {
							return e
						}
						openToolCallID = ""
					}
					if e := emit(chunk); e != nil {
						return e
					}
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				if openToolCallID != "" {
					_ = emit(models.ToolCallEndChunk(openToolCallID))
				}
				return nil
			}
			return Wrap(KindStream, err, "read SSE body")
		}
	}
}

func stripImageParts(req ChatRequest) ChatRequest {
	messages := make([]models.Message, len(req.Messages))
	copy(messages, req.Messages)
	for i, m := range messages {
		if len(m.Parts) == 0 {
			continue
		}
		var kept []models.ContentPart
		for _, p := range m.Parts {
			if p.Type == models.ContentTypeText {
				kept = append(kept, p)
			}
		}
		messages[i].Parts = kept
	}
	req.Messages = messages
	return req
}

func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Aggregator consolidates a Chunk stream into a full ChatResponse, per
// the chunk-aggregation contract of spec.md §4.3.
type Aggregator struct {
	text         strings.Builder
	toolCalls    []models.ToolCall
	byID         map[string]int
	argsByID     map[string]*strings.Builder
	inputTokens  int
	outputTokens int
	finishReason models.FinishReason
	errMessage   string
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byID:     map[string]int{},
		argsByID: map[string]*strings.Builder{},
	}
}

// Feed consumes one Chunk.
func (a *Aggregator) Feed(c models.Chunk) {
	switch c.Kind {
	case models.ChunkContent:
		a.text.WriteString(c.Text)
	case models.ChunkToolCallStart:
		idx := len(a.toolCalls)
		a.toolCalls = append(a.toolCalls, models.ToolCall{ID: c.ToolCallID, Name: c.ToolCallName})
		a.byID[c.ToolCallID] = idx
		a.argsByID[c.ToolCallID] = &strings.Builder{}
	case models.ChunkToolCallDelta:
		if b, ok := a.argsByID[c.ToolCallID]; ok {
			b.WriteString(c.ArgsDelta)
		}
	case models.ChunkToolCallEnd:
		if idx, ok := a.byID[c.ToolCallID]; ok {
			raw := a.argsByID[c.ToolCallID].String()
			if raw == "" {
				raw = "{}"
			}
			if json.Valid([]byte(raw)) {
				a.toolCalls[idx].Arguments = json.RawMessage(raw)
			} else {
				a.errMessage = "tool call " + c.ToolCallID + " produced invalid JSON arguments"
			}
		}
	case models.ChunkUsage:
		a.inputTokens = c.InputTokens
		a.outputTokens = c.OutputTokens
	case models.ChunkFinish:
		a.finishReason = c.Reason
	case models.ChunkError:
		a.errMessage = c.Message
	}
}

// Result renders the assembled assistant Message and metadata.
func (a *Aggregator) Result() ChatResponse {
	msg := models.Message{
		Role:      models.RoleAssistant,
		Text:      a.text.String(),
		ToolCalls: a.toolCalls,
	}
	return ChatResponse{
		Message:      msg,
		FinishReason: a.finishReason,
		InputTokens:  a.inputTokens,
		OutputTokens: a.outputTokens,
	}
}

// Err returns the last in-band error message observed, if any.
func (a *Aggregator) Err() string { return a.errMessage }
