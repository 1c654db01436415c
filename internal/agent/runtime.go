package agent

import (
	"context"
	"sync"

	"github.com/agentcore/runtime/internal/providers"
	"github.com/agentcore/runtime/pkg/models"
)

// ChatProvider is the subset of providers.Provider the loop depends on,
// letting tests substitute a fake without importing net/http plumbing.
type ChatProvider interface {
	ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan models.Chunk, <-chan error)
}

// SessionMessages is the minimal session-mutation surface the loop
// needs: append a message, and read the current list. The concrete,
// persisted implementation is internal/sessions.Store; this interface
// keeps the loop decoupled from storage, grounded on the same
// dependency-direction choice as internal/agent/loop.go depending on
// internal/sessions only through its Store interface.
type SessionMessages interface {
	Messages(sessionID string) []models.Message
	AppendMessage(sessionID string, msg models.Message) error
	// MutateLastAssistant replaces the session's trailing assistant
	// message in place (spec.md §3 invariant (b)). Runtime does not call
	// it: runLoop appends each round's assistant message once, through
	// AppendMessage, after that round's stream has ended, so the session
	// holds no partial assistant message while a round is streaming.
	MutateLastAssistant(sessionID string, msg models.Message) error
}

// SkillPrompts returns the concatenated system_prompt snippets of all
// currently-eligible skills, for composing the Building-phase prompt.
type SkillPrompts func() string

// Runtime runs the multi-round agent loop described in spec.md §4.4.
// Grounded on internal/agent/loop.go's AgenticLoop control flow
// (LoopConfig-driven round loop, streaming chunk forwarding, tool-call
// aggregation-then-dispatch), narrowed to the exact state machine
// spec.md §4.4 names instead of the teacher's richer job/approval/
// branch-store machinery (out of scope here).
type Runtime struct {
	Provider     ChatProvider
	Registry     ToolRegistry
	Executor     *Executor
	Sessions     SessionMessages
	BasePrompt   string
	SkillPrompts SkillPrompts
	Compaction   CompactionConfig
	Summarize    Summarizer

	// ConcurrentRunPolicy is "cancel" (default) or "reject", mirroring
	// config.AgentConfig.ConcurrentRunPolicy (spec.md §5's "new request
	// while a run is in flight" knob). Empty means "cancel".
	ConcurrentRunPolicy string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewRuntime builds a Runtime.
func NewRuntime(provider ChatProvider, registry ToolRegistry, executor *Executor, sessions SessionMessages) *Runtime {
	return &Runtime{
		Provider: provider,
		Registry: registry,
		Executor: executor,
		Sessions: sessions,
		running:  map[string]context.CancelFunc{},
	}
}

// Run executes one agent run for sessionID, appending userInput as the
// user turn and streaming normalized Chunks to the caller. Per spec.md
// §3 invariant (c) and §5, starting a new run on a session that already
// has one in flight cancels the prior run, unless ConcurrentRunPolicy
// is "reject", in which case it returns ErrSessionBusy and leaves the
// prior run untouched.
func (r *Runtime) Run(ctx context.Context, sessionID, userInput string, opts RunOptions) (<-chan models.Chunk, error) {
	r.mu.Lock()
	if prior, ok := r.running[sessionID]; ok {
		if r.ConcurrentRunPolicy == "reject" {
			r.mu.Unlock()
			return nil, ErrSessionBusy
		}
		prior()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running[sessionID] = cancel
	r.mu.Unlock()

	out := make(chan models.Chunk)
	go func() {
		defer close(out)
		defer func() {
			r.mu.Lock()
			if r.running[sessionID] != nil {
				delete(r.running, sessionID)
			}
			r.mu.Unlock()
			cancel()
		}()
		r.runLoop(runCtx, sessionID, userInput, opts, out)
	}()
	return out, nil
}

// Cancel aborts the in-flight run for sessionID, if any. Idempotent per
// spec.md §5's cancellation semantics.
func (r *Runtime) Cancel(sessionID string) {
	r.mu.Lock()
	cancel := r.running[sessionID]
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runtime) runLoop(ctx context.Context, sessionID, userInput string, opts RunOptions, out chan<- models.Chunk) {
	if opts.MaxRounds <= 0 {
		opts = DefaultRunOptions()
	}

	// Building: append the user message, assemble the prompt.
	if err := r.Sessions.AppendMessage(sessionID, models.Message{
		Role: models.RoleUser,
		Text: userInput,
	}); err != nil {
		emit(ctx, out, models.ErrorChunk(err.Error()))
		emit(ctx, out, models.FinishChunk(models.FinishError))
		return
	}

	toolBudget := opts.ToolBudget
	var usage models.Chunk
	haveUsage := false

	for round := 0; round < opts.MaxRounds; round++ {
		if ctx.Err() != nil {
			emit(ctx, out, models.FinishChunk(models.FinishCancelled))
			return
		}

		messages := r.prompt(ctx, sessionID)

		req := providers.ChatRequest{
			Messages: messages,
			Tools:    r.Registry.List(),
			Stream:   true,
		}

		chunks, errs := r.Provider.ChatStream(ctx, req)

		agg := providers.NewAggregator()
		for c := range chunks {
			agg.Feed(c)
			if c.Kind == models.ChunkUsage {
				usage, haveUsage = c, true
			}
			// Only Start/Content/ToolCall* are forwarded live (spec.md
			// §4.4's Streaming phase); Finish and Usage are consumed here
			// for aggregation only and re-emitted once, by the
			// EvaluatingTools/Finalizing transitions below, so the caller
			// never sees a round's Finish chunk twice.
			switch c.Kind {
			case models.ChunkStart, models.ChunkContent, models.ChunkToolCallStart, models.ChunkToolCallDelta, models.ChunkToolCallEnd:
				select {
				case out <- c:
				case <-ctx.Done():
					emit(context.Background(), out, models.FinishChunk(models.FinishCancelled))
					return
				}
			}
			if ctx.Err() != nil {
				emit(context.Background(), out, models.FinishChunk(models.FinishCancelled))
				return
			}
		}
		if err := <-errs; err != nil {
			if ctx.Err() != nil {
				emit(context.Background(), out, models.FinishChunk(models.FinishCancelled))
				return
			}
			emit(ctx, out, models.ErrorChunk(err.Error()))
			emit(ctx, out, models.FinishChunk(models.FinishError))
			return
		}

		result := agg.Result()
		assistantMsg := result.Message
		assistantMsg.Role = models.RoleAssistant
		if err := r.Sessions.AppendMessage(sessionID, assistantMsg); err != nil {
			emit(ctx, out, models.ErrorChunk(err.Error()))
			emit(ctx, out, models.FinishChunk(models.FinishError))
			return
		}

		switch result.FinishReason {
		case models.FinishStop, models.FinishLength, models.FinishContentFilter:
			if haveUsage {
				emit(ctx, out, usage)
			}
			emit(ctx, out, models.FinishChunk(result.FinishReason))
			return
		case models.FinishToolCalls:
			if toolBudget <= 0 || len(assistantMsg.ToolCalls) == 0 {
				emit(ctx, out, models.FinishChunk(models.FinishLength))
				return
			}
			r.evaluateTools(ctx, sessionID, assistantMsg.ToolCalls, &toolBudget)
			continue
		default:
			// Provider didn't signal a recognized reason; treat as stop.
			if haveUsage {
				emit(ctx, out, usage)
			}
			emit(ctx, out, models.FinishChunk(models.FinishStop))
			return
		}
	}

	emit(ctx, out, models.FinishChunk(models.FinishLength))
}

// prompt composes the system prompt for the Building phase and applies
// context compression (§4.4.1) before returning the full message list.
func (r *Runtime) prompt(ctx context.Context, sessionID string) []models.Message {
	history := r.Sessions.Messages(sessionID)

	system := r.BasePrompt
	if r.SkillPrompts != nil {
		if extra := r.SkillPrompts(); extra != "" {
			system = system + "\n\n" + extra
		}
	}

	messages := make([]models.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, models.Message{Role: models.RoleSystem, Text: system})
	}
	messages = append(messages, history...)

	if r.Summarize != nil {
		if compacted, err := Compact(ctx, r.Compaction, messages, r.Summarize); err == nil {
			messages = compacted
		}
	}
	return messages
}

// evaluateTools runs the EvaluatingTools phase: each tool call is
// executed, and a tool-role message with the deterministic envelope is
// appended, decrementing the remaining budget per invocation.
func (r *Runtime) evaluateTools(ctx context.Context, sessionID string, calls []models.ToolCall, budget *int) {
	for _, call := range calls {
		if *budget <= 0 {
			break
		}
		*budget--

		def, ok := r.Registry.Get(call.Name)
		var result models.ToolResult
		if !ok {
			result = models.ToolResult{Success: false, Error: "tool not found: " + call.Name}
		} else {
			res, err := r.Executor.Execute(ctx, def, call.Arguments)
			if err != nil {
				result = models.ToolResult{Success: false, Error: err.Error()}
			} else {
				result = res
			}
		}
		result = GuardToolResult(result)
		result.ToolCallID = call.ID

		_ = r.Sessions.AppendMessage(sessionID, models.Message{
			Role:       models.RoleTool,
			Text:       result.Envelope(),
			ToolCallID: call.ID,
		})
	}
}

func emit(ctx context.Context, out chan<- models.Chunk, c models.Chunk) {
	select {
	case out <- c:
	case <-ctx.Done():
	}
}
