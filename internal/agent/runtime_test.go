package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentcore/runtime/internal/providers"
	"github.com/agentcore/runtime/pkg/models"
)

// memSessions is a minimal in-memory SessionMessages for runtime tests,
// avoiding a dependency on internal/sessions' file-backed store.
type memSessions struct {
	mu       sync.Mutex
	messages map[string][]models.Message
}

func newMemSessions() *memSessions {
	return &memSessions{messages: map[string][]models.Message{}}
}

func (m *memSessions) Messages(sessionID string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.messages[sessionID]))
	copy(out, m.messages[sessionID])
	return out
}

func (m *memSessions) AppendMessage(sessionID string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return nil
}

func (m *memSessions) MutateLastAssistant(sessionID string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.messages[sessionID]
	if len(list) == 0 || list[len(list)-1].Role != models.RoleAssistant {
		m.messages[sessionID] = append(list, msg)
		return nil
	}
	list[len(list)-1] = msg
	return nil
}

// scriptedProvider replays a fixed sequence of per-round chunk batches,
// one batch per call to ChatStream, for deterministic multi-round tests.
type scriptedProvider struct {
	mu     sync.Mutex
	rounds [][]models.Chunk
	calls  int
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan models.Chunk, <-chan error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	out := make(chan models.Chunk)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		if idx >= len(p.rounds) {
			errc <- nil
			return
		}
		for _, c := range p.rounds[idx] {
			out <- c
		}
		errc <- nil
	}()
	return out, errc
}

func drain(ch <-chan models.Chunk) []models.Chunk {
	var out []models.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

// TestRuntimeSimpleTurn reproduces spec.md's S1 scenario: one round,
// plain content, Finish{stop}.
func TestRuntimeSimpleTurn(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]models.Chunk{
		{models.ContentChunk("Hello"), models.FinishChunk(models.FinishStop)},
	}}
	sessions := newMemSessions()
	registry := NewStaticRegistry(nil)
	rt := NewRuntime(provider, registry, NewExecutor(DefaultExecutorConfig()), sessions)

	chunks, err := rt.Run(context.Background(), "s1", "hi", DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := drain(chunks)

	if len(got) != 2 || got[0].Text != "Hello" || got[1].Reason != models.FinishStop {
		t.Fatalf("got %+v", got)
	}

	history := sessions.Messages("s1")
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant || history[1].Text != "Hello" {
		t.Fatalf("history = %+v", history)
	}
}

// TestRuntimeToolCallRoundTrip reproduces spec.md's S2 scenario: a
// tool call is aggregated, dispatched, and its result appended as a
// tool message before a second round produces the final answer.
func TestRuntimeToolCallRoundTrip(t *testing.T) {
	dir := t.TempDir()
	def := echoToolDef(t, dir)
	registry := NewStaticRegistry([]models.ToolDefinition{def})

	provider := &scriptedProvider{rounds: [][]models.Chunk{
		{
			models.ToolCallStartChunk("call_1", "echo"),
			models.ToolCallDeltaChunk("call_1", `{"t`),
			models.ToolCallDeltaChunk("call_1", `ext":"hi"}`),
			models.ToolCallEndChunk("call_1"),
			models.FinishChunk(models.FinishToolCalls),
		},
		{
			models.ContentChunk("done"),
			models.FinishChunk(models.FinishStop),
		},
	}}
	sessions := newMemSessions()
	rt := NewRuntime(provider, registry, NewExecutor(DefaultExecutorConfig()), sessions)

	chunks, err := rt.Run(context.Background(), "s2", "hi", DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	drain(chunks)

	history := sessions.Messages("s2")
	var toolMsg, finalMsg *models.Message
	for i := range history {
		if history[i].Role == models.RoleTool {
			toolMsg = &history[i]
		}
		if history[i].Role == models.RoleAssistant && history[i].Text == "done" {
			finalMsg = &history[i]
		}
	}
	if toolMsg == nil || toolMsg.ToolCallID != "call_1" || toolMsg.Text != "hi" {
		t.Fatalf("tool message = %+v", toolMsg)
	}
	if finalMsg == nil {
		t.Fatalf("expected a final assistant message with text=done, history=%+v", history)
	}
}

// TestRuntimeCancelEmitsCancelledOnce asserts testable property 6:
// cancelling a run terminates the stream within a bounded time with at
// most one trailing Finish{cancelled} chunk.
func TestRuntimeCancelEmitsCancelledOnce(t *testing.T) {
	block := make(chan struct{})
	provider := &blockingProvider{release: block}
	sessions := newMemSessions()
	registry := NewStaticRegistry(nil)
	rt := NewRuntime(provider, registry, NewExecutor(DefaultExecutorConfig()), sessions)

	chunks, err := rt.Run(context.Background(), "s3", "hi", DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	done := make(chan []models.Chunk, 1)
	go func() { done <- drain(chunks) }()

	time.Sleep(10 * time.Millisecond)
	rt.Cancel("s3")
	rt.Cancel("s3") // idempotent

	select {
	case got := <-done:
		finishCount := 0
		for _, c := range got {
			if c.Kind == models.ChunkFinish {
				finishCount++
				if c.Reason != models.FinishCancelled {
					t.Fatalf("finish reason = %s, want cancelled", c.Reason)
				}
			}
		}
		if finishCount != 1 {
			t.Fatalf("finish chunk count = %d, want 1", finishCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not terminate within bound after cancel")
	}
	close(block)
}

// blockingProvider never sends a chunk until its context is cancelled,
// simulating an in-flight HTTP call that cancellation must abort.
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) ChatStream(ctx context.Context, req providers.ChatRequest) (<-chan models.Chunk, <-chan error) {
	out := make(chan models.Chunk)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		select {
		case <-ctx.Done():
			errc <- ctx.Err()
		case <-p.release:
			errc <- nil
		}
	}()
	return out, errc
}

// TestRuntimeMaxRoundsTerminatesWithLength asserts the max_rounds
// termination policy (spec.md §4.4): reaching max_rounds without a
// stop/length/content_filter finish terminates with Finish{length}.
func TestRuntimeMaxRoundsTerminatesWithLength(t *testing.T) {
	dir := t.TempDir()
	def := echoToolDef(t, dir)
	registry := NewStaticRegistry([]models.ToolDefinition{def})

	toolRound := []models.Chunk{
		models.ToolCallStartChunk("call_1", "echo"),
		models.ToolCallDeltaChunk("call_1", `{"text":"hi"}`),
		models.ToolCallEndChunk("call_1"),
		models.FinishChunk(models.FinishToolCalls),
	}
	provider := &scriptedProvider{rounds: [][]models.Chunk{toolRound, toolRound, toolRound}}
	sessions := newMemSessions()
	rt := NewRuntime(provider, registry, NewExecutor(DefaultExecutorConfig()), sessions)

	opts := RunOptions{MaxRounds: 3, ToolBudget: 20}
	chunks, err := rt.Run(context.Background(), "s4", "hi", opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := drain(chunks)
	last := got[len(got)-1]
	if last.Kind != models.ChunkFinish || last.Reason != models.FinishLength {
		t.Fatalf("last chunk = %+v, want Finish{length}", last)
	}
}

func TestAggregatorInvalidToolArgsReportedAsError(t *testing.T) {
	agg := providers.NewAggregator()
	agg.Feed(models.ToolCallStartChunk("call_1", "echo"))
	agg.Feed(models.ToolCallDeltaChunk("call_1", `{"broken`))
	agg.Feed(models.ToolCallEndChunk("call_1"))
	if agg.Err() == "" {
		t.Fatalf("expected aggregator to record an error for invalid JSON arguments")
	}
}
