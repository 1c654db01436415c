package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentcore/runtime/pkg/models"
)

// parseAllAtOnce runs every SSE payload line of a well-formed byte
// stream through ParseStreamChunk one line at a time, simulating the
// reference "no splitting" parse.
func parseAllAtOnce(t *testing.T, tr Transformer, raw string) []models.Chunk {
	t.Helper()
	var chunks []models.Chunk
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		c, ok, err := tr.ParseStreamChunk(payload)
		if err != nil {
			t.Fatalf("ParseStreamChunk() error = %v", err)
		}
		if ok {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// TestAssembleSSESplitInvariant asserts testable property 1: splitting
// a well-formed SSE byte stream at arbitrary TCP-read boundaries yields
// the same chunk sequence as parsing it one line at a time.
func TestAssembleSSESplitInvariant(t *testing.T) {
	raw := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	tr := OpenAITransformer{}
	want := parseAllAtOnce(t, tr, raw)

	for split := 1; split < len(raw); split++ {
		p := &Provider{Transformer: tr}
		srv := splitBodyServer(raw, split)
		defer srv.Close()

		resp, err := http.Get(srv.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		out := make(chan models.Chunk, 32)
		if err := p.assembleSSE(context.Background(), resp.Body, out); err != nil {
			t.Fatalf("assembleSSE() split=%d error = %v", split, err)
		}
		resp.Body.Close()
		close(out)

		var got []models.Chunk
		for c := range out {
			got = append(got, c)
		}
		if len(got) != len(want) {
			t.Fatalf("split=%d: got %d chunks, want %d", split, len(got), len(want))
		}
		for i := range want {
			if got[i].Kind != want[i].Kind || got[i].Text != want[i].Text || got[i].Reason != want[i].Reason {
				t.Fatalf("split=%d chunk %d = %+v, want %+v", split, i, got[i], want[i])
			}
		}
	}
}

// splitBodyServer serves raw as a response body delivered in two writes
// split at byte offset n, to exercise arbitrary TCP-read boundaries
// without actually controlling the kernel's read sizes.
func splitBodyServer(raw string, n int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		data := []byte(raw)
		if n > len(data) {
			n = len(data)
		}
		w.Write(data[:n])
		flusher.Flush()
		w.Write(data[n:])
		flusher.Flush()
	}))
}

// TestAggregatorToolCallArgumentsValidity asserts testable property 2:
// after aggregation, a tool call's arguments are valid JSON iff the
// concatenation of its deltas is valid JSON.
func TestAggregatorToolCallArgumentsValidity(t *testing.T) {
	cases := []struct {
		name    string
		deltas  []string
		wantErr bool
	}{
		{"valid", []string{"{\"t", "ext\":\"hi\"}"}, false},
		{"invalid", []string{"{\"unterminated"}, true},
		{"empty", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := NewAggregator()
			agg.Feed(models.ToolCallStartChunk("call_1", "echo"))
			for _, d := range tc.deltas {
				agg.Feed(models.ToolCallDeltaChunk("call_1", d))
			}
			agg.Feed(models.ToolCallEndChunk("call_1"))
			agg.Feed(models.FinishChunk(models.FinishToolCalls))

			result := agg.Result()
			if len(result.Message.ToolCalls) != 1 {
				t.Fatalf("expected 1 tool call, got %d", len(result.Message.ToolCalls))
			}
			args := result.Message.ToolCalls[0].Arguments
			valid := json.Valid(args)
			if valid == tc.wantErr {
				t.Fatalf("json.Valid(%q) = %v, want %v", string(args), valid, !tc.wantErr)
			}
			if tc.wantErr && agg.Err() == "" {
				t.Fatalf("expected aggregator error to be recorded for invalid JSON")
			}
		})
	}
}

// TestParseStreamChunkContinuationByIndex reproduces spec.md's S2
// scenario: the first tool-call delta carries id+name, the second
// carries only a continuation of arguments with no id, keyed instead
// by the backend's positional index. The provider's SSE assembler must
// still land both deltas on the same aggregated tool call.
func TestParseStreamChunkContinuationByIndex(t *testing.T) {
	raw := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"echo","arguments":"{\"t"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ext\":\"hi\"}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}` + "\n\n" +
		"data: [DONE]\n\n"

	p := &Provider{Transformer: OpenAITransformer{}}
	out := make(chan models.Chunk, 16)
	if err := p.assembleSSE(context.Background(), strings.NewReader(raw), out); err != nil {
		t.Fatalf("assembleSSE() error = %v", err)
	}
	close(out)

	agg := NewAggregator()
	for c := range out {
		agg.Feed(c)
	}
	result := agg.Result()
	if len(result.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d: %+v", len(result.Message.ToolCalls), result.Message.ToolCalls)
	}
	call := result.Message.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "echo" {
		t.Fatalf("got call %+v", call)
	}
	var args map[string]string
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v (%s)", err, call.Arguments)
	}
	if args["text"] != "hi" {
		t.Fatalf("args = %+v, want text=hi", args)
	}
}

// TestChatStreamRetriesOnceOnRateLimit asserts testable property 12: a
// 429 with Retry-After followed by success yields exactly one retry
// after at least the advertised delay, and a second 429 surfaces
// RateLimited to the caller instead of retrying again (spec.md S5).
func TestChatStreamRetriesOnceOnRateLimit(t *testing.T) {
	var attempts int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, TimeoutSeconds: 5}, OpenAITransformer{}, NoneAuth{}, nil)

	start := time.Now()
	chunks, errs := p.ChatStream(context.Background(), ChatRequest{Stream: true})
	var texts []string
	for c := range chunks {
		if c.Kind == models.ChunkContent {
			texts = append(texts, c.Text)
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected at least a 1s retry delay, took %s", time.Since(start))
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if len(texts) != 1 || texts[0] != "ok" {
		t.Fatalf("texts = %v, want [ok]", texts)
	}
}

// TestChatStreamSecondRateLimitSurfaces asserts that a second
// consecutive 429 is surfaced to the caller rather than retried again.
func TestChatStreamSecondRateLimitSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, TimeoutSeconds: 5}, OpenAITransformer{}, NoneAuth{}, nil)

	chunks, errs := p.ChatStream(context.Background(), ChatRequest{Stream: true})
	for range chunks {
	}
	err := <-errs
	if err == nil {
		t.Fatalf("expected RateLimited error to surface after second 429")
	}
	pe, ok := AsError(err)
	if !ok || pe.Kind != KindRateLimited {
		t.Fatalf("got %v, want KindRateLimited", err)
	}
}
