package gateway

import (
	"testing"

	"github.com/agentcore/runtime/pkg/models"
)

func TestChunkToServerMessage(t *testing.T) {
	tests := []struct {
		name  string
		chunk models.Chunk
		want  string
	}{
		{"content becomes AgentToken", models.ContentChunk("hi"), ServerAgentToken},
		{"tool call start", models.ToolCallStartChunk("c1", "search"), ServerAgentToolStart},
		{"tool call end", models.ToolCallEndChunk("c1"), ServerAgentToolComplete},
		{"finish becomes AgentComplete", models.FinishChunk(models.FinishStop), ServerAgentComplete},
		{"error chunk", models.ErrorChunk("boom"), ServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := chunkToServerMessage("sess-1", tt.chunk)
			if msg.Type != tt.want {
				t.Fatalf("Type = %q, want %q", msg.Type, tt.want)
			}
			if msg.SessionID != "sess-1" {
				t.Fatalf("SessionID = %q, want sess-1", msg.SessionID)
			}
		})
	}
}

func TestAgentToolCompleteMessageCarriesOutcome(t *testing.T) {
	msg := agentToolCompleteMessage("sess-1", "c1", "search", false, "not found")
	if msg.Success == nil || *msg.Success {
		t.Fatalf("Success = %v, want pointer to false", msg.Success)
	}
	if msg.Output != "not found" {
		t.Fatalf("Output = %q, want %q", msg.Output, "not found")
	}
}
