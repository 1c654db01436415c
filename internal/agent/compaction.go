package agent

import (
	"context"
	"strings"

	"github.com/agentcore/runtime/pkg/models"
)

// compactionMarkerKey is set in a summary message's Metadata so a later
// compaction pass can recognize it and keep the contract of spec.md
// §4.4.1 idempotent: re-compressing a compressed conversation must not
// further shrink it below the floor.
const compactionMarkerKey = "compaction_summary"

// Summarizer produces a condensed system message covering the given
// messages. It is itself an LLM call through the same provider with a
// distinct, short prompt (spec.md §4.4.1); the loop supplies the
// closure so this package stays provider-agnostic.
type Summarizer func(ctx context.Context, messages []models.Message) (string, error)

// CompactionConfig configures the context-compression pass, grounded
// on the existence of internal/agent/compaction.go as a distinct
// pipeline stage in the teacher, though the policy itself (token
// threshold + keep-recent window) is written fresh against spec.md's
// idempotence requirement rather than the teacher's flush-confirmation
// workflow, which is out of scope here.
type CompactionConfig struct {
	// TokenThreshold is the aggregate estimated-token count above which
	// compaction runs.
	TokenThreshold int
	// KeepRecent is the number of most-recent messages retained verbatim.
	KeepRecent int
	// FloorMessages is the minimum message count compaction will never
	// shrink below, guaranteeing idempotence.
	FloorMessages int
}

// DefaultCompactionConfig returns reasonable defaults.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		TokenThreshold: 6000,
		KeepRecent:     10,
		FloorMessages:  4,
	}
}

// EstimateTokens is a cheap token-count approximation (≈4 chars/token),
// sufficient for a threshold check, not for billing.
func EstimateTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content()) / 4
	}
	return total
}

// Compact applies the compression policy of spec.md §4.4.1. It returns
// the input unchanged if the threshold is not crossed, if there is
// nothing old enough to summarize, or if the conversation already
// carries a compaction summary message as its first message (the
// idempotence guard).
func Compact(ctx context.Context, cfg CompactionConfig, messages []models.Message, summarize Summarizer) ([]models.Message, error) {
	if len(messages) <= cfg.FloorMessages {
		return messages, nil
	}
	if EstimateTokens(messages) < cfg.TokenThreshold {
		return messages, nil
	}
	if alreadyCompacted(messages) {
		return messages, nil
	}

	keep := cfg.KeepRecent
	if keep <= 0 || keep >= len(messages) {
		return messages, nil
	}
	splitAt := len(messages) - keep
	if splitAt < 1 {
		return messages, nil
	}

	older := messages[:splitAt]
	recent := messages[splitAt:]

	summary, err := summarize(ctx, older)
	if err != nil {
		return nil, err
	}

	summaryMsg := models.Message{
		Role: models.RoleSystem,
		Text: summary,
		Metadata: map[string]any{
			compactionMarkerKey: true,
		},
	}

	out := make([]models.Message, 0, 1+len(recent))
	out = append(out, summaryMsg)
	out = append(out, recent...)

	if len(out) < cfg.FloorMessages {
		return messages, nil
	}
	return out, nil
}

func alreadyCompacted(messages []models.Message) bool {
	if len(messages) == 0 {
		return false
	}
	first := messages[0]
	if first.Role != models.RoleSystem || first.Metadata == nil {
		return false
	}
	v, ok := first.Metadata[compactionMarkerKey]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// DefaultSummaryPrompt is the short, distinct prompt sent to the
// summarizer LLM call.
const DefaultSummaryPrompt = "Summarize the following conversation history in a few sentences, preserving facts and decisions a future turn would need. Do not include tool call mechanics."

// BuildSummaryRequest renders the messages being dropped into a single
// user-role message for the summarizer call, so the caller's
// Summarizer can hand this straight to a provider.
func BuildSummaryRequest(older []models.Message) string {
	var sb strings.Builder
	for _, m := range older {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content())
		sb.WriteString("\n")
	}
	return sb.String()
}
