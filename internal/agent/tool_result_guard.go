package agent

import "github.com/agentcore/runtime/pkg/models"

// GuardToolResult enforces the deterministic tool-result envelope of
// spec.md §4.4: success=true yields the raw output verbatim; success=
// false always yields "error: " + error, even if the caller only
// populated Output. Narrowed from internal/agent/tool_result_guard.go's
// broader redaction/truncation policy (denylist, secret-pattern
// scrubbing, size cap) to the single concern spec.md actually requires
// here, since redaction policy is not part of this spec.
func GuardToolResult(result models.ToolResult) models.ToolResult {
	if result.Success {
		result.Error = ""
		return result
	}
	if result.Error == "" {
		result.Error = "unknown error"
	}
	result.Output = ""
	return result
}
