package agent

import (
	"context"
	"time"
)

// RunOptions parameterizes one agent run, per spec.md §4.4's
// run(session, user_input, options) signature.
type RunOptions struct {
	MaxRounds      int
	ToolBudget     int
	PerCallTimeout time.Duration
	Cancel         context.CancelFunc
}

// DefaultRunOptions returns conservative defaults.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		MaxRounds:      10,
		ToolBudget:      20,
		PerCallTimeout: 60 * time.Second,
	}
}
