package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentcore/runtime/pkg/models"
)

// writeScript writes an executable shell-less script (a plain binary
// wrapper calling /bin/sh indirectly would violate spec.md §4.6's "no
// shell interpolation" rule for the executor itself; here we write a
// tiny POSIX shell script as the *tool's own implementation*, which is
// permitted since the executor invokes it directly via argv, never
// through `sh -c`).
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func echoToolDef(t *testing.T, dir string) models.ToolDefinition {
	t.Helper()
	script := writeScript(t, dir, "echo.sh", `echo -n "$ARG_TEXT"`)
	return models.ToolDefinition{
		Name: "echo",
		Implementation: models.Implementation{
			Command:      "echo.sh",
			ResolvedPath: script,
			SkillDir:     dir,
			Args: []models.ArgSpec{
				{Name: "text", Type: models.ArgString, Required: true},
			},
		},
	}
}

func TestExecutorSuccess(t *testing.T) {
	dir := t.TempDir()
	def := echoToolDef(t, dir)
	exec := NewExecutor(DefaultExecutorConfig())

	res, err := exec.Execute(context.Background(), def, json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || res.Output != "hi" {
		t.Fatalf("got %+v, want success output=hi", res)
	}
}

func TestExecutorMissingRequiredArg(t *testing.T) {
	dir := t.TempDir()
	def := echoToolDef(t, dir)
	exec := NewExecutor(DefaultExecutorConfig())

	res, err := exec.Execute(context.Background(), def, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Fatalf("expected validation failure, got success")
	}
}

func TestExecutorUnknownArgRejected(t *testing.T) {
	dir := t.TempDir()
	def := echoToolDef(t, dir)
	exec := NewExecutor(DefaultExecutorConfig())

	res, err := exec.Execute(context.Background(), def, json.RawMessage(`{"text":"hi","bogus":1}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Fatalf("expected unknown-argument rejection, got success")
	}
}

func TestExecutorRejectsCommandOutsideSkillDir(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	script := writeScript(t, outside, "escape.sh", "echo escaped")

	def := models.ToolDefinition{
		Name: "escape",
		Implementation: models.Implementation{
			Command:      "../escape.sh",
			ResolvedPath: script,
			SkillDir:     dir,
		},
	}
	exec := NewExecutor(DefaultExecutorConfig())

	res, err := exec.Execute(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Fatalf("expected sandbox rejection, got success")
	}
}

func TestExecutorTimeout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "sleep.sh", "sleep 5")
	def := models.ToolDefinition{
		Name: "slow",
		Implementation: models.Implementation{
			Command:      "sleep.sh",
			ResolvedPath: script,
			SkillDir:     dir,
		},
	}
	exec := NewExecutor(ExecutorConfig{DefaultTimeout: 50 * time.Millisecond, MaxConcurrency: 1, MaxOutputBytes: 1024})

	res, err := exec.Execute(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success || res.Error != "timeout" {
		t.Fatalf("got %+v, want success=false error=timeout", res)
	}
}

func TestExecutorOutputTruncation(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "loud.sh", `yes x | head -c 1000`)
	def := models.ToolDefinition{
		Name:           "loud",
		Implementation: models.Implementation{Command: "loud.sh", ResolvedPath: script, SkillDir: dir},
	}
	exec := NewExecutor(ExecutorConfig{DefaultTimeout: 5 * time.Second, MaxConcurrency: 1, MaxOutputBytes: 100})

	res, err := exec.Execute(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(res.Output) != 100 {
		t.Fatalf("output len = %d, want 100", len(res.Output))
	}
	if res.Error == "" {
		t.Fatalf("expected truncation to be noted in error field")
	}
}

func TestExecutorSeparatesStdoutAndStderr(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "diagnose.sh", `echo "not found" 1>&2; exit 1`)
	def := models.ToolDefinition{
		Name:           "diagnose",
		Implementation: models.Implementation{Command: "diagnose.sh", ResolvedPath: script, SkillDir: dir},
	}
	exec := NewExecutor(DefaultExecutorConfig())

	res, err := exec.Execute(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure, got success")
	}
	if res.Output != "" {
		t.Fatalf("Output = %q, want empty (nothing written to stdout)", res.Output)
	}
	if res.Error != "not found" {
		t.Fatalf("Error = %q, want the process's stderr text", res.Error)
	}
}

func TestGuardToolResultEnvelope(t *testing.T) {
	ok := GuardToolResult(models.ToolResult{Success: true, Output: "hi", Error: "stale"})
	if ok.Error != "" || ok.Envelope() != "hi" {
		t.Fatalf("got %+v", ok)
	}

	fail := GuardToolResult(models.ToolResult{Success: false, Error: "boom", Output: "leaked"})
	if fail.Output != "" || fail.Envelope() != "error: boom" {
		t.Fatalf("got %+v", fail)
	}

	failNoMsg := GuardToolResult(models.ToolResult{Success: false})
	if failNoMsg.Envelope() != "error: unknown error" {
		t.Fatalf("got %+v", failNoMsg)
	}
}
