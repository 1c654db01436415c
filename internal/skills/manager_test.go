package skills

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const manifestV1 = `---
name: alpha
description: version one
tools:
  - name: t1
    description: tool one
    command: run.sh
---
`

const manifestV2NoTools = `---
name: alpha
description: version two, tool removed
---
`

func writeManagerSkill(t *testing.T, root, name, manifest string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SkillFilename), []byte(manifest), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return dir
}

func TestDiscoverLoadsAndPublishesTools(t *testing.T) {
	root := t.TempDir()
	writeManagerSkill(t, root, "alpha", manifestV1)

	registry := NewRegistry()
	mgr := NewManager(root, registry, slog.Default())
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if _, ok := registry.Get("t1"); !ok {
		t.Fatalf("expected tool t1 in registry after discover")
	}
}

// TestDiscoverIsIdempotent asserts testable property 9: running the
// skill loader twice on the same directory yields identical registry
// snapshots.
func TestDiscoverIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeManagerSkill(t, root, "alpha", manifestV1)

	registry := NewRegistry()
	mgr1 := NewManager(root, registry, slog.Default())
	if err := mgr1.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	first := registry.List()

	registry2 := NewRegistry()
	mgr2 := NewManager(root, registry2, slog.Default())
	if err := mgr2.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	second := registry2.List()

	if len(first) != len(second) || len(first) != 1 {
		t.Fatalf("first=%d second=%d, want 1 each", len(first), len(second))
	}
	if first[0].Name != second[0].Name {
		t.Fatalf("first=%+v second=%+v", first[0], second[0])
	}
}

// TestHotReloadSwapsAtomicallyWithoutTearingOldSnapshot asserts
// testable property 5: a hot-reload that removes a tool never affects a
// reference to the registry taken before the swap.
func TestHotReloadSwapsAtomicallyWithoutTearingOldSnapshot(t *testing.T) {
	root := t.TempDir()
	writeManagerSkill(t, root, "alpha", manifestV1)

	registry := NewRegistry()
	mgr := NewManager(root, registry, slog.Default())
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	// Simulate an in-flight agent run that captured the pre-swap list.
	preSwap := registry.List()
	if len(preSwap) != 1 {
		t.Fatalf("expected 1 tool pre-swap, got %d", len(preSwap))
	}

	if err := mgr.StartWatching(); err != nil {
		t.Fatalf("StartWatching() error = %v", err)
	}
	defer mgr.Close()

	// Rewrite the manifest to drop the tool.
	skillDir := filepath.Join(root, "alpha")
	if err := os.WriteFile(filepath.Join(skillDir, SkillFilename), []byte(manifestV2NoTools), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := registry.Get("t1"); !ok {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, ok := registry.Get("t1"); ok {
		t.Fatalf("expected t1 to be gone from the current registry after hot reload")
	}

	// The snapshot the "in-flight run" captured before the swap is
	// unaffected — no tearing.
	if len(preSwap) != 1 || preSwap[0].Name != "t1" {
		t.Fatalf("pre-swap snapshot was mutated: %+v", preSwap)
	}
}

func TestSystemPromptsConcatenatesBodies(t *testing.T) {
	root := t.TempDir()
	writeManagerSkill(t, root, "alpha", "---\nname: alpha\ndescription: d\n---\nAlpha prompt.\n")
	writeManagerSkill(t, root, "beta", "---\nname: beta\ndescription: d\n---\nBeta prompt.\n")

	registry := NewRegistry()
	mgr := NewManager(root, registry, slog.Default())
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	prompt := mgr.SystemPrompts()
	if prompt == "" {
		t.Fatalf("expected non-empty combined prompt")
	}
}
