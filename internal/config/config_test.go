package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcored.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  bogus_field: true
storage:
  path: /tmp/agentcored
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesPortRange(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 70000
storage:
  path: /tmp/agentcored
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Fatalf("expected port validation error, got %v", err)
	}
}

func TestLoadValidatesGatewayBind(t *testing.T) {
	path := writeConfig(t, `
gateway:
  enabled: true
  bind: "not-a-bind-address"
storage:
  path: /tmp/agentcored
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "gateway.bind") {
		t.Fatalf("expected bind validation error, got %v", err)
	}
}

func TestLoadRequiresStoragePath(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "storage.path") {
		t.Fatalf("expected storage.path validation error, got %v", err)
	}
}

func TestLoadValidatesAuthType(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/agentcored
llm:
  default_provider: test
  providers:
    test:
      auth:
        type: carrier_pigeon
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "auth.type") {
		t.Fatalf("expected auth.type validation error, got %v", err)
	}
}

func TestLoadExpandsEnvAndHome(t *testing.T) {
	t.Setenv("AGENTCORED_TEST_HOST", "127.0.0.1")
	path := writeConfig(t, `
server:
  host: ${AGENTCORED_TEST_HOST}
storage:
  path: ~/agentcored-data
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("Server.Host = %q, want expanded env value", cfg.Server.Host)
	}
	home, _ := os.UserHomeDir()
	if !strings.HasPrefix(cfg.Storage.Path, home) {
		t.Fatalf("Storage.Path = %q, want expanded under home %q", cfg.Storage.Path, home)
	}
}

func TestMaskHidesSecretsAndMergePreservesOnMasked(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{AdminToken: "s3cr3t"},
		LLM: LLMConfig{
			Providers: map[string]ProviderConfig{
				"openai": {Auth: AuthConfig{Type: "api_key", Key: "sk-live-abc"}},
			},
		},
	}

	masked := Mask(cfg)
	if masked.Server.AdminToken != Masked {
		t.Fatalf("AdminToken not masked: %q", masked.Server.AdminToken)
	}
	if masked.LLM.Providers["openai"].Auth.Key != Masked {
		t.Fatalf("provider key not masked: %q", masked.LLM.Providers["openai"].Auth.Key)
	}

	patch := ProviderConfig{Auth: AuthConfig{Type: "api_key", Key: Masked}}
	merged := MergePreserveMasked(cfg.LLM.Providers["openai"], patch)
	if merged.Auth.Key != "sk-live-abc" {
		t.Fatalf("MergePreserveMasked overwrote a masked key: %q", merged.Auth.Key)
	}
}
