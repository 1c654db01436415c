package config

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, environment-expands, and validates the config file at path.
// Grounded on internal/config/loader.go's ExpandEnv-then-decode pipeline;
// the teacher's $include directive and JSON5 support are dropped (no
// component in this spec needs multi-file config composition).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	expandHomePaths(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandHomePaths resolves a leading "~" in path-shaped fields to the
// user's home directory, per spec.md §6.3.
func expandHomePaths(cfg *Config) {
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	for i, dir := range cfg.Skills.Directories {
		cfg.Skills.Directories[i] = expandHome(dir)
	}
	for id, p := range cfg.LLM.Providers {
		if p.Auth.CachePath != "" {
			p.Auth.CachePath = expandHome(p.Auth.CachePath)
			cfg.LLM.Providers[id] = p
		}
	}
}

func expandHome(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// Validate enforces spec.md §6.4's essential constraints: port range,
// bind shape, non-empty/null-byte-free paths, and enum membership.
func Validate(cfg *Config) error {
	if cfg.Server.Port != 0 {
		if err := validatePort(cfg.Server.Port); err != nil {
			return fmt.Errorf("server.port: %w", err)
		}
	}
	if cfg.Gateway.Enabled {
		if err := validateBind(cfg.Gateway.Bind); err != nil {
			return fmt.Errorf("gateway.bind: %w", err)
		}
	}
	if err := validateNoNullBytes("storage.path", cfg.Storage.Path); err != nil {
		return err
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path: must not be empty")
	}
	if cfg.Storage.Type != "" && cfg.Storage.Type != "file" {
		return fmt.Errorf("storage.type: unsupported backend %q", cfg.Storage.Type)
	}
	for _, dir := range cfg.Skills.Directories {
		if err := validateNoNullBytes("skills.directories", dir); err != nil {
			return err
		}
		if dir == "" {
			return fmt.Errorf("skills.directories: entries must not be empty")
		}
	}
	if err := validateLogLevel(cfg.Logging.Level); err != nil {
		return err
	}
	for id, p := range cfg.LLM.Providers {
		if err := validateAuthType(p.Auth.Type); err != nil {
			return fmt.Errorf("llm.providers.%s.auth.type: %w", id, err)
		}
	}
	if cfg.Agent.ConcurrentRunPolicy != "" &&
		cfg.Agent.ConcurrentRunPolicy != "cancel" &&
		cfg.Agent.ConcurrentRunPolicy != "reject" {
		return fmt.Errorf("agent.concurrent_run_policy: must be %q or %q", "cancel", "reject")
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateBind(bind string) error {
	host, portStr, err := net.SplitHostPort(bind)
	if err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	return validatePort(port)
}

func validateNoNullBytes(field, value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s: must not contain a null byte", field)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "error": true,
}

func validateLogLevel(level string) error {
	if !validLogLevels[strings.ToLower(level)] {
		return fmt.Errorf("logging.level: unknown level %q", level)
	}
	return nil
}

var validAuthTypes = map[string]bool{
	"": true, "api_key": true, "bearer": true, "device_code": true, "none": true,
}

func validateAuthType(t string) error {
	if !validAuthTypes[t] {
		return fmt.Errorf("must be one of api_key|bearer|device_code|none, got %q", t)
	}
	return nil
}
