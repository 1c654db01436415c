package config

// Masked is the sentinel a config CRUD response emits in place of a
// secret value, and the sentinel a CRUD request uses to mean "leave
// this field unchanged" — spec.md §6.1's preserve-on-empty semantics
// for the config endpoints, grounded on the redaction-by-replacement
// idiom of internal/artifacts/redaction.go (replace-in-place rather
// than omit-the-field, so the response shape never changes across a
// masked/unmasked read).
const Masked = "***MASKED***"

// Mask returns a copy of cfg with every secret-shaped field replaced by
// the Masked sentinel, safe to hand to an unauthenticated or read-only
// caller.
func Mask(cfg Config) Config {
	if cfg.Server.AdminToken != "" {
		cfg.Server.AdminToken = Masked
	}
	if cfg.Gateway.AuthToken != "" {
		cfg.Gateway.AuthToken = Masked
	}
	if len(cfg.LLM.Providers) > 0 {
		masked := make(map[string]ProviderConfig, len(cfg.LLM.Providers))
		for id, p := range cfg.LLM.Providers {
			masked[id] = maskProvider(p)
		}
		cfg.LLM.Providers = masked
	}
	return cfg
}

func maskProvider(p ProviderConfig) ProviderConfig {
	if p.Auth.Key != "" {
		p.Auth.Key = Masked
	}
	if p.Auth.Token != "" {
		p.Auth.Token = Masked
	}
	if p.Auth.ClientSecret != "" {
		p.Auth.ClientSecret = Masked
	}
	return p
}

// MergePreserveMasked applies patch onto base, except that any secret
// field in patch equal to Masked (or left as the Go zero value) keeps
// base's existing value instead of overwriting it — spec.md §6.1:
// "unspecified or ***MASKED*** values do not overwrite". The config
// reload handler uses it to merge each freshly loaded ProviderConfig
// over the running one.
func MergePreserveMasked(base, patch ProviderConfig) ProviderConfig {
	merged := patch
	if patch.Auth.Key == "" || patch.Auth.Key == Masked {
		merged.Auth.Key = base.Auth.Key
	}
	if patch.Auth.Token == "" || patch.Auth.Token == Masked {
		merged.Auth.Token = base.Auth.Token
	}
	if patch.Auth.ClientSecret == "" || patch.Auth.ClientSecret == Masked {
		merged.Auth.ClientSecret = base.Auth.ClientSecret
	}
	return merged
}
