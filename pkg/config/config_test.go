package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if cfg.Agent.MaxIterations != 8 {
		t.Errorf("MaxIterations = %d, want 8", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.ConfidenceThreshold != 85 {
		t.Errorf("ConfidenceThreshold = %d, want 85", cfg.Agent.ConfidenceThreshold)
	}
	if cfg.Agent.SynthesisWindow != 15 {
		t.Errorf("SynthesisWindow = %d, want 15", cfg.Agent.SynthesisWindow)
	}
	if cfg.Roles.Synthesizer.Model != "gemini-1.5-pro" {
		t.Errorf("synthesizer model = %s, want gemini-1.5-pro", cfg.Roles.Synthesizer.Model)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %s, want :8080", cfg.ListenAddr)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
agent:
  max_iterations: 3
  confidence_threshold: 70
roles:
  planner:
    adapter: anthropic
    model: claude-sonnet-4-20250514
server:
  listen_addr: ":9999"
`))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("MaxIterations = %d, want 3", cfg.Agent.MaxIterations)
	}
	if cfg.Roles.Planner.Adapter != "anthropic" {
		t.Errorf("planner adapter = %s, want anthropic", cfg.Roles.Planner.Adapter)
	}
	// Unspecified roles fall back to defaults.
	if cfg.Roles.Evaluator.Adapter != "google" {
		t.Errorf("evaluator adapter = %s, want google", cfg.Roles.Evaluator.Adapter)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %s, want :9999", cfg.ListenAddr)
	}
}

func TestEnvPrecedence(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "env-key")
	cfg, err := LoadFile(writeConfig(t, `
api_keys:
  tavily: file-key
`))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.TavilyAPIKey != "env-key" {
		t.Errorf("TavilyAPIKey = %s, want env-key", cfg.TavilyAPIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }},
		{"negative iterations", func(c *Config) { c.Agent.MaxIterations = -1 }},
		{"threshold over 100", func(c *Config) { c.Agent.ConfidenceThreshold = 101 }},
		{"negative threshold", func(c *Config) { c.Agent.ConfidenceThreshold = -5 }},
		{"zero window", func(c *Config) { c.Agent.SynthesisWindow = 0 }},
		{"zero question cap", func(c *Config) { c.Agent.MaxQuestionLen = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Agent: DefaultAgentConfig(), Roles: DefaultRoles()}
			tt.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestHasAdapter(t *testing.T) {
	cfg := &Config{GoogleAPIKey: "key"}
	if !cfg.HasAdapter("google") {
		t.Error("HasAdapter(google) should be true")
	}
	if cfg.HasAdapter("anthropic") {
		t.Error("HasAdapter(anthropic) should be false")
	}
	if cfg.HasAdapter("unknown") {
		t.Error("HasAdapter(unknown) should be false")
	}
}
