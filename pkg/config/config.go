// Package config loads application configuration from ~/.nexus/config.yaml
// with environment variables taking precedence. Validation failures are
// fatal at startup; a running agent never sees an invalid configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	TavilyAPIKey    string

	Agent AgentConfig
	Roles *RolesConfig

	ListenAddr  string
	EvidenceDir string
	ConfigDir   string
}

// AgentConfig holds the research loop settings. A run snapshots these at
// start; administrative changes apply to subsequent runs only.
type AgentConfig struct {
	MaxIterations       int `yaml:"max_iterations"`
	ConfidenceThreshold int `yaml:"confidence_threshold"`
	SynthesisWindow     int `yaml:"synthesis_window"`
	MinSourcesRequired  int `yaml:"min_sources_required"`
	MaxQuestionLen      int `yaml:"max_question_len"`
	SearchTimeoutMS     int `yaml:"search_timeout_ms"`
	GenerateTimeoutMS   int `yaml:"generate_timeout_ms"`
	EventBuffer         int `yaml:"event_buffer"`
}

// SearchTimeout returns the per-search deadline.
func (a AgentConfig) SearchTimeout() time.Duration {
	return time.Duration(a.SearchTimeoutMS) * time.Millisecond
}

// GenerateTimeout returns the per-generation deadline.
func (a AgentConfig) GenerateTimeout() time.Duration {
	return time.Duration(a.GenerateTimeoutMS) * time.Millisecond
}

// FileConfig represents the structure of ~/.nexus/config.yaml.
type FileConfig struct {
	APIKeys APIKeysConfig `yaml:"api_keys"`
	Agent   AgentConfig   `yaml:"agent"`
	Roles   *RolesConfig  `yaml:"roles"`
	Server  ServerConfig  `yaml:"server"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
	Tavily    string `yaml:"tavily"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	EvidenceDir string `yaml:"evidence_dir"`
}

// DefaultAgentConfig returns the default research loop settings.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations:       8,
		ConfidenceThreshold: 85,
		SynthesisWindow:     15,
		MinSourcesRequired:  3,
		MaxQuestionLen:      2000,
		SearchTimeoutMS:     30000,
		GenerateTimeoutMS:   60000,
		EventBuffer:         256,
	}
}

// Load reads configuration from the config file and environment variables.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return loadFrom(filepath.Join(configDir, "config.yaml"), configDir)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path, filepath.Dir(path))
}

func loadFrom(path, configDir string) (*Config, error) {
	fileConfig := readFileConfig(path)

	agent := DefaultAgentConfig()
	mergeAgent(&agent, fileConfig.Agent)

	roles := fileConfig.Roles
	if roles == nil {
		roles = DefaultRoles()
	} else {
		applyRoleDefaults(roles)
	}

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		TavilyAPIKey:    getEnvOrDefault("TAVILY_API_KEY", fileConfig.APIKeys.Tavily),
		Agent:           agent,
		Roles:           roles,
		ListenAddr:      getEnvOrDefault("NEXUS_LISTEN_ADDR", fileConfig.Server.ListenAddr),
		EvidenceDir:     getEnvOrDefault("NEXUS_EVIDENCE_DIR", fileConfig.Server.EvidenceDir),
		ConfigDir:       configDir,
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.EvidenceDir == "" {
		cfg.EvidenceDir = filepath.Join(configDir, "runs")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants. Violations are fatal at startup.
func (c *Config) Validate() error {
	a := c.Agent
	if a.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be > 0, got %d", a.MaxIterations)
	}
	if a.ConfidenceThreshold < 0 || a.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence_threshold must be in [0,100], got %d", a.ConfidenceThreshold)
	}
	if a.SynthesisWindow <= 0 {
		return fmt.Errorf("synthesis_window must be > 0, got %d", a.SynthesisWindow)
	}
	if a.MaxQuestionLen <= 0 {
		return fmt.Errorf("max_question_len must be > 0, got %d", a.MaxQuestionLen)
	}
	if c.Roles != nil {
		if err := c.Roles.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	default:
		return false
	}
}

// mergeAgent overlays non-zero file values on the defaults.
func mergeAgent(dst *AgentConfig, src AgentConfig) {
	if src.MaxIterations != 0 {
		dst.MaxIterations = src.MaxIterations
	}
	if src.ConfidenceThreshold != 0 {
		dst.ConfidenceThreshold = src.ConfidenceThreshold
	}
	if src.SynthesisWindow != 0 {
		dst.SynthesisWindow = src.SynthesisWindow
	}
	if src.MinSourcesRequired != 0 {
		dst.MinSourcesRequired = src.MinSourcesRequired
	}
	if src.MaxQuestionLen != 0 {
		dst.MaxQuestionLen = src.MaxQuestionLen
	}
	if src.SearchTimeoutMS != 0 {
		dst.SearchTimeoutMS = src.SearchTimeoutMS
	}
	if src.GenerateTimeoutMS != 0 {
		dst.GenerateTimeoutMS = src.GenerateTimeoutMS
	}
	if src.EventBuffer != 0 {
		dst.EventBuffer = src.EventBuffer
	}
}

// readFileConfig reads the config file, returning empty config if not found.
func readFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, cfg)
	return cfg
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".nexus")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
