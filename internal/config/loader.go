package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"mealgen/internal/common/fsutil"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr       string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel   string `json:"log_level" yaml:"log_level" toml:"log_level"`
	PrettyLogs bool   `json:"pretty_logs" yaml:"pretty_logs" toml:"pretty_logs"`

	Completion Completion `json:"completion" yaml:"completion" toml:"completion"`
	Image      Image      `json:"image" yaml:"image" toml:"image"`
	Pipeline   Pipeline   `json:"pipeline" yaml:"pipeline" toml:"pipeline"`
	Server     Server     `json:"server" yaml:"server" toml:"server"`
}

// Completion configures the structured-output LLM client.
type Completion struct {
	Provider       string   `json:"provider" yaml:"provider" toml:"provider"`
	BaseURL        string   `json:"base_url" yaml:"base_url" toml:"base_url"`
	Model          string   `json:"model" yaml:"model" toml:"model"`
	APIKeyEnv      string   `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`
	APIKey         string   `json:"api_key" yaml:"api_key" toml:"api_key"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	Temperature    *float64 `json:"temperature" yaml:"temperature" toml:"temperature"` // nil: client default
	MaxTokens      int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
}

// Image configures the text-to-image client and post-processing.
type Image struct {
	BaseURL        string `json:"base_url" yaml:"base_url" toml:"base_url"`
	Model          string `json:"model" yaml:"model" toml:"model"`
	APIKeyEnv      string `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`
	APIKey         string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Size           string `json:"size" yaml:"size" toml:"size"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	MaxDimension   int    `json:"max_dimension" yaml:"max_dimension" toml:"max_dimension"`
	JPEGQuality    int    `json:"jpeg_quality" yaml:"jpeg_quality" toml:"jpeg_quality"`
	Disabled       bool   `json:"disabled" yaml:"disabled" toml:"disabled"`
}

// Pipeline configures the orchestrator.
type Pipeline struct {
	RecipeCount            int  `json:"recipe_count" yaml:"recipe_count" toml:"recipe_count"`
	WaveTimeoutSeconds     int  `json:"wave_timeout_seconds" yaml:"wave_timeout_seconds" toml:"wave_timeout_seconds"`
	TaskTimeoutSeconds     int  `json:"task_timeout_seconds" yaml:"task_timeout_seconds" toml:"task_timeout_seconds"`
	EventBuffer            int  `json:"event_buffer" yaml:"event_buffer" toml:"event_buffer"`
	ContinueOnGroceryError bool `json:"continue_on_grocery_error" yaml:"continue_on_grocery_error" toml:"continue_on_grocery_error"`
}

// Server configures the HTTP surface.
type Server struct {
	MaxConcurrentRuns int      `json:"max_concurrent_runs" yaml:"max_concurrent_runs" toml:"max_concurrent_runs"`
	CORSEnabled       bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins       []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// StreamTimeoutSeconds bounds one generation stream; negative disables it.
	StreamTimeoutSeconds int `json:"stream_timeout_seconds" yaml:"stream_timeout_seconds" toml:"stream_timeout_seconds"`
}

// DefaultPath is tried when no --config flag is given.
const DefaultPath = "~/.config/mealgen/config.yaml"

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadOptional loads path, or DefaultPath when path is empty. A missing
// default file is not an error and yields a zero Config.
func LoadOptional(path string) (Config, error) {
	if path != "" {
		return Load(path)
	}
	p, err := fsutil.ExpandHome(DefaultPath)
	if err != nil || !fsutil.PathExists(p) {
		return Config{}, nil
	}
	return Load(p)
}
