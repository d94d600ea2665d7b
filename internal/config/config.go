// Package config loads formcrew settings from formcrew.yml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the worker and CLI need.
type Config struct {
	Database   DatabaseConfig    `yaml:"database"`
	Poll       PollConfig        `yaml:"poll"`
	LLM        LLMConfig         `yaml:"llm"`
	Memory     MemoryConfig      `yaml:"memory"`
	Documents  DocumentsConfig   `yaml:"documents"`
	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty"`
	Events     EventsConfig      `yaml:"events"`
	Images     ImagesConfig      `yaml:"images"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Log        LogConfig         `yaml:"log"`
	Flow       FlowConfig        `yaml:"flow"`
}

// DatabaseConfig selects the work item store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn"`
}

// PollConfig controls the queue pollers.
type PollConfig struct {
	TodoInterval        time.Duration `yaml:"todo_interval"`
	FeedbackInterval    time.Duration `yaml:"feedback_interval"`
	CancelCheckInterval time.Duration `yaml:"cancel_check_interval"`
	Isolate             bool          `yaml:"isolate"` // run each flow in a child worker process; needs kuzu memory and no feedback poller
	Feedback            bool          `yaml:"feedback"`
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider      string        `yaml:"provider"` // "genai" or "a2a"
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url,omitempty"` // overrides the Gemini API endpoint
	A2AEndpoint   string        `yaml:"a2a_endpoint"`
	Temperature   float32       `yaml:"temperature"`
	MaxToolRounds int           `yaml:"max_tool_rounds"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MemoryConfig controls agent long-term memory and knowledge search filtering.
type MemoryConfig struct {
	Backend    string  `yaml:"backend"` // "kuzu" or "memory"
	Path       string  `yaml:"path"`
	Threshold  float64 `yaml:"threshold"`
	MinResults int     `yaml:"min_results"`
	Limit      int     `yaml:"limit"`
}

// DocumentsConfig points at the document retrieval service.
type DocumentsConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MCPServerConfig is an external MCP server whose tools agents may request by name.
type MCPServerConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
}

// EventsConfig selects observability sinks.
type EventsConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
	Stream   string `yaml:"stream"`
	Table    bool   `yaml:"table"` // also insert into the events table
	Buffer   int    `yaml:"buffer"`
}

// ImagesConfig controls generated-image spooling and upload.
type ImagesConfig struct {
	SpoolDir      string `yaml:"spool_dir"`
	Bucket        string `yaml:"bucket,omitempty"`
	Region        string `yaml:"region,omitempty"`
	PublicBaseURL string `yaml:"public_base_url,omitempty"`
	PublishDir    string `yaml:"publish_dir,omitempty"` // directory uploader when no bucket is set
}

// MetricsConfig controls the HTTP listener for /metrics and /healthz.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// FlowConfig tunes flow execution.
type FlowConfig struct {
	MaxParallelSections int `yaml:"max_parallel_sections"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "formcrew.db"},
		Poll: PollConfig{
			TodoInterval:        7 * time.Second,
			FeedbackInterval:    10 * time.Second,
			CancelCheckInterval: 5 * time.Second,
			Feedback:            true,
		},
		LLM: LLMConfig{
			Provider:      "genai",
			Model:         "gemini-2.5-flash",
			Temperature:   0.1,
			MaxToolRounds: 8,
			Timeout:       10 * time.Minute,
		},
		Memory: MemoryConfig{
			Backend:    "memory",
			Threshold:  0.5,
			MinResults: 5,
			Limit:      20,
		},
		Documents: DocumentsConfig{Timeout: 30 * time.Second},
		Events:    EventsConfig{Stream: "formcrew:events", Buffer: 256},
		Images:    ImagesConfig{SpoolDir: filepath.Join(os.TempDir(), "formcrew-images")},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads formcrew.yml or formcrew.yaml from dir on top of Default.
// A missing file is not an error. ${VAR} references are expanded from the
// environment before parsing, and secret overrides are applied afterwards.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"formcrew.yml", "formcrew.yaml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	cfg := Default()
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads the configuration at path on top of Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FORMCREW_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("FORMCREW_REDIS_URL"); v != "" {
		c.Events.RedisURL = v
	}
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.LLM.Provider {
	case "genai":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm.api_key (or GEMINI_API_KEY) is required for the genai provider"))
		}
	case "a2a":
		if c.LLM.A2AEndpoint == "" {
			errs = append(errs, errors.New("llm.a2a_endpoint is required for the a2a provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be genai or a2a, got %q", c.LLM.Provider))
	}
	switch c.Memory.Backend {
	case "memory", "kuzu":
	default:
		errs = append(errs, fmt.Errorf("memory.backend must be memory or kuzu, got %q", c.Memory.Backend))
	}
	if c.Memory.Threshold < 0 || c.Memory.Threshold > 1 {
		errs = append(errs, fmt.Errorf("memory.threshold must be within [0,1], got %v", c.Memory.Threshold))
	}
	if c.Poll.Isolate {
		// Worker processes open memory themselves. Only an on-disk store is
		// seen by them, and kuzu admits one read-write process at a time.
		switch {
		case c.Memory.Backend != "kuzu":
			errs = append(errs, fmt.Errorf("poll.isolate requires memory.backend kuzu, got %q", c.Memory.Backend))
		case c.Poll.Feedback:
			errs = append(errs, errors.New("poll.isolate with memory.backend kuzu requires poll.feedback false"))
		}
	}
	if c.Poll.TodoInterval <= 0 || c.Poll.FeedbackInterval <= 0 || c.Poll.CancelCheckInterval <= 0 {
		errs = append(errs, errors.New("poll intervals must be positive"))
	}
	return errors.Join(errs...)
}
