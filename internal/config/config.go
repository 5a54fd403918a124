// Package config provides functionality for parsing and validating
// genie configuration files (JSON/YAML).
package config

import (
	"path/filepath"
	"time"

	"github.com/csvquerygenie/genie/internal/errhandling"
	"github.com/csvquerygenie/genie/internal/pathutil"
	"github.com/csvquerygenie/genie/pkg/tabular"
)

// Generator types
const (
	GeneratorChat   = "chat"
	GeneratorScript = "script"
	GeneratorStatic = "static"
)

// Config is the full runtime configuration.
type Config struct {
	SchemaVersion string          `json:"schemaVersion,omitempty"`
	Server        ServerConfig    `json:"server"`
	Parser        ParserConfig    `json:"parser"`
	Filter        FilterConfig    `json:"filter"`
	Generator     GeneratorConfig `json:"generator"`
	Store         StoreConfig     `json:"store"`
	Logging       LoggingConfig   `json:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddress  string          `json:"listenAddress"`
	MaxBodyBytes   int64           `json:"maxBodyBytes"`
	ReadTimeoutMs  int             `json:"readTimeoutMs"`
	WriteTimeoutMs int             `json:"writeTimeoutMs"`
	RateLimit      RateLimitConfig `json:"rateLimit"`
}

// RateLimitConfig is a token bucket; zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond int `json:"requestsPerSecond"`
	Burst             int `json:"burst"`
}

// ParserConfig configures CSV parsing.
type ParserConfig struct {
	// HeaderRow is the 1-based header line
	HeaderRow int `json:"headerRow"`
}

// FilterConfig configures the optional expression filter applied after the
// generated conditions.
type FilterConfig struct {
	Expression string `json:"expression,omitempty"`
	OnError    string `json:"onError,omitempty"`
}

// GeneratorConfig selects and configures the filter generator.
type GeneratorConfig struct {
	// Type is chat, script or static
	Type string `json:"type"`

	// chat
	Endpoint    string                   `json:"endpoint,omitempty"`
	Model       string                   `json:"model,omitempty"`
	APIKey      string                   `json:"apiKey,omitempty"`
	APIKeyEnv   string                   `json:"apiKeyEnv,omitempty"`
	TimeoutMs   int                      `json:"timeoutMs,omitempty"`
	MaxAttempts int                      `json:"maxAttempts,omitempty"`
	Retry       *errhandling.RetryConfig `json:"retry,omitempty"`

	// script
	Script     string `json:"script,omitempty"`
	ScriptFile string `json:"scriptFile,omitempty"`

	// static
	Conditions []tabular.FilterCondition `json:"conditions,omitempty"`
}

// StoreConfig bounds the dataset store.
type StoreConfig struct {
	MaxEntries int `json:"maxEntries"`
	TTLSeconds int `json:"ttlSeconds"`
}

// LoggingConfig configures the logger and its optional sinks.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file,omitempty"`
	SeqURL string `json:"seqUrl,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:  "127.0.0.1:8000",
			MaxBodyBytes:   10 << 20,
			ReadTimeoutMs:  60000,
			WriteTimeoutMs: 60000,
		},
		Parser: ParserConfig{HeaderRow: 1},
		Generator: GeneratorConfig{
			Type:        GeneratorChat,
			Endpoint:    "https://api.groq.com/openai/v1",
			Model:       "openai/gpt-oss-20b",
			APIKeyEnv:   "GROQ_API_KEY",
			TimeoutMs:   30000,
			MaxAttempts: 3,
		},
		Store: StoreConfig{
			MaxEntries: 100,
			TTLSeconds: 3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load parses and validates the file at path and decodes it over Default.
// Relative file paths inside the configuration are resolved against the
// directory of path. The returned Config is nil whenever result is not valid.
func Load(path string) (*Config, *Result) {
	result := ParseConfig(path)
	if !result.IsValid() {
		return nil, result
	}
	cfg, err := Convert(result.Data)
	if err != nil {
		result.ValidationErrors = append(result.ValidationErrors, ValidationError{
			Path:    "/",
			Type:    "decode",
			Message: err.Error(),
		})
		return nil, result
	}

	baseDir := filepath.Dir(path)
	resolve := func(pointer string, target *string) {
		if *target == "" {
			return
		}
		resolved, err := pathutil.Resolve(baseDir, *target)
		if err != nil {
			result.ValidationErrors = append(result.ValidationErrors, ValidationError{
				Path:    pointer,
				Type:    "path",
				Message: err.Error(),
			})
			return
		}
		*target = resolved
	}
	resolve("/generator/scriptFile", &cfg.Generator.ScriptFile)
	resolve("/logging/file", &cfg.Logging.File)
	if len(result.ValidationErrors) > 0 {
		return nil, result
	}
	return cfg, result
}

// ReadTimeout returns the server read timeout.
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the server write timeout.
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// Timeout returns the generator request timeout.
func (c GeneratorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// TTL returns the dataset time-to-live.
func (c StoreConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
