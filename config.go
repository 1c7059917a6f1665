package cropsight

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cropsight/cropsight/detector"
)

// Config is the root configuration. Thresholds, timeouts, and provider order
// are all named values here rather than literals at call sites.
type Config struct {
	// DBPath is the sqlite file backing the prototype store. Empty means an
	// in-memory store that is lost on exit.
	DBPath string `yaml:"db_path"`

	LogLevel   string `yaml:"log_level"`
	MaxImageMB int    `yaml:"max_image_mb"`

	Encoder    EncoderConfig      `yaml:"encoder"`
	Providers  []ProviderConfig   `yaml:"providers"`
	Enrichment EnrichmentConfig   `yaml:"enrichment"`
	RiskBands  detector.RiskBands `yaml:"risk_bands"`
}

// EncoderConfig selects and configures the embedding generator backend.
type EncoderConfig struct {
	// Backend is "onnx" (local model) or "remote" (encoder HTTP service).
	Backend string `yaml:"backend"`

	// ONNX backend settings.
	ModelPath string `yaml:"model_path"`

	// Remote backend settings.
	Endpoint string `yaml:"endpoint"`

	Dim         int `yaml:"dim"`
	TimeoutSecs int `yaml:"timeout_secs"`
}

// ProviderConfig configures one entry of the detection chain. Order in the
// config is the order providers are tried.
type ProviderConfig struct {
	// Name is "local-prototype", "gemini", or "openai".
	Name        string `yaml:"name"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Model       string `yaml:"model,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
}

// Timeout returns the provider attempt budget.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSecs <= 0 {
		return DefaultProviderTimeout
	}
	return time.Duration(p.TimeoutSecs) * time.Second
}

// EnrichmentConfig configures the knowledge generation gate.
type EnrichmentConfig struct {
	// Generator is "gemini" or empty to disable enrichment.
	Generator string `yaml:"generator"`

	// ConfidenceThreshold: detections below it are always enriched.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	TimeoutSecs int    `yaml:"timeout_secs"`
	Model       string `yaml:"model,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
}

func (e EnrichmentConfig) Timeout() time.Duration {
	if e.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.TimeoutSecs) * time.Second
}

// LoadConfig reads a config from path. A missing file returns defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns the conventional setup: local prototypes first, then
// Gemini vision, with Gemini-backed enrichment.
func DefaultConfig() *Config {
	cfg := &Config{
		DBPath:     "./cropsight.db",
		LogLevel:   "info",
		MaxImageMB: 10,
		Encoder: EncoderConfig{
			Backend:  "remote",
			Endpoint: "http://localhost:8001",
		},
		Providers: []ProviderConfig{
			{Name: "local-prototype", TimeoutSecs: 15},
			{Name: "gemini", TimeoutSecs: 30},
		},
		Enrichment: EnrichmentConfig{
			Generator: "gemini",
		},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxImageMB == 0 {
		cfg.MaxImageMB = 10
	}
	if cfg.Encoder.Dim == 0 {
		cfg.Encoder.Dim = 512
	}
	if cfg.Encoder.TimeoutSecs == 0 {
		cfg.Encoder.TimeoutSecs = 30
	}
	if cfg.Enrichment.ConfidenceThreshold == 0 {
		cfg.Enrichment.ConfidenceThreshold = DefaultEnrichThreshold
	}
	if cfg.Enrichment.Model == "" {
		cfg.Enrichment.Model = "gemini-2.0-flash"
	}
	if cfg.Enrichment.APIKeyEnv == "" {
		cfg.Enrichment.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.RiskBands == (detector.RiskBands{}) {
		cfg.RiskBands = detector.DefaultRiskBands
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		switch p.Name {
		case "gemini":
			if p.Model == "" {
				p.Model = "gemini-2.0-flash"
			}
			if p.APIKeyEnv == "" {
				p.APIKeyEnv = "GEMINI_API_KEY"
			}
		case "openai":
			if p.Model == "" {
				p.Model = "gpt-4o-mini"
			}
			if p.APIKeyEnv == "" {
				p.APIKeyEnv = "OPENAI_API_KEY"
			}
		}
	}
}
