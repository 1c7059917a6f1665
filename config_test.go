package cropsight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cropsight/cropsight/detector"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	if expected, actual := "./cropsight.db", cfg.DBPath; expected != actual {
		t.Errorf("Expected db path %q, got %q", expected, actual)
	}
	if expected, actual := 512, cfg.Encoder.Dim; expected != actual {
		t.Errorf("Expected dim %d, got %d", expected, actual)
	}
	if expected, actual := 2, len(cfg.Providers); expected != actual {
		t.Fatalf("Expected %d providers, got %d", expected, actual)
	}
	if expected, actual := "local-prototype", cfg.Providers[0].Name; expected != actual {
		t.Errorf("Expected first provider %q, got %q", expected, actual)
	}
	if expected, actual := DefaultEnrichThreshold, cfg.Enrichment.ConfidenceThreshold; expected != actual {
		t.Errorf("Expected threshold %f, got %f", expected, actual)
	}
	if expected, actual := detector.DefaultRiskBands, cfg.RiskBands; expected != actual {
		t.Errorf("Expected default risk bands, got %+v", actual)
	}
}

func TestLoadConfig(t *testing.T) {
	const doc = `
db_path: /var/lib/cropsight/protos.db
log_level: debug
max_image_mb: 4
encoder:
  backend: onnx
  model_path: /opt/models/clip.onnx
providers:
  - name: local-prototype
    timeout_secs: 5
  - name: gemini
  - name: openai
    model: gpt-4o
enrichment:
  generator: gemini
  confidence_threshold: 0.7
  timeout_secs: 20
`
	path := filepath.Join(t.TempDir(), "cropsight.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	if expected, actual := "/var/lib/cropsight/protos.db", cfg.DBPath; expected != actual {
		t.Errorf("Expected db path %q, got %q", expected, actual)
	}
	if expected, actual := "onnx", cfg.Encoder.Backend; expected != actual {
		t.Errorf("Expected backend %q, got %q", expected, actual)
	}
	if expected, actual := 4, cfg.MaxImageMB; expected != actual {
		t.Errorf("Expected max image %d MB, got %d", expected, actual)
	}

	if expected, actual := 3, len(cfg.Providers); expected != actual {
		t.Fatalf("Expected %d providers, got %d", expected, actual)
	}
	if expected, actual := 5*time.Second, cfg.Providers[0].Timeout(); expected != actual {
		t.Errorf("Expected timeout %s, got %s", expected, actual)
	}
	// Unset provider timeout falls back to the default budget
	if expected, actual := DefaultProviderTimeout, cfg.Providers[1].Timeout(); expected != actual {
		t.Errorf("Expected timeout %s, got %s", expected, actual)
	}
	// Per-provider defaults fill in model and key env
	if expected, actual := "gemini-2.0-flash", cfg.Providers[1].Model; expected != actual {
		t.Errorf("Expected model %q, got %q", expected, actual)
	}
	if expected, actual := "GEMINI_API_KEY", cfg.Providers[1].APIKeyEnv; expected != actual {
		t.Errorf("Expected key env %q, got %q", expected, actual)
	}
	// An explicit model is kept
	if expected, actual := "gpt-4o", cfg.Providers[2].Model; expected != actual {
		t.Errorf("Expected model %q, got %q", expected, actual)
	}
	if expected, actual := "OPENAI_API_KEY", cfg.Providers[2].APIKeyEnv; expected != actual {
		t.Errorf("Expected key env %q, got %q", expected, actual)
	}

	if expected, actual := 0.7, cfg.Enrichment.ConfidenceThreshold; expected != actual {
		t.Errorf("Expected threshold %f, got %f", expected, actual)
	}
	if expected, actual := 20*time.Second, cfg.Enrichment.Timeout(); expected != actual {
		t.Errorf("Expected enrichment timeout %s, got %s", expected, actual)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cropsight.yaml")
	if err := os.WriteFile(path, []byte("providers: {not: [valid"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for malformed yaml")
	}
}
