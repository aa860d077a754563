package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"image-converter-go/internal/converter"
	"image-converter-go/internal/format"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.OutputFormat() != format.PNG || cfg.Options().Quality != 95 || cfg.Options().Resize() {
		t.Fatalf("unexpected defaults %+v", cfg.Conversion)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
conversion:
  quality: 80
  format: webp
  resize:
    width: 640
    height: 480
watch:
  debounce_ms: 250
server:
  port: 9090
logging:
  level: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Conversion.Quality != 80 || cfg.OutputFormat() != format.WEBP {
		t.Errorf("conversion = %+v", cfg.Conversion)
	}
	if o := cfg.Options(); o.Width != 640 || o.Height != 480 {
		t.Errorf("options = %+v", o)
	}
	if cfg.Debounce() != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Debounce())
	}
	if cfg.Address() != "localhost:9090" {
		t.Errorf("address = %s", cfg.Address())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.MaxSize != 10 {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("IMAGE_CONVERTER_CONVERSION_QUALITY", "42")
	path := writeConfig(t, "conversion:\n  format: jpeg\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Conversion.Quality != 42 {
		t.Fatalf("quality = %d, want 42", cfg.Conversion.Quality)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"quality": "conversion:\n  quality: 0\n",
		"format":  "conversion:\n  format: heic\n",
		"resize":  "conversion:\n  resize:\n    width: 100\n",
		"level":   "logging:\n  level: chatty\n",
		"port":    "server:\n  port: 70000\n",
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateQualityIsValidationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conversion.Quality = 101
	if err := cfg.Validate(); !errors.Is(err, converter.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
