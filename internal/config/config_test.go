package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
usbrevue:
  log:
    level: "debug"
    format: "json"
    outputs:
      file:
        enabled: true
        path: "/tmp/usbrevue-test.log"
  metrics:
    enabled: true
    listen: "127.0.0.1:9191"
  capture:
    snaplen: 65535
    nanoseconds: true
  modify:
    on_error: "skip"
    verbose: true
  stats:
    offsets: [0, 4]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if !cfg.Log.Outputs.File.Enabled || cfg.Log.Outputs.File.Path != "/tmp/usbrevue-test.log" {
		t.Errorf("Unexpected file output %+v", cfg.Log.Outputs.File)
	}
	if cfg.Log.Outputs.File.Rotation.MaxSizeMB != 100 {
		t.Errorf("Expected default rotation size 100, got %d", cfg.Log.Outputs.File.Rotation.MaxSizeMB)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9191" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unexpected metrics config %+v", cfg.Metrics)
	}
	if cfg.Capture.Snaplen != 65535 || !cfg.Capture.Nanoseconds {
		t.Errorf("Unexpected capture config %+v", cfg.Capture)
	}
	if cfg.Modify.OnError != OnErrorSkip || !cfg.Modify.Verbose {
		t.Errorf("Unexpected modify config %+v", cfg.Modify)
	}
	if len(cfg.Stats.Offsets) != 2 || cfg.Stats.Offsets[1] != 4 {
		t.Errorf("Expected offsets [0 4], got %v", cfg.Stats.Offsets)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Unexpected log defaults %+v", cfg.Log)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Capture.Snaplen != 262144 {
		t.Errorf("Expected snaplen 262144, got %d", cfg.Capture.Snaplen)
	}
	if cfg.Modify.OnError != OnErrorAbort {
		t.Errorf("Expected on_error abort, got %s", cfg.Modify.OnError)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("USBREVUE_LOG_LEVEL", "warn")
	t.Setenv("USBREVUE_MODIFY_ON_ERROR", "skip")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env log level warn, got %s", cfg.Log.Level)
	}
	if cfg.Modify.OnError != OnErrorSkip {
		t.Errorf("Expected env on_error skip, got %s", cfg.Modify.OnError)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "usbrevue:\n  log:\n    level: \"loud\"\n"},
		{"log format", "usbrevue:\n  log:\n    format: \"xml\"\n"},
		{"on_error", "usbrevue:\n  modify:\n    on_error: \"retry\"\n"},
		{"offsets", "usbrevue:\n  stats:\n    offsets: [-1]\n"},
		{"file path", "usbrevue:\n  log:\n    outputs:\n      file:\n        enabled: true\n        path: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestDefaultIgnoresEnv(t *testing.T) {
	t.Setenv("USBREVUE_LOG_LEVEL", "loud")

	cfg := Default()
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default level info, got %s", cfg.Log.Level)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path, got %s", cfg.Metrics.Path)
	}
}
