package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(writeConfig(t, "{}"), "config.yaml"))
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}

	if cfg.Engine.WindowWidth != 30*time.Minute {
		t.Fatalf("unexpected window width: %s", cfg.Engine.WindowWidth)
	}
	if cfg.Engine.HistorySize != 6 {
		t.Fatalf("unexpected history size: %d", cfg.Engine.HistorySize)
	}
	if cfg.Engine.MinClusterSize != 10 {
		t.Fatalf("unexpected min cluster size: %d", cfg.Engine.MinClusterSize)
	}
	if cfg.Engine.SpikeMultiplier != 3.0 {
		t.Fatalf("unexpected spike multiplier: %v", cfg.Engine.SpikeMultiplier)
	}
	if cfg.Engine.ConfidenceThreshold != 0.70 {
		t.Fatalf("unexpected confidence threshold: %v", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Engine.MarginRate != 0.02 {
		t.Fatalf("unexpected margin rate: %v", cfg.Engine.MarginRate)
	}
	if cfg.Engine.RerouteCost != 15.0 {
		t.Fatalf("unexpected reroute cost: %v", cfg.Engine.RerouteCost)
	}
	if cfg.Oracle.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected oracle timeout: %s", cfg.Oracle.RequestTimeout)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := writeConfig(t, `
engine:
  window_width: 15m
  min_cluster_size: 5
  confidence_threshold: 0.8
logging:
  level: debug
`)

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config should load: %v", err)
	}

	if cfg.Engine.WindowWidth != 15*time.Minute {
		t.Fatalf("window width not overridden: %s", cfg.Engine.WindowWidth)
	}
	if cfg.Engine.MinClusterSize != 5 {
		t.Fatalf("min cluster size not overridden: %d", cfg.Engine.MinClusterSize)
	}
	if cfg.Engine.ConfidenceThreshold != 0.8 {
		t.Fatalf("confidence threshold not overridden: %v", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level not overridden: %s", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.SpikeMultiplier != 3.0 {
		t.Fatalf("spike multiplier should keep its default: %v", cfg.Engine.SpikeMultiplier)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"zero window width":      "engine:\n  window_width: 0s\n",
		"history too small":      "engine:\n  history_size: 1\n",
		"spike multiplier <= 1":  "engine:\n  spike_multiplier: 1.0\n",
		"confidence > 1":         "engine:\n  confidence_threshold: 1.5\n",
		"zero margin":            "engine:\n  margin_rate: 0\n",
		"negative reroute cost":  "engine:\n  reroute_cost: -1\n",
		"zero workers":           "engine:\n  workers: 0\n",
		"telegram without token": "alerting:\n  telegram:\n    enabled: true\n    chat_id: c\n",
	}

	for name, content := range cases {
		dir := writeConfig(t, content)
		if _, err := Load(filepath.Join(dir, "config.yaml")); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}
