package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ArmingDelaySecs != DefaultConfig().ArmingDelaySecs {
		t.Errorf("Defaults not applied: arming_delay_secs = %d", cfg.ArmingDelaySecs)
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	content := []byte("event_fifo: /tmp/test-events\narming_delay_secs: 5\nanomaly_escalation_count: 7\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.EventFIFO != "/tmp/test-events" {
		t.Errorf("event_fifo = %q", cfg.EventFIFO)
	}
	if cfg.ArmingDelaySecs != 5 {
		t.Errorf("arming_delay_secs = %d", cfg.ArmingDelaySecs)
	}
	if cfg.AnomalyEscalationCount != 7 {
		t.Errorf("anomaly_escalation_count = %d", cfg.AnomalyEscalationCount)
	}
	// Untouched fields keep their defaults.
	if cfg.HeartbeatTimeoutSecs != DefaultConfig().HeartbeatTimeoutSecs {
		t.Errorf("heartbeat_timeout_secs = %d", cfg.HeartbeatTimeoutSecs)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"malformed yaml":  "event_fifo: [unterminated\n",
		"zero delay":      "arming_delay_secs: 0\n",
		"empty fifo":      "event_fifo: \"\"\n",
		"zero threshold":  "anomaly_escalation_count: 0\n",
		"empty challenge": "challenge_binary: \"\"\n",
	}
	dir := t.TempDir()
	for name, content := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: config accepted", name)
		}
	}
}
