package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the gate looks for its configuration.
const DefaultConfigPath = "/etc/tampergate/gate.yaml"

// Config holds the gate configuration. Loaded once at startup and
// immutable afterward; a reload requires a restart.
type Config struct {
	// EventFIFO is the named pipe the sensor daemon writes events to.
	EventFIFO string `yaml:"event_fifo"`

	// ArmingDelaySecs is how long the lid must stay closed before the
	// gate arms.
	ArmingDelaySecs int `yaml:"arming_delay_secs"`

	// HeartbeatTimeoutSecs is the maximum sensor silence tolerated while
	// armed before silence is treated as tamper.
	HeartbeatTimeoutSecs int `yaml:"heartbeat_timeout_secs"`

	// AnomalyEscalationCount is the number of light anomalies that
	// escalates to a challenge while armed.
	AnomalyEscalationCount int `yaml:"anomaly_escalation_count"`

	// ChallengeBinary is the path of the challenge verifier.
	ChallengeBinary string `yaml:"challenge_binary"`

	// ChallengeTimeoutSecs bounds a single challenge invocation. An
	// expired timeout counts as a failed challenge.
	ChallengeTimeoutSecs int `yaml:"challenge_timeout_secs"`

	// WipeTriggerFile is the authorization file the wipe unit watches for.
	WipeTriggerFile string `yaml:"wipe_trigger_file"`

	// WipeUnit is the service unit started after the trigger file is
	// written. Empty disables the start (the trigger file alone
	// authorizes the wipe).
	WipeUnit string `yaml:"wipe_unit"`

	// AuditDB is the path of the sqlite audit trail. Empty disables it.
	AuditDB string `yaml:"audit_db"`

	// LogLevel is the zerolog level (trace..error).
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() *Config {
	return &Config{
		EventFIFO:              "/run/tampergate/events",
		ArmingDelaySecs:        30,
		HeartbeatTimeoutSecs:   15,
		AnomalyEscalationCount: 3,
		ChallengeBinary:        "/usr/local/bin/tamper-challenge",
		ChallengeTimeoutSecs:   120,
		WipeTriggerFile:        "/var/lib/tampergate/wipe-authorized.json",
		WipeUnit:               "tamper-wipe.service",
		AuditDB:                "/var/lib/tampergate/audit.db",
		LogLevel:               "info",
	}
}

// LoadConfig loads configuration from a YAML file, falling back to
// defaults when the file does not exist. A present but unreadable or
// malformed file is an error: the gate fails closed rather than running
// with guessed thresholds.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.EventFIFO == "" {
		return fmt.Errorf("event_fifo must not be empty")
	}
	if c.ArmingDelaySecs <= 0 {
		return fmt.Errorf("arming_delay_secs must be positive")
	}
	if c.HeartbeatTimeoutSecs <= 0 {
		return fmt.Errorf("heartbeat_timeout_secs must be positive")
	}
	if c.AnomalyEscalationCount <= 0 {
		return fmt.Errorf("anomaly_escalation_count must be positive")
	}
	if c.ChallengeBinary == "" {
		return fmt.Errorf("challenge_binary must not be empty")
	}
	if c.WipeTriggerFile == "" {
		return fmt.Errorf("wipe_trigger_file must not be empty")
	}
	return nil
}

// ArmingDelay returns the arming delay as a duration.
func (c *Config) ArmingDelay() time.Duration {
	return time.Duration(c.ArmingDelaySecs) * time.Second
}

// HeartbeatTimeout returns the heartbeat timeout as a duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSecs) * time.Second
}

// ChallengeTimeout returns the challenge timeout as a duration.
func (c *Config) ChallengeTimeout() time.Duration {
	return time.Duration(c.ChallengeTimeoutSecs) * time.Second
}
