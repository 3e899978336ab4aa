package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// WipeTrigger is the authorization record the wipe unit watches for. The
// unit's only activation condition is this file's existence.
type WipeTrigger struct {
	AuthorizedAt string `json:"authorized_at"`
	Reason       string `json:"reason"`
}

// writeWipeTrigger writes the trigger file atomically: the record lands
// fully formed or not at all, so the wipe unit can never observe a
// truncated authorization.
func writeWipeTrigger(path, reason string) error {
	trigger := WipeTrigger{
		AuthorizedAt: time.Now().UTC().Format(time.RFC3339),
		Reason:       reason,
	}

	data, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal wipe trigger: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create trigger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".wipe-trigger-*")
	if err != nil {
		return fmt.Errorf("failed to create temp trigger file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write trigger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync trigger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close trigger file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod trigger file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish trigger file: %w", err)
	}

	return nil
}

// startWipeUnit fires the wipe service and does not wait for it: there is
// no cancellation path for a wipe once authorized, and the gate's last
// duty is to exit.
func startWipeUnit(unit string) error {
	if unit == "" {
		log.Warn().Msg("No wipe unit configured, trigger file alone authorizes the wipe")
		return nil
	}

	cmd := exec.Command("systemctl", "start", "--no-block", unit)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start wipe unit %s: %w", unit, err)
	}

	// Release the child; the service manager owns it from here.
	go cmd.Wait()

	log.Info().Str("unit", unit).Msg("Wipe unit started")
	return nil
}
