package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default credential file locations.
const (
	DefaultHashFile = "/etc/tampergate/challenge.hash"
	DefaultSaltFile = "/etc/tampergate/challenge.salt"
)

// writeCredentialFile writes data with owner-only permissions applied at
// creation time: the file is never observable with wider permissions.
// Re-setup overwrites in place; the hash and salt are always rewritten
// together by the caller.
func writeCredentialFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create credential file %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write credential file %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync credential file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close credential file %s: %w", path, err)
	}

	return nil
}

// storeCredential persists the PHC hash and the raw salt (hex-encoded)
// as a pair.
func storeCredential(hashFile, saltFile, phc string, salt []byte) error {
	if err := writeCredentialFile(hashFile, []byte(phc+"\n")); err != nil {
		return err
	}
	return writeCredentialFile(saltFile, []byte(hex.EncodeToString(salt)+"\n"))
}

// loadHash reads the stored PHC string. Any read failure is reported to
// the caller, which treats it as a denied challenge (fail-closed).
func loadHash(hashFile string) (string, error) {
	data, err := os.ReadFile(hashFile)
	if err != nil {
		return "", fmt.Errorf("failed to read hash file %s: %w", hashFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}
