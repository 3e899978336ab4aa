package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreCredentialPermissions(t *testing.T) {
	dir := t.TempDir()
	hashFile := filepath.Join(dir, "challenge.hash")
	saltFile := filepath.Join(dir, "challenge.salt")

	salt, err := newSalt()
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}

	if err := storeCredential(hashFile, saltFile, "$scrypt$ln=17,r=8,p=1$c2FsdA$aGFzaA", salt); err != nil {
		t.Fatalf("storeCredential: %v", err)
	}

	for _, path := range []string{hashFile, saltFile} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("%s permissions = %o, want 600", path, perm)
		}
	}
}

func TestStoreAndLoadHash(t *testing.T) {
	dir := t.TempDir()
	hashFile := filepath.Join(dir, "challenge.hash")
	saltFile := filepath.Join(dir, "challenge.salt")

	salt, err := newSalt()
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}
	phc := "$scrypt$ln=17,r=8,p=1$c2FsdA$aGFzaA"

	if err := storeCredential(hashFile, saltFile, phc, salt); err != nil {
		t.Fatalf("storeCredential: %v", err)
	}

	loaded, err := loadHash(hashFile)
	if err != nil {
		t.Fatalf("loadHash: %v", err)
	}
	if loaded != phc {
		t.Errorf("loadHash = %q, want %q", loaded, phc)
	}

	saltData, err := os.ReadFile(saltFile)
	if err != nil {
		t.Fatalf("read salt file: %v", err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(saltData)))
	if err != nil {
		t.Fatalf("salt file is not hex: %v", err)
	}
	if len(decoded) != saltLen {
		t.Errorf("stored salt length %d, want %d", len(decoded), saltLen)
	}
}

func TestLoadHashMissingFile(t *testing.T) {
	if _, err := loadHash(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("loadHash on a missing file succeeded")
	}
}

func TestReSetupOverwritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	hashFile := filepath.Join(dir, "challenge.hash")
	saltFile := filepath.Join(dir, "challenge.salt")

	saltA, _ := newSalt()
	saltB, _ := newSalt()

	if err := storeCredential(hashFile, saltFile, "$scrypt$ln=17,r=8,p=1$YQ$YQ", saltA); err != nil {
		t.Fatalf("storeCredential: %v", err)
	}
	if err := storeCredential(hashFile, saltFile, "$scrypt$ln=17,r=8,p=1$Yg$Yg", saltB); err != nil {
		t.Fatalf("storeCredential overwrite: %v", err)
	}

	loaded, err := loadHash(hashFile)
	if err != nil {
		t.Fatalf("loadHash: %v", err)
	}
	if loaded != "$scrypt$ln=17,r=8,p=1$Yg$Yg" {
		t.Errorf("hash file not overwritten: %q", loaded)
	}

	saltData, _ := os.ReadFile(saltFile)
	if strings.TrimSpace(string(saltData)) != hex.EncodeToString(saltB) {
		t.Error("salt file not overwritten with the new salt")
	}
}
