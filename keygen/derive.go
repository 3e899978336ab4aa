package main

import (
	"crypto/sha512"
	"encoding/base32"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Master secret and derived-key sizes.
const (
	masterSecretLen = 64
	wrapKeyLen      = 32
	unlockRawLen    = 32
	deriveSaltLen   = 32
)

// HKDF info labels. Each derived value gets its own label so the derived
// keys are mutually independent.
const (
	infoDiskUnlock    = "tampergate/recovery/disk-unlock/v1"
	infoDeviceSecrets = "tampergate/recovery/device-secrets-wrap/v1"
	infoMasterWrap    = "tampergate/recovery/master-wrap/v1"
)

// unlockSalt is fixed so the disk-unlock passphrase is re-derivable from
// the master secret alone during recovery.
var unlockSalt = []byte("tampergate-disk-unlock-salt-v1")

// hkdfSHA512 expands secret into n bytes under the given salt and label.
func hkdfSHA512(secret, salt []byte, info string, n int) ([]byte, error) {
	out := make([]byte, n)
	r := hkdf.New(sha512.New, secret, salt, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("HKDF expansion failed (%s): %w", info, err)
	}
	return out, nil
}

// generateMasterSecret draws the 64-byte master secret from the CSPRNG.
func generateMasterSecret() (*secretBuf, error) {
	return newRandomSecret(masterSecretLen)
}

// deriveUnlockPassphrase derives the disk-unlock passphrase for the
// secondary encrypted partition. Rendered as unpadded base32 so it can be
// typed at a prompt.
func deriveUnlockPassphrase(master []byte) (string, error) {
	raw, err := hkdfSHA512(master, unlockSalt, infoDiskUnlock, unlockRawLen)
	if err != nil {
		return "", err
	}
	defer zeroBytes(raw)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// deriveDeviceSecretsKey derives the AES key sealing the device-secrets
// document. The salt is random per generation and persisted in the
// sealed blob's header.
func deriveDeviceSecretsKey(master, salt []byte) ([]byte, error) {
	return hkdfSHA512(master, salt, infoDeviceSecrets, wrapKeyLen)
}

// deriveMasterWrapKey derives the AES key wrapping the master secret.
// Its input keying material is the hybrid combined secret, never the
// master secret itself.
func deriveMasterWrapKey(combined, salt []byte) ([]byte, error) {
	return hkdfSHA512(combined, salt, infoMasterWrap, wrapKeyLen)
}
