package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Sealed blob layout: salt ∥ nonce ∥ ciphertext. The salt is the HKDF
// salt used to derive the AES key, stored alongside so the unwrap path
// can re-derive it.
const (
	sealSaltLen  = 32
	gcmNonceLen  = 12
	gcmTagLen    = 16
	minSealedLen = sealSaltLen + gcmNonceLen + gcmTagLen
)

// newSealSalt draws a fresh HKDF salt.
func newSealSalt() ([]byte, error) {
	salt := make([]byte, sealSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate seal salt: %w", err)
	}
	return salt, nil
}

// sealWithSalt encrypts plaintext under an AES-256-GCM key and returns
// salt ∥ nonce ∥ ciphertext. The salt is bound as additional data so a
// modified salt fails authentication instead of deriving a wrong key.
func sealWithSalt(key, salt, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, salt)

	blob := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// sealedSalt returns the salt prefix of a sealed blob.
func sealedSalt(blob []byte) ([]byte, error) {
	if len(blob) < minSealedLen {
		return nil, fmt.Errorf("sealed blob too short (%d bytes, min %d)", len(blob), minSealedLen)
	}
	return blob[:sealSaltLen], nil
}

// openSealed decrypts a salt ∥ nonce ∥ ciphertext blob with the given
// key. Tampering with any byte fails authentication.
func openSealed(key, blob []byte) ([]byte, error) {
	if len(blob) < minSealedLen {
		return nil, fmt.Errorf("sealed blob too short (%d bytes, min %d)", len(blob), minSealedLen)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	salt := blob[:sealSaltLen]
	nonce := blob[sealSaltLen : sealSaltLen+gcmNonceLen]
	ciphertext := blob[sealSaltLen+gcmNonceLen:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, fmt.Errorf("sealed blob failed authentication: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}
	return aead, nil
}
