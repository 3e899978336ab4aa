package main

import (
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"golang.org/x/crypto/curve25519"
)

// Hybrid key encapsulation: X25519 against a freshly generated static
// key, plus ML-KEM-1024 encapsulation against its own keypair. The two
// shared secrets are concatenated and hashed with SHA-512 into the
// combined secret used as HKDF input for the master-secret wrap key.
//
// The concatenate-and-hash combiner is a documented design assumption,
// not a proven hybrid construction; it is used only as key-derivation
// input. Changing it to a formal combiner would change the wrapped-secret
// file format and break previously generated recovery bundles.

const combinedSecretLen = sha512.Size

// hybridEncapsulation carries everything the bundle writer needs: the
// public halves and KEM ciphertext for the Public set, the private halves
// for the Private set, and the combined secret for key derivation.
type hybridEncapsulation struct {
	EphemeralPublic []byte
	StaticPublic    []byte
	StaticPrivate   []byte
	KEMPublic       []byte
	KEMPrivate      []byte
	KEMCiphertext   []byte
	Combined        *secretBuf
}

// Wipe clears the private halves and the combined secret.
func (h *hybridEncapsulation) Wipe() {
	zeroBytes(h.StaticPrivate)
	zeroBytes(h.KEMPrivate)
	if h.Combined != nil {
		h.Combined.Wipe()
	}
}

// hybridEncapsulate generates fresh key material and performs both
// encapsulations. Any failure aborts with no partial state: the caller
// never sees half a hybrid.
func hybridEncapsulate() (*hybridEncapsulation, error) {
	// Classical leg: ephemeral X25519 against a fresh static key.
	staticPrivate := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(staticPrivate); err != nil {
		return nil, fmt.Errorf("failed to generate static X25519 key: %w", err)
	}
	staticPublic, err := curve25519.X25519(staticPrivate, curve25519.Basepoint)
	if err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("failed to derive static X25519 public key: %w", err)
	}

	ephemeralPrivate := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephemeralPrivate); err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("failed to generate ephemeral X25519 key: %w", err)
	}
	defer zeroBytes(ephemeralPrivate)

	ephemeralPublic, err := curve25519.X25519(ephemeralPrivate, curve25519.Basepoint)
	if err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("failed to derive ephemeral X25519 public key: %w", err)
	}

	classicalShared, err := curve25519.X25519(ephemeralPrivate, staticPublic)
	if err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("X25519 key exchange failed: %w", err)
	}
	defer zeroBytes(classicalShared)

	// Post-quantum leg: ML-KEM-1024 encapsulation against its own keypair.
	scheme := mlkem1024.Scheme()
	kemPublic, kemPrivate, err := scheme.GenerateKeyPair()
	if err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("ML-KEM key generation failed: %w", err)
	}

	kemCiphertext, kemShared, err := scheme.Encapsulate(kemPublic)
	if err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("ML-KEM encapsulation failed: %w", err)
	}
	defer zeroBytes(kemShared)

	kemPublicBytes, err := kemPublic.MarshalBinary()
	if err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("failed to marshal ML-KEM public key: %w", err)
	}
	kemPrivateBytes, err := kemPrivate.MarshalBinary()
	if err != nil {
		zeroBytes(staticPrivate)
		return nil, fmt.Errorf("failed to marshal ML-KEM private key: %w", err)
	}

	return &hybridEncapsulation{
		EphemeralPublic: ephemeralPublic,
		StaticPublic:    staticPublic,
		StaticPrivate:   staticPrivate,
		KEMPublic:       kemPublicBytes,
		KEMPrivate:      kemPrivateBytes,
		KEMCiphertext:   kemCiphertext,
		Combined:        combineSecrets(classicalShared, kemShared),
	}, nil
}

// hybridDecapsulate recomputes the combined secret from the Private
// bundle's secret keys and the Public bundle's ephemeral key and KEM
// ciphertext.
func hybridDecapsulate(staticPrivate, ephemeralPublic, kemPrivate, kemCiphertext []byte) (*secretBuf, error) {
	classicalShared, err := curve25519.X25519(staticPrivate, ephemeralPublic)
	if err != nil {
		return nil, fmt.Errorf("X25519 key exchange failed: %w", err)
	}
	defer zeroBytes(classicalShared)

	scheme := mlkem1024.Scheme()
	sk, err := scheme.UnmarshalBinaryPrivateKey(kemPrivate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ML-KEM private key: %w", err)
	}

	kemShared, err := scheme.Decapsulate(sk, kemCiphertext)
	if err != nil {
		return nil, fmt.Errorf("ML-KEM decapsulation failed: %w", err)
	}
	defer zeroBytes(kemShared)

	return combineSecrets(classicalShared, kemShared), nil
}

// combineSecrets hashes the concatenated shared secrets into the combined
// secret.
func combineSecrets(classical, pq []byte) *secretBuf {
	h := sha512.New()
	h.Write(classical)
	h.Write(pq)
	return wrapSecret(h.Sum(nil))
}
