package main

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// Detached ML-DSA-87 signatures over disk images. Verification needs
// only the Public bundle, so recovery media can be authenticated on a
// machine that never sees the Private set.

// generateSigningKeypair returns the serialized ML-DSA-87 keypair.
func generateSigningKeypair() (publicKey, privateKey []byte, err error) {
	pub, priv, err := mldsa87.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("ML-DSA key generation failed: %w", err)
	}

	publicKey, err = pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal ML-DSA public key: %w", err)
	}
	privateKey, err = priv.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal ML-DSA private key: %w", err)
	}
	return publicKey, privateKey, nil
}

// signImage produces a detached signature over image bytes.
func signImage(privateKey, image []byte) ([]byte, error) {
	var sk mldsa87.PrivateKey
	if err := sk.UnmarshalBinary(privateKey); err != nil {
		return nil, fmt.Errorf("failed to parse ML-DSA private key: %w", err)
	}

	sig := make([]byte, mldsa87.SignatureSize)
	if err := mldsa87.SignTo(&sk, image, nil, true, sig); err != nil {
		return nil, fmt.Errorf("ML-DSA signing failed: %w", err)
	}
	return sig, nil
}

// verifyImage checks a detached signature. Any byte-for-byte modification
// of the signed content is rejected.
func verifyImage(publicKey, image, sig []byte) (bool, error) {
	var pk mldsa87.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false, fmt.Errorf("failed to parse ML-DSA public key: %w", err)
	}
	return mldsa87.Verify(&pk, image, nil, sig), nil
}
