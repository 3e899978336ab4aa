package main

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. Memory-hard enough that an attacker with the hash
// file still faces ~128 MiB per guess.
const (
	scryptLogN   = 17
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltLen      = 32
)

// MinPasswordLen is the minimum accepted password length at setup.
const MinPasswordLen = 8

var b64 = base64.RawStdEncoding

// phcHash is a parsed scrypt PHC string:
// $scrypt$ln=17,r=8,p=1$<b64 salt>$<b64 key>
type phcHash struct {
	logN int
	r    int
	p    int
	salt []byte
	key  []byte
}

// HashPassword derives an scrypt hash over password with a fresh random
// salt and returns it PHC-encoded. Two calls with the same password yield
// different salts and different strings.
func HashPassword(password []byte) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", err
	}
	return hashWithSalt(password, salt)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

func hashWithSalt(password, salt []byte) (string, error) {
	key, err := scrypt.Key(password, salt, 1<<scryptLogN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt derivation failed: %w", err)
	}
	defer zeroBytes(key)

	return fmt.Sprintf("$scrypt$ln=%d,r=%d,p=%d$%s$%s",
		scryptLogN, scryptR, scryptP,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPassword re-derives the candidate with the parameters and salt
// embedded in the PHC string and compares in constant time. Malformed or
// non-UTF-8 hash bytes return an error, never a panic.
func VerifyPassword(password []byte, phc string) (bool, error) {
	parsed, err := parsePHC(phc)
	if err != nil {
		return false, err
	}
	defer zeroBytes(parsed.key)

	key, err := scrypt.Key(password, parsed.salt, 1<<parsed.logN, parsed.r, parsed.p, len(parsed.key))
	if err != nil {
		return false, fmt.Errorf("scrypt derivation failed: %w", err)
	}
	defer zeroBytes(key)

	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// parsePHC parses a $scrypt$ PHC string.
func parsePHC(phc string) (*phcHash, error) {
	if !utf8.ValidString(phc) {
		return nil, fmt.Errorf("hash is not valid UTF-8")
	}

	parts := strings.Split(phc, "$")
	// Leading $ yields an empty first element.
	if len(parts) != 5 || parts[0] != "" {
		return nil, fmt.Errorf("malformed PHC string")
	}
	if parts[1] != "scrypt" {
		return nil, fmt.Errorf("unsupported hash algorithm %q", parts[1])
	}

	h := &phcHash{}
	for _, param := range strings.Split(parts[2], ",") {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed PHC parameter %q", param)
		}
		var dst *int
		switch kv[0] {
		case "ln":
			dst = &h.logN
		case "r":
			dst = &h.r
		case "p":
			dst = &h.p
		default:
			return nil, fmt.Errorf("unknown PHC parameter %q", kv[0])
		}
		if _, err := fmt.Sscanf(kv[1], "%d", dst); err != nil {
			return nil, fmt.Errorf("malformed PHC parameter value %q: %w", kv[1], err)
		}
	}
	if h.logN <= 0 || h.logN > 24 || h.r <= 0 || h.p <= 0 {
		return nil, fmt.Errorf("PHC parameters out of range")
	}

	var err error
	h.salt, err = b64.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("malformed PHC salt: %w", err)
	}
	h.key, err = b64.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("malformed PHC key: %w", err)
	}
	if len(h.salt) == 0 || len(h.key) == 0 {
		return nil, fmt.Errorf("PHC salt or key is empty")
	}

	return h, nil
}

// zeroBytes overwrites a byte slice with zeros
// SECURITY: Used to clear sensitive material from memory
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
