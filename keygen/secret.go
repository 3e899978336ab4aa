package main

import (
	"crypto/rand"
	"fmt"
)

// secretBuf holds sensitive key material and guarantees it is overwritten
// when wiped. Callers pair every construction with a deferred Wipe so the
// buffer is cleared on every exit path, including early error returns.
//
// SECURITY: Go has no destructor, so the discipline is explicit: never
// let a secret slice escape a function without either wrapping it or
// wiping it.
type secretBuf struct {
	b []byte
}

// newRandomSecret fills a fresh buffer from the CSPRNG.
func newRandomSecret(n int) (*secretBuf, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate secret material: %w", err)
	}
	return &secretBuf{b: b}, nil
}

// wrapSecret takes ownership of b; the caller must not retain it.
func wrapSecret(b []byte) *secretBuf {
	return &secretBuf{b: b}
}

// Bytes exposes the underlying buffer. The slice is only valid until
// Wipe.
func (s *secretBuf) Bytes() []byte {
	return s.b
}

// Len returns the buffer length.
func (s *secretBuf) Len() int {
	return len(s.b)
}

// Wipe overwrites the buffer with zeros. Safe to call more than once.
func (s *secretBuf) Wipe() {
	zeroBytes(s.b)
}

// zeroBytes overwrites a byte slice with zeros
// SECURITY: Used to clear sensitive cryptographic material from memory
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
