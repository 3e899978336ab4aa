package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRandomSecret(t *testing.T) {
	s1, err := newRandomSecret(32)
	require.NoError(t, err)
	s2, err := newRandomSecret(32)
	require.NoError(t, err)

	assert.Equal(t, 32, s1.Len())
	assert.NotEqual(t, s1.Bytes(), s2.Bytes())
}

func TestWipeZeroesBuffer(t *testing.T) {
	s, err := newRandomSecret(64)
	require.NoError(t, err)
	raw := s.Bytes()

	s.Wipe()
	assert.True(t, bytes.Equal(raw, make([]byte, 64)))

	// Wipe is idempotent.
	s.Wipe()
	assert.Equal(t, 64, s.Len())
}

func TestWrapSecretTakesOwnership(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	s := wrapSecret(b)
	s.Wipe()
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}
