package main

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestBundle(t *testing.T) (string, *generatedBundle) {
	t.Helper()
	dir := t.TempDir()
	g, err := generateBundle()
	require.NoError(t, err)
	t.Cleanup(g.Wipe)
	require.NoError(t, writeBundle(dir, g))
	return dir, g
}

func TestWriteBundleProducesAllArtifacts(t *testing.T) {
	dir, _ := generateTestBundle(t)

	for _, rel := range []string{
		filepath.Join(PublicDir, PublicJSONFile),
		filepath.Join(PublicDir, WrappedSecretFile),
		filepath.Join(PrivateDir, PrivateJSONFile),
		filepath.Join(PrivateDir, SecretHexFile),
		filepath.Join(EncryptedDir, DeviceSecretsFile),
		ManifestFile,
	} {
		_, err := os.Stat(filepath.Join(dir, rel))
		assert.NoError(t, err, "missing artifact %s", rel)
	}
}

func TestPublicBundleFields(t *testing.T) {
	dir, _ := generateTestBundle(t)

	pub, err := loadPublicBundle(dir)
	require.NoError(t, err)

	assert.Equal(t, "X25519", pub.ClassicalAlgorithm)
	assert.Equal(t, "ML-KEM-1024", pub.KEMAlgorithm)
	assert.Equal(t, "ML-DSA-87", pub.SignatureAlgorithm)
	assert.NotEmpty(t, pub.BundleID)
	assert.NotEmpty(t, pub.CreatedAt)

	fields := map[string]string{
		"x25519_ephemeral_public": pub.X25519EphemeralPublic,
		"x25519_static_public":    pub.X25519StaticPublic,
		"mlkem_public_key":        pub.MLKEMPublicKey,
		"mlkem_ciphertext":        pub.MLKEMCiphertext,
		"mldsa_public_key":        pub.MLDSAPublicKey,
		"wrap_salt":               pub.WrapSalt,
	}
	for name, value := range fields {
		require.NotEmpty(t, value, "field %s empty", name)
		_, err := base64.StdEncoding.DecodeString(value)
		assert.NoError(t, err, "field %s not base64", name)
	}
}

func TestSecretHexFile(t *testing.T) {
	dir, g := generateTestBundle(t)

	data, err := os.ReadFile(filepath.Join(dir, PrivateDir, SecretHexFile))
	require.NoError(t, err)

	assert.Len(t, data, 2*masterSecretLen)
	assert.Equal(t, hexEncode(g.MasterSecret.Bytes()), string(data))
	assert.False(t, strings.ContainsAny(string(data), "\n\r "))
}

func TestManifestChecksumsMatchArtifacts(t *testing.T) {
	dir, _ := generateTestBundle(t)

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Len(t, m.Files, 5)

	for rel, sum := range m.Files {
		assert.Len(t, sum, 64, "checksum for %s", rel)
		_, err := os.Stat(filepath.Join(dir, rel))
		assert.NoError(t, err, "manifest names missing file %s", rel)
	}
}

func TestPrivateFilePermissions(t *testing.T) {
	dir, _ := generateTestBundle(t)

	for _, rel := range []string{
		filepath.Join(PrivateDir, PrivateJSONFile),
		filepath.Join(PrivateDir, SecretHexFile),
		filepath.Join(EncryptedDir, DeviceSecretsFile),
	} {
		fi, err := os.Stat(filepath.Join(dir, rel))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), "perms for %s", rel)
	}
}

func TestUnwrapRecoversMasterSecret(t *testing.T) {
	dir, g := generateTestBundle(t)

	pub, err := loadPublicBundle(dir)
	require.NoError(t, err)
	priv, err := loadPrivateBundle(dir)
	require.NoError(t, err)
	wrapped, err := loadWrappedSecret(dir)
	require.NoError(t, err)

	master, err := unwrapMasterSecret(pub, priv, wrapped)
	require.NoError(t, err)
	defer master.Wipe()

	assert.Equal(t, g.MasterSecret.Bytes(), master.Bytes())
}

func TestUnwrapFailsOnTamperedCiphertext(t *testing.T) {
	dir, _ := generateTestBundle(t)

	pub, err := loadPublicBundle(dir)
	require.NoError(t, err)
	priv, err := loadPrivateBundle(dir)
	require.NoError(t, err)
	wrapped, err := loadWrappedSecret(dir)
	require.NoError(t, err)

	wrapped[len(wrapped)-1] ^= 0x01
	_, err = unwrapMasterSecret(pub, priv, wrapped)
	assert.Error(t, err)
}

func TestDeviceSecretsDecryptWithMasterSecret(t *testing.T) {
	dir, g := generateTestBundle(t)

	sealed, err := os.ReadFile(filepath.Join(dir, EncryptedDir, DeviceSecretsFile))
	require.NoError(t, err)

	salt, err := sealedSalt(sealed)
	require.NoError(t, err)
	key, err := deriveDeviceSecretsKey(g.MasterSecret.Bytes(), salt)
	require.NoError(t, err)

	plaintext, err := openSealed(key, sealed)
	require.NoError(t, err)

	var ds deviceSecrets
	require.NoError(t, json.Unmarshal(plaintext, &ds))

	expected, err := deriveUnlockPassphrase(g.MasterSecret.Bytes())
	require.NoError(t, err)
	assert.Equal(t, expected, ds.SecondaryPartitionPassphrase)
}

func TestUnlockPassphraseIsDeterministic(t *testing.T) {
	master, err := generateMasterSecret()
	require.NoError(t, err)
	defer master.Wipe()

	p1, err := deriveUnlockPassphrase(master.Bytes())
	require.NoError(t, err)
	p2, err := deriveUnlockPassphrase(master.Bytes())
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.NotEmpty(t, p1)
	assert.NotContains(t, p1, "=")
}

func TestHexEncode(t *testing.T) {
	assert.Equal(t, "", hexEncode(nil))
	assert.Equal(t, "", hexEncode([]byte{}))
	assert.Equal(t, "deadbeef", hexEncode([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
}

func TestGenerateRefusesDistinctBundlesShareNothing(t *testing.T) {
	g1, err := generateBundle()
	require.NoError(t, err)
	defer g1.Wipe()
	g2, err := generateBundle()
	require.NoError(t, err)
	defer g2.Wipe()

	assert.NotEqual(t, g1.BundleID, g2.BundleID)
	assert.NotEqual(t, g1.MasterSecret.Bytes(), g2.MasterSecret.Bytes())
	assert.NotEqual(t, g1.Public.X25519StaticPublic, g2.Public.X25519StaticPublic)
	assert.NotEqual(t, g1.Public.MLKEMPublicKey, g2.Public.MLKEMPublicKey)
}
