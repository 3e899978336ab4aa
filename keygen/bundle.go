package main

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Declared algorithm identifiers, recorded verbatim in the public bundle.
const (
	AlgClassical = "X25519"
	AlgKEM       = "ML-KEM-1024"
	AlgSignature = "ML-DSA-87"
)

// Artifact layout under the output root. Three mutually exclusive trust
// domains: Public may travel on semi-trusted media, Private must never be
// co-located with Public, Encrypted is opaque without Private.
const (
	PublicDir    = "public"
	PrivateDir   = "private"
	EncryptedDir = "encrypted"

	PublicJSONFile    = "recovery_public.json"
	WrappedSecretFile = "wrapped_secret.bin"
	PrivateJSONFile   = "recovery_private.json"
	SecretHexFile     = "recovery_secret.hex"
	DeviceSecretsFile = "device_secrets.json.enc"
	ManifestFile      = "manifest.json"
)

// PublicBundle is recovery_public.json: public keys, the KEM ciphertext
// and the wrap salt. Nothing in it reconstructs the master secret.
type PublicBundle struct {
	Version            int    `json:"version"`
	BundleID           string `json:"bundle_id"`
	CreatedAt          string `json:"created_at"`
	ClassicalAlgorithm string `json:"classical_algorithm"`
	KEMAlgorithm       string `json:"kem_algorithm"`
	SignatureAlgorithm string `json:"signature_algorithm"`

	X25519EphemeralPublic string `json:"x25519_ephemeral_public"`
	X25519StaticPublic    string `json:"x25519_static_public"`
	MLKEMPublicKey        string `json:"mlkem_public_key"`
	MLKEMCiphertext       string `json:"mlkem_ciphertext"`
	MLDSAPublicKey        string `json:"mldsa_public_key"`
	WrapSalt              string `json:"wrap_salt"`
}

// PrivateBundle is recovery_private.json: the secret halves needed to
// reconstruct the master secret and to sign images.
type PrivateBundle struct {
	Version   int    `json:"version"`
	BundleID  string `json:"bundle_id"`
	CreatedAt string `json:"created_at"`

	X25519StaticPrivate string `json:"x25519_static_private"`
	MLKEMPrivateKey     string `json:"mlkem_private_key"`
	MLDSAPrivateKey     string `json:"mldsa_private_key"`
}

// Manifest is the root integrity record: SHA-256 checksums of every
// artifact so recovery media can be spot-checked before use.
type Manifest struct {
	Version   int               `json:"version"`
	BundleID  string            `json:"bundle_id"`
	CreatedAt string            `json:"created_at"`
	Files     map[string]string `json:"files"`
}

// deviceSecrets is the plaintext of device_secrets.json.enc.
type deviceSecrets struct {
	SecondaryPartitionPassphrase string `json:"secondary_partition_passphrase"`
}

// generatedBundle carries all artifacts in memory. Nothing touches disk
// until every cryptographic step has succeeded.
type generatedBundle struct {
	BundleID  string
	CreatedAt string

	Public        PublicBundle
	Private       PrivateBundle
	MasterSecret  *secretBuf
	WrappedSecret []byte
	DeviceSecrets []byte // sealed
}

// Wipe clears the master secret. The serialized private keys in Private
// are strings destined for disk; the caller controls their lifetime via
// the bundle files.
func (g *generatedBundle) Wipe() {
	if g.MasterSecret != nil {
		g.MasterSecret.Wipe()
	}
}

// generateBundle runs the full offline generation: master secret, derived
// keys, sealed device secrets, hybrid encapsulation, master-secret wrap
// and signing keypair. Every error aborts before any artifact exists.
func generateBundle() (*generatedBundle, error) {
	master, err := generateMasterSecret()
	if err != nil {
		return nil, err
	}
	// The master secret stays alive inside the returned bundle; on any
	// error below it is wiped before returning.
	fail := func(err error) (*generatedBundle, error) {
		master.Wipe()
		return nil, err
	}

	unlock, err := deriveUnlockPassphrase(master.Bytes())
	if err != nil {
		return fail(err)
	}

	// Seal the device-secrets document under a key derived from the
	// master secret with a fresh salt.
	secretsJSON, err := json.Marshal(deviceSecrets{SecondaryPartitionPassphrase: unlock})
	if err != nil {
		return fail(fmt.Errorf("failed to marshal device secrets: %w", err))
	}
	defer zeroBytes(secretsJSON)

	secretsSalt, err := newSealSalt()
	if err != nil {
		return fail(err)
	}
	secretsKey, err := deriveDeviceSecretsKey(master.Bytes(), secretsSalt)
	if err != nil {
		return fail(err)
	}
	defer zeroBytes(secretsKey)

	sealedSecrets, err := sealWithSalt(secretsKey, secretsSalt, secretsJSON)
	if err != nil {
		return fail(err)
	}

	// Hybrid-encapsulate and wrap the master secret under the combined
	// secret, never under the master itself.
	hy, err := hybridEncapsulate()
	if err != nil {
		return fail(err)
	}
	defer hy.Wipe()

	wrapSalt, err := newSealSalt()
	if err != nil {
		return fail(err)
	}
	wrapKey, err := deriveMasterWrapKey(hy.Combined.Bytes(), wrapSalt)
	if err != nil {
		return fail(err)
	}
	defer zeroBytes(wrapKey)

	wrapped, err := sealWithSalt(wrapKey, wrapSalt, master.Bytes())
	if err != nil {
		return fail(err)
	}

	signPublic, signPrivate, err := generateSigningKeypair()
	if err != nil {
		return fail(err)
	}
	defer zeroBytes(signPrivate)

	bundleID := uuid.NewString()
	createdAt := time.Now().UTC().Format(time.RFC3339)
	b64 := base64.StdEncoding

	g := &generatedBundle{
		BundleID:  bundleID,
		CreatedAt: createdAt,
		Public: PublicBundle{
			Version:            1,
			BundleID:           bundleID,
			CreatedAt:          createdAt,
			ClassicalAlgorithm: AlgClassical,
			KEMAlgorithm:       AlgKEM,
			SignatureAlgorithm: AlgSignature,

			X25519EphemeralPublic: b64.EncodeToString(hy.EphemeralPublic),
			X25519StaticPublic:    b64.EncodeToString(hy.StaticPublic),
			MLKEMPublicKey:        b64.EncodeToString(hy.KEMPublic),
			MLKEMCiphertext:       b64.EncodeToString(hy.KEMCiphertext),
			MLDSAPublicKey:        b64.EncodeToString(signPublic),
			WrapSalt:              b64.EncodeToString(wrapSalt),
		},
		Private: PrivateBundle{
			Version:   1,
			BundleID:  bundleID,
			CreatedAt: createdAt,

			X25519StaticPrivate: b64.EncodeToString(hy.StaticPrivate),
			MLKEMPrivateKey:     b64.EncodeToString(hy.KEMPrivate),
			MLDSAPrivateKey:     b64.EncodeToString(signPrivate),
		},
		MasterSecret:  master,
		WrappedSecret: wrapped,
		DeviceSecrets: sealedSecrets,
	}

	return g, nil
}

// writeBundle emits the three artifact directories plus the root
// manifest. Private and encrypted directories are owner-only.
func writeBundle(root string, g *generatedBundle) error {
	dirs := map[string]os.FileMode{
		PublicDir:    0o755,
		PrivateDir:   0o700,
		EncryptedDir: 0o700,
	}
	for dir, mode := range dirs {
		if err := os.MkdirAll(filepath.Join(root, dir), mode); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	publicJSON, err := json.MarshalIndent(g.Public, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal public bundle: %w", err)
	}
	privateJSON, err := json.MarshalIndent(g.Private, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal private bundle: %w", err)
	}
	secretHex := []byte(hexEncode(g.MasterSecret.Bytes()))
	defer zeroBytes(secretHex)

	files := []struct {
		rel  string
		data []byte
		mode os.FileMode
	}{
		{filepath.Join(PublicDir, PublicJSONFile), publicJSON, 0o644},
		{filepath.Join(PublicDir, WrappedSecretFile), g.WrappedSecret, 0o644},
		{filepath.Join(PrivateDir, PrivateJSONFile), privateJSON, 0o600},
		{filepath.Join(PrivateDir, SecretHexFile), secretHex, 0o600},
		{filepath.Join(EncryptedDir, DeviceSecretsFile), g.DeviceSecrets, 0o600},
	}

	manifest := Manifest{
		Version:   1,
		BundleID:  g.BundleID,
		CreatedAt: g.CreatedAt,
		Files:     make(map[string]string, len(files)),
	}

	for _, f := range files {
		if err := writeArtifact(filepath.Join(root, f.rel), f.data, f.mode); err != nil {
			return err
		}
		sum := sha256.Sum256(f.data)
		manifest.Files[f.rel] = hexEncode(sum[:])
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return writeArtifact(filepath.Join(root, ManifestFile), manifestJSON, 0o644)
}

// writeArtifact creates a file with its final permissions applied at
// creation time.
func writeArtifact(path string, data []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("failed to create artifact %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close artifact %s: %w", path, err)
	}
	return nil
}

// loadPublicBundle reads recovery_public.json from a bundle root.
func loadPublicBundle(root string) (*PublicBundle, error) {
	data, err := os.ReadFile(filepath.Join(root, PublicDir, PublicJSONFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read public bundle: %w", err)
	}
	var pb PublicBundle
	if err := json.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse public bundle: %w", err)
	}
	return &pb, nil
}

// loadPrivateBundle reads recovery_private.json from a bundle root.
func loadPrivateBundle(root string) (*PrivateBundle, error) {
	data, err := os.ReadFile(filepath.Join(root, PrivateDir, PrivateJSONFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read private bundle: %w", err)
	}
	var pb PrivateBundle
	if err := json.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse private bundle: %w", err)
	}
	return &pb, nil
}

// loadWrappedSecret reads wrapped_secret.bin from a bundle root.
func loadWrappedSecret(root string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(root, PublicDir, WrappedSecretFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read wrapped secret: %w", err)
	}
	return data, nil
}

// hexEncode renders bytes as lowercase hex; empty input yields "".
func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
