package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: recovery-keygen <command> [flags]

Commands:
  generate   Generate a new recovery bundle (offline machine only)
  unwrap     Reconstruct the master secret from a bundle's key sets
  sign       Produce a detached signature over an image file
  verify     Check a detached signature against the public bundle

Run 'recovery-keygen <command> -h' for command flags.
`)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "unwrap":
		err = runUnwrap(os.Args[2:])
	case "sign":
		err = runSign(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	outDir := fs.String("out", ".", "Output directory for the recovery bundle")
	fs.Parse(args)

	// Refuse to clobber an existing bundle.
	if _, err := os.Stat(filepath.Join(*outDir, ManifestFile)); err == nil {
		return fmt.Errorf("refusing to overwrite existing bundle in %s", *outDir)
	}

	log.Info().Str("out", *outDir).Msg("Generating recovery bundle")

	g, err := generateBundle()
	if err != nil {
		return err
	}
	defer g.Wipe()

	if err := writeBundle(*outDir, g); err != nil {
		return err
	}

	log.Info().Str("bundle_id", g.BundleID).Msg("Recovery bundle written")
	printMediaInstructions(*outDir)
	return nil
}

// printMediaInstructions tells the operator which artifact set belongs on
// which medium. The whole scheme depends on the sets being separated.
func printMediaInstructions(outDir string) {
	fmt.Printf(`
Recovery bundle generated in %s. Distribute the artifact sets now:

  PUBLIC set    %s/
      %s, %s
      Copy to the device's recovery partition. May also be kept with
      routine backups; it cannot reconstruct the master secret alone.

  PRIVATE set   %s/
      %s, %s
      Copy to TWO offline media (e.g. paired USB sticks) stored in
      separate physical locations. Never store with the public set.

  ENCRYPTED set %s/
      %s
      Copy to escrow media. Useless without the private set.

  %s stays with each copy; use it to spot-check media integrity
  (sha256sum -c style) before relying on a copy.

After verifying the copies, securely destroy this directory:

  shred -u %s/%s/* %s/%s/*

The machine that ran this command should never reconnect to a network
before the private set is destroyed locally.
`,
		outDir,
		PublicDir, PublicJSONFile, WrappedSecretFile,
		PrivateDir, PrivateJSONFile, SecretHexFile,
		EncryptedDir, DeviceSecretsFile,
		ManifestFile,
		outDir, PrivateDir, outDir, EncryptedDir)
}

func runUnwrap(args []string) error {
	fs := flag.NewFlagSet("unwrap", flag.ExitOnError)
	bundleDir := fs.String("bundle", ".", "Bundle root directory (needs public/ and private/)")
	showPassphrase := fs.Bool("show-passphrase", false, "Print the re-derived disk-unlock passphrase")
	fs.Parse(args)

	pub, err := loadPublicBundle(*bundleDir)
	if err != nil {
		return err
	}
	priv, err := loadPrivateBundle(*bundleDir)
	if err != nil {
		return err
	}
	if pub.BundleID != priv.BundleID {
		return fmt.Errorf("bundle mismatch: public %s vs private %s", pub.BundleID, priv.BundleID)
	}

	wrapped, err := loadWrappedSecret(*bundleDir)
	if err != nil {
		return err
	}

	master, err := unwrapMasterSecret(pub, priv, wrapped)
	if err != nil {
		return err
	}
	defer master.Wipe()

	// Cross-check against the plaintext escrow copy when present.
	hexPath := filepath.Join(*bundleDir, PrivateDir, SecretHexFile)
	if recorded, err := os.ReadFile(hexPath); err == nil {
		if strings.TrimSpace(string(recorded)) != hexEncode(master.Bytes()) {
			return fmt.Errorf("unwrapped master secret does not match %s", SecretHexFile)
		}
		log.Info().Msg("Unwrapped master secret matches recorded copy")
	} else {
		log.Warn().Str("path", hexPath).Msg("No recorded secret to cross-check against")
	}

	log.Info().Str("bundle_id", pub.BundleID).Msg("Master secret reconstructed")

	if *showPassphrase {
		passphrase, err := deriveUnlockPassphrase(master.Bytes())
		if err != nil {
			return err
		}
		fmt.Printf("Disk-unlock passphrase: %s\n", passphrase)
	}
	return nil
}

// unwrapMasterSecret recomputes the hybrid combined secret from the two
// key sets and opens the wrapped master secret.
func unwrapMasterSecret(pub *PublicBundle, priv *PrivateBundle, wrapped []byte) (*secretBuf, error) {
	staticPrivate, err := decodeField("x25519_static_private", priv.X25519StaticPrivate)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(staticPrivate)

	ephemeralPublic, err := decodeField("x25519_ephemeral_public", pub.X25519EphemeralPublic)
	if err != nil {
		return nil, err
	}
	kemPrivate, err := decodeField("mlkem_private_key", priv.MLKEMPrivateKey)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(kemPrivate)

	kemCiphertext, err := decodeField("mlkem_ciphertext", pub.MLKEMCiphertext)
	if err != nil {
		return nil, err
	}

	combined, err := hybridDecapsulate(staticPrivate, ephemeralPublic, kemPrivate, kemCiphertext)
	if err != nil {
		return nil, err
	}
	defer combined.Wipe()

	salt, err := sealedSalt(wrapped)
	if err != nil {
		return nil, err
	}
	wrapKey, err := deriveMasterWrapKey(combined.Bytes(), salt)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(wrapKey)

	master, err := openSealed(wrapKey, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap master secret: %w", err)
	}
	return wrapSecret(master), nil
}

func runSign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	bundleDir := fs.String("bundle", ".", "Bundle root directory (needs private/)")
	imagePath := fs.String("image", "", "Image file to sign")
	sigPath := fs.String("sig", "", "Signature output path (default <image>.sig)")
	fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("--image is required")
	}
	if *sigPath == "" {
		*sigPath = *imagePath + ".sig"
	}

	priv, err := loadPrivateBundle(*bundleDir)
	if err != nil {
		return err
	}
	signKey, err := decodeField("mldsa_private_key", priv.MLDSAPrivateKey)
	if err != nil {
		return err
	}
	defer zeroBytes(signKey)

	image, err := os.ReadFile(*imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	sig, err := signImage(signKey, image)
	if err != nil {
		return err
	}
	if err := writeArtifact(*sigPath, sig, 0o644); err != nil {
		return err
	}

	log.Info().Str("image", *imagePath).Str("sig", *sigPath).Msg("Image signed")
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	bundleDir := fs.String("bundle", ".", "Bundle root directory (needs public/)")
	imagePath := fs.String("image", "", "Image file to verify")
	sigPath := fs.String("sig", "", "Signature path (default <image>.sig)")
	fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("--image is required")
	}
	if *sigPath == "" {
		*sigPath = *imagePath + ".sig"
	}

	pub, err := loadPublicBundle(*bundleDir)
	if err != nil {
		return err
	}
	verifyKey, err := decodeField("mldsa_public_key", pub.MLDSAPublicKey)
	if err != nil {
		return err
	}

	image, err := os.ReadFile(*imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	sig, err := os.ReadFile(*sigPath)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	ok, err := verifyImage(verifyKey, image, sig)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("signature verification failed for %s", *imagePath)
	}

	log.Info().Str("image", *imagePath).Msg("Signature valid")
	return nil
}

// decodeField decodes a base64 bundle field, naming it on failure.
func decodeField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("bundle field %s is empty", name)
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("bundle field %s is not valid base64: %w", name, err)
	}
	return b, nil
}
