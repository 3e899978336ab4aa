// Package main implements the challenge verifier: a stateless,
// single-shot binary the tamper gate spawns on suspected tamper. Default
// mode prompts for a password up to a fixed attempt limit and verifies it
// against the stored scrypt hash; the setup subcommand creates the
// credential files.
//
// Exit codes: 0 authenticated, 1 denied or error. The gate treats
// anything but 0 as a failed challenge.
package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxAttempts is the fixed number of password attempts per invocation.
const MaxAttempts = 3

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		os.Exit(runSetup(os.Args[2:]))
	}
	os.Exit(runChallenge(os.Args[1:]))
}

// runChallenge is the default mode: up to MaxAttempts prompts against the
// stored hash. Any failure to read or parse the hash is a denial, not a
// soft error.
func runChallenge(args []string) int {
	fs := flag.NewFlagSet("challenge", flag.ContinueOnError)
	hashFile := fs.String("hash-file", DefaultHashFile, "Path to the stored password hash")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	phc, err := loadHash(*hashFile)
	if err != nil {
		log.Error().Err(err).Msg("Cannot load credential, denying")
		return 1
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		password, err := promptPassword(fmt.Sprintf("Password (attempt %d/%d): ", attempt, MaxAttempts))
		if err != nil {
			// Interrupted or closed stdin is a denial.
			log.Error().Err(err).Msg("Input interrupted, denying")
			return 1
		}

		ok, err := VerifyPassword(password, phc)
		zeroBytes(password)
		if err != nil {
			log.Error().Err(err).Msg("Stored hash is unusable, denying")
			return 1
		}
		if ok {
			fmt.Fprintln(os.Stderr, "Authenticated.")
			return 0
		}
		fmt.Fprintf(os.Stderr, "Denied (%d/%d).\n", attempt, MaxAttempts)
	}

	fmt.Fprintln(os.Stderr, "All attempts exhausted.")
	return 1
}

// runSetup creates the credential files: password + confirmation, both
// read without echo, rejected on mismatch or short length.
func runSetup(args []string) int {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	hashFile := fs.String("hash-file", DefaultHashFile, "Path to write the password hash")
	saltFile := fs.String("salt-file", DefaultSaltFile, "Path to write the salt")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	password, err := promptPassword("New challenge password: ")
	if err != nil {
		log.Error().Err(err).Msg("Input interrupted")
		return 1
	}
	defer zeroBytes(password)

	if len(password) < MinPasswordLen {
		fmt.Fprintf(os.Stderr, "Password must be at least %d characters.\n", MinPasswordLen)
		return 1
	}

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		log.Error().Err(err).Msg("Input interrupted")
		return 1
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(password, confirm) {
		fmt.Fprintln(os.Stderr, "Passwords do not match.")
		return 1
	}

	salt, err := newSalt()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate salt")
		return 1
	}

	fmt.Fprintln(os.Stderr, "Deriving hash (this takes a moment)...")
	phc, err := hashWithSalt(password, salt)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		return 1
	}

	if err := storeCredential(*hashFile, *saltFile, phc, salt); err != nil {
		log.Error().Err(err).Msg("Failed to store credential")
		return 1
	}

	record, err := operatorRecordPassphrase()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate operator record passphrase")
		return 1
	}

	fmt.Fprintf(os.Stderr, "Credential written to %s (salt: %s).\n", *hashFile, *saltFile)
	fmt.Println("Operator record passphrase (store offline, shown once):")
	fmt.Println(record)
	return 0
}

// operatorRecordPassphrase generates the passphrase material printed once
// at setup for the operator's offline records.
func operatorRecordPassphrase() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}
