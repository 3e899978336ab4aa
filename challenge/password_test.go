package main

import (
	"strings"
	"testing"
)

// The full-strength parameters take ~100ms+ per derivation; the tests
// accept that rather than weakening the production path.

func TestHashVerifyRoundTrip(t *testing.T) {
	phc, err := HashPassword([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := VerifyPassword([]byte("correct horse battery staple"), phc)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("Correct password rejected")
	}

	ok, err = VerifyPassword([]byte("correct horse battery stapl"), phc)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatal("Wrong password accepted")
	}
}

func TestHashPHCShape(t *testing.T) {
	phc, err := HashPassword([]byte("hunter2hunter2"))
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(phc, "$scrypt$ln=17,r=8,p=1$") {
		t.Errorf("Unexpected PHC prefix: %q", phc)
	}
	if strings.Count(phc, "$") != 4 {
		t.Errorf("Unexpected PHC field count: %q", phc)
	}
}

func TestHashingTwiceYieldsDistinctSalts(t *testing.T) {
	password := []byte("same password both times")

	first, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	second, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if first == second {
		t.Fatal("Two hashes of the same password are identical")
	}

	for _, phc := range []string{first, second} {
		ok, err := VerifyPassword(password, phc)
		if err != nil {
			t.Fatalf("VerifyPassword: %v", err)
		}
		if !ok {
			t.Error("Independently salted hash failed to verify")
		}
	}
}

func TestVerifyRejectsMalformedHashWithoutPanic(t *testing.T) {
	cases := []string{
		"",
		"not a phc string",
		"$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"$scrypt$ln=17,r=8,p=1$c2FsdA",           // missing key field
		"$scrypt$ln=17,r=8,p=1$!!$aGFzaA",        // invalid base64 salt
		"$scrypt$ln=banana,r=8,p=1$c2FsdA$aGFzaA", // non-numeric param
		"$scrypt$ln=64,r=8,p=1$c2FsdA$aGFzaA",    // ln out of range
		"$scrypt$ln=17,r=8$c2FsdA$aGFzaA",        // missing p
		"$scrypt$ln=17,r=8,p=1$$",                // empty salt and key
		"\xff\xfe$scrypt$",                       // not UTF-8
	}

	for _, phc := range cases {
		ok, err := VerifyPassword([]byte("anything"), phc)
		if err == nil {
			t.Errorf("Malformed hash %q accepted", phc)
		}
		if ok {
			t.Errorf("Malformed hash %q verified", phc)
		}
	}
}

func TestParsePHCRecoversParameters(t *testing.T) {
	phc, err := HashPassword([]byte("parameterized"))
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	parsed, err := parsePHC(phc)
	if err != nil {
		t.Fatalf("parsePHC: %v", err)
	}
	if parsed.logN != scryptLogN || parsed.r != scryptR || parsed.p != scryptP {
		t.Errorf("Parsed params ln=%d r=%d p=%d", parsed.logN, parsed.r, parsed.p)
	}
	if len(parsed.salt) != saltLen {
		t.Errorf("Parsed salt length %d, want %d", len(parsed.salt), saltLen)
	}
	if len(parsed.key) != scryptKeyLen {
		t.Errorf("Parsed key length %d, want %d", len(parsed.key), scryptKeyLen)
	}
}
