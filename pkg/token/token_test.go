package token

import (
	"strings"
	"testing"
)

func TestMint_PlaintextShape(t *testing.T) {
	m, err := Mint()
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	id, secret, err := Parse(m.Plaintext)
	if err != nil {
		t.Fatalf("Parse(minted plaintext) error: %v", err)
	}
	if id != m.ID {
		t.Errorf("parsed id = %s, want %s", id, m.ID)
	}
	// 32 bytes base64url without padding = 43 chars
	if len(secret) != 43 {
		t.Errorf("secret length = %d, want 43", len(secret))
	}
}

func TestMint_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		m, err := Mint()
		if err != nil {
			t.Fatalf("Mint() error: %v", err)
		}
		if seen[m.Plaintext] {
			t.Fatal("duplicate plaintext token minted")
		}
		seen[m.Plaintext] = true
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	m, err := Mint()
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}

	_, secret, _ := Parse(m.Plaintext)
	if !Verify(secret, m.Salt, m.Hash) {
		t.Error("minted token should verify against its own hash")
	}
	if Verify(secret+"x", m.Salt, m.Hash) {
		t.Error("tampered secret should not verify")
	}
	if Verify(secret, "00", m.Hash) {
		t.Error("wrong salt should not verify")
	}
}

func TestHashWithSalt_Deterministic(t *testing.T) {
	a := HashWithSalt("secret", "salt")
	b := HashWithSalt("secret", "salt")
	if a != b {
		t.Error("same inputs should hash identically")
	}
	if HashWithSalt("secret", "other") == a {
		t.Error("different salts should produce different hashes")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separator", "abcdef"},
		{"empty secret", "9f4c6a2e-1111-4222-8333-444455556666."},
		{"bad uuid", "not-a-uuid.secretpart"},
		{"whitespace", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) should fail", tt.input)
			}
		})
	}
}

func TestParse_DoesNotLeakDetail(t *testing.T) {
	// All parse failures return the same generic message.
	_, _, err1 := Parse("garbage")
	_, _, err2 := Parse("not-a-uuid.secret")
	if err1 == nil || err2 == nil {
		t.Fatal("both inputs should fail to parse")
	}
	if !strings.Contains(err1.Error(), "malformed token") || err1.Error() != err2.Error() {
		t.Error("parse errors should be uniform")
	}
}
