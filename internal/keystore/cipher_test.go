package keystore

import (
	"strings"
	"testing"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("master-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	for _, plaintext := range []string{"sk-abc123", "", "ключ с юникодом", strings.Repeat("x", 4096)} {
		enc, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if enc == plaintext && plaintext != "" {
			t.Errorf("ciphertext equals plaintext for %q", plaintext)
		}
		dec, err := c.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if dec != plaintext {
			t.Errorf("round trip = %q, want %q", dec, plaintext)
		}
	}
}

func TestCipherNonceVaries(t *testing.T) {
	c, err := NewCipher("master-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestCipherWrongMasterSecret(t *testing.T) {
	c1, _ := NewCipher("secret-one")
	c2, _ := NewCipher("secret-two")

	enc, err := c1.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Decrypt(enc); err == nil {
		t.Error("decrypting with a different master secret must fail")
	}
}

func TestCipherRejectsGarbage(t *testing.T) {
	c, _ := NewCipher("master-secret")
	for _, in := range []string{"not base64 !!!", "YWJj", ""} {
		if _, err := c.Decrypt(in); err == nil {
			t.Errorf("Decrypt(%q) succeeded, want error", in)
		}
	}
}

func TestNewCipherEmptySecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Error("empty master secret must be rejected")
	}
}
