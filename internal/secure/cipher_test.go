package secure

import (
	"errors"
	"strings"
	"testing"
)

func TestCipher_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		plain  string
	}{
		{"short secret", "hunter2", "ya29.a0AfH6SMB"},
		{"32 byte secret", strings.Repeat("k", 32), "1//0gRefreshToken"},
		{"unicode", "another secret", "tökén ✓"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.secret)
			if err != nil {
				t.Fatalf("NewCipher() error: %v", err)
			}
			enc, err := c.Encrypt(tt.plain)
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			if enc == tt.plain || strings.Contains(enc, tt.plain) {
				t.Errorf("Encrypt() leaked plaintext: %q", enc)
			}
			got, err := c.Decrypt(enc)
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if got != tt.plain {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plain)
			}
		})
	}
}

func TestCipher_Empty(t *testing.T) {
	c, _ := NewCipher("k")
	if enc, err := c.Encrypt(""); err != nil || enc != "" {
		t.Errorf("Encrypt(\"\") = %q, %v; want empty, nil", enc, err)
	}
	if dec, err := c.Decrypt(""); err != nil || dec != "" {
		t.Errorf("Decrypt(\"\") = %q, %v; want empty, nil", dec, err)
	}
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c, _ := NewCipher("k")
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Error("two encryptions of the same token should differ")
	}
}

func TestCipher_WrongKey(t *testing.T) {
	a, _ := NewCipher("key-a")
	b, _ := NewCipher("key-b")
	enc, _ := a.Encrypt("token")
	if _, err := b.Decrypt(enc); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Decrypt() with wrong key error = %v, want ErrDecrypt", err)
	}
}

func TestCipher_Tampered(t *testing.T) {
	c, _ := NewCipher("k")
	for _, in := range []string{"not base64!!", "AAAA", "YWJjZGVmZ2hpamtsbW5vcHFyc3R1dnd4eXowMTIzNDU2Nzg5"} {
		if _, err := c.Decrypt(in); !errors.Is(err, ErrDecrypt) {
			t.Errorf("Decrypt(%q) error = %v, want ErrDecrypt", in, err)
		}
	}
}

func TestNewCipher_EmptySecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Error("NewCipher(\"\") should fail")
	}
}
