package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokens_IssueAndParse(t *testing.T) {
	tok, err := NewTokens("s3cret", 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	signed, exp, err := tok.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if d := time.Until(exp); d < 29*time.Minute || d > 31*time.Minute {
		t.Errorf("expiry in %v, want ~30m", d)
	}

	sub, err := tok.Parse(signed)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if sub != "user-1" {
		t.Errorf("Parse() = %q, want user-1", sub)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tok, _ := NewTokens("s3cret", time.Minute)
	other, _ := NewTokens("different", time.Minute)
	signed, _, _ := tok.Issue("user-1")

	expired, _ := NewTokens("s3cret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, _ := expired.Issue("user-1")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
		Issuer:  issuer,
	}).SignedString([]byte("s3cret"))

	tests := []struct {
		name  string
		token string
		with  *Tokens
	}{
		{"wrong secret", signed, other},
		{"expired", old, tok},
		{"alg none", none, tok},
		{"no expiry", noExp, tok},
		{"garbage", "not.a.token", tok},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.with.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewTokens_RequiresSecret(t *testing.T) {
	if _, err := NewTokens("", time.Minute); err == nil {
		t.Error("NewTokens(\"\") should fail")
	}
}
