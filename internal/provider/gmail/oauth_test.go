package gmail

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestOAuthConfig(t *testing.T) {
	cfg := OAuthConfig("id", "secret", "http://localhost:8000/cb")
	if cfg.ClientID != "id" || cfg.RedirectURL != "http://localhost:8000/cb" {
		t.Errorf("OAuthConfig() = %+v", cfg)
	}
	if len(cfg.Scopes) != 6 {
		t.Errorf("Scopes = %v, want 6", cfg.Scopes)
	}
}

func TestLoopback(t *testing.T) {
	lb, err := ListenLoopback()
	if err != nil {
		t.Fatalf("ListenLoopback() error: %v", err)
	}
	defer lb.Close()

	if !strings.HasPrefix(lb.RedirectURL, "http://127.0.0.1:") {
		t.Errorf("RedirectURL = %q", lb.RedirectURL)
	}

	resp, err := http.Get(lb.RedirectURL + "?code=abc&state=xyz")
	if err != nil {
		t.Fatalf("callback request error: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cb, err := lb.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if cb.Code != "abc" || cb.State != "xyz" {
		t.Errorf("Wait() = %+v", cb)
	}
}

func TestLoopback_Error(t *testing.T) {
	lb, err := ListenLoopback()
	if err != nil {
		t.Fatal(err)
	}
	defer lb.Close()

	resp, err := http.Get(lb.RedirectURL + "?error=access_denied")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if _, err := lb.Wait(context.Background()); err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("Wait() error = %v, want access_denied", err)
	}
}
