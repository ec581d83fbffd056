package breaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func newTestBreaker() (*Breaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()
	fail := func() error { return errBoom }

	_ = b.Execute(fail)
	if b.State() != StateClosed {
		t.Fatalf("State() = %v after one failure, want closed", b.State())
	}
	_ = b.Execute(fail)
	if b.State() != StateOpen {
		t.Fatalf("State() = %v after two failures, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn should not run while open")
	}
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	b, now := newTestBreaker()
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })

	*now = now.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %v after timeout, want half-open", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v after trial success, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker()
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	*now = now.Add(2 * time.Minute)

	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Errorf("State() = %v after trial failure, want open", b.State())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker()
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed (failures not consecutive)", b.State())
	}
}
