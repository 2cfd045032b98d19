package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := New(Config{
		Name:        "query",
		MaxFailures: 3,
		Timeout:     time.Minute,
		MaxRequests: 1,
	}, testLogger())

	failing := func() error { return errors.New("upstream down") }

	for i := 0; i < 3; i++ {
		if err := b.Execute(failing); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("expected open after %d failures, got %s", 3, b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not call upstream")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{Name: "query", MaxFailures: 2, Timeout: time.Minute}, testLogger())

	if err := b.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}

	if b.State() != StateClosed {
		t.Errorf("single failure after success should not open breaker, state=%s", b.State())
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := New(Config{
		Name:        "command",
		MaxFailures: 1,
		Timeout:     10 * time.Millisecond,
		MaxRequests: 1,
	}, testLogger())

	if err := b.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("successful probe should close breaker, state=%s", b.State())
	}
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := New(Config{
		Name:        "command",
		MaxFailures: 1,
		Timeout:     10 * time.Millisecond,
		MaxRequests: 1,
	}, testLogger())

	b.Execute(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return errors.New("still down") }); err == nil {
		t.Fatal("expected probe failure")
	}
	if b.State() != StateOpen {
		t.Errorf("failed probe should reopen breaker, state=%s", b.State())
	}
}

func TestResetClosesBreaker(t *testing.T) {
	b := New(Config{Name: "reference", MaxFailures: 1, Timeout: time.Minute}, testLogger())

	b.Execute(func() error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	b := New(Config{}, testLogger())

	if b.name != "unnamed" {
		t.Errorf("expected default name, got %q", b.name)
	}
	if b.maxFailures != 5 {
		t.Errorf("expected default max failures 5, got %d", b.maxFailures)
	}
	if b.timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", b.timeout)
	}
	if b.maxRequests != 1 {
		t.Errorf("expected default max requests 1, got %d", b.maxRequests)
	}
}
