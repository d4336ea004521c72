package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func testConfig() Config {
	return Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             20 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() = %v, want errBoom while closed", err)
		}
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("Execute() = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn ran while the breaker was open")
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open", cb.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig())

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("Execute() = %v, want errBoom", err)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	// One more failure must not open: the success reset the streak.
	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("Execute() = %v, want errBoom", err)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() = %v, want nil (breaker should still be closed)", err)
	}
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("Execute() = %v, want ErrOpen right after opening", err)
	}

	time.Sleep(30 * time.Millisecond)

	// Probe succeeds, breaker closes again.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe Execute() = %v, want nil", err)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() = %v, want nil after recovery", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestFailedProbeReopens(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	_ = cb.Execute(func() error { return nil }) // trips to open

	time.Sleep(30 * time.Millisecond)

	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe Execute() = %v, want errBoom", err)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("Execute() = %v, want ErrOpen after failed probe", err)
	}
}

func TestReset(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	cb.Reset()
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() after Reset = %v, want nil", err)
	}
}
