package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, OpenTimeout: time.Minute})
	for i := 0; i < 3; i++ {
		if err := b.Execute(fail); !errors.Is(err, errUpstream) {
			t.Fatalf("Execute() #%d error = %v, want upstream error", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() while open error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn called while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 2})
	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	var transitions []string
	b := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	b.now = func() time.Time { return now }

	_ = b.Execute(fail)
	now = now.Add(11 * time.Second)
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("probe Execute() error = %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half_open after one probe", b.State())
	}
	_ = b.Execute(succeed)
	if b.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", b.State())
	}
	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := New(Config{FailureThreshold: 1, OpenTimeout: time.Second})
	b.now = func() time.Time { return now }
	_ = b.Execute(fail)
	now = now.Add(2 * time.Second)
	_ = b.Execute(fail)
	if b.State() != StateOpen {
		t.Errorf("State() = %v, want open", b.State())
	}
}

// TestBreaker_ShouldTrip verifies ignored errors neither open the breaker nor get swallowed.
func TestBreaker_ShouldTrip(t *testing.T) {
	notFound := errors.New("not found")
	b := New(Config{
		FailureThreshold: 1,
		ShouldTrip:       func(err error) bool { return !errors.Is(err, notFound) },
	})
	if err := b.Execute(func() error { return notFound }); !errors.Is(err, notFound) {
		t.Fatalf("Execute() error = %v, want not found", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %v, want closed", b.State())
	}
}
