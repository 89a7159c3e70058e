package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestPolicyValidate(t *testing.T) {
	good := Policy{MaxAttempts: 3, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute, Jitter: 0.25}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}

	bad := []Policy{
		{MaxAttempts: 0, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute},
		{MaxAttempts: 3, InitialDelay: -time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute},
		{MaxAttempts: 3, InitialDelay: time.Second, BackoffMultiplier: 0.5, MaxDelay: time.Minute},
		{MaxAttempts: 3, InitialDelay: time.Minute, BackoffMultiplier: 2, MaxDelay: time.Second},
		{MaxAttempts: 3, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute, Jitter: 1.5},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("policy %d: expected error, got nil", i)
		}
	}
}

func TestNextDelayExponentialGrowth(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: 100 * time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Minute}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i, w := range want {
		if got := NextDelay(i+1, p, nil); got != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestNextDelayCappedAtMax(t *testing.T) {
	p := Policy{MaxAttempts: 50, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: 5 * time.Second}
	if got := NextDelay(30, p, nil); got != 5*time.Second {
		t.Fatalf("delay = %v, want cap %v", got, 5*time.Second)
	}
}

func TestNextDelayJitterStaysBounded(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: time.Second, BackoffMultiplier: 1, MaxDelay: time.Minute, Jitter: 0.5}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		d := NextDelay(1, p, rng)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("jittered delay %v outside [0.5s, 1.5s]", d)
		}
	}
}

func TestNextDelayInvalidAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialDelay: time.Second, BackoffMultiplier: 2, MaxDelay: time.Minute}
	if got := NextDelay(0, p, nil); got != 0 {
		t.Fatalf("delay for attempt 0 = %v, want 0", got)
	}
}
