package crawler

import (
	"testing"
	"time"
)

func TestShouldRetryByKind(t *testing.T) {
	p := NewRetryPolicy(3, time.Second, time.Minute, 2.0)

	tests := []struct {
		name    string
		attempt int
		kind    ErrorKind
		want    bool
	}{
		{"transient first attempt", 1, KindTransient, true},
		{"timeout first attempt", 1, KindTimeout, true},
		{"server error", 1, KindHTTPServer, true},
		{"throttled", 1, KindThrottled, true},
		{"client error never retried", 1, KindHTTPClient, false},
		{"malformed URL never retried", 1, KindMalformedURL, false},
		{"circuit open never retried", 1, KindCircuitOpen, false},
		{"budget exhausted", 3, KindTransient, false},
		{"over budget", 4, KindTransient, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldRetry(tt.attempt, tt.kind); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempt, tt.kind, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	p := NewRetryPolicy(10, time.Second, 10*time.Second, 2.0)
	p.jitter = func(time.Duration) time.Duration { return 0 }

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // capped
		10 * time.Second,
	}
	for i, expected := range want {
		if got := p.BackoffDelay(i + 1); got != expected {
			t.Errorf("BackoffDelay(%d) = %v, want %v", i+1, got, expected)
		}
	}
}

func TestBackoffJitterBounded(t *testing.T) {
	p := NewRetryPolicy(5, time.Second, time.Minute, 2.0)

	for attempt := 1; attempt <= 4; attempt++ {
		base := time.Duration(float64(time.Second) * pow2(attempt-1))
		for i := 0; i < 50; i++ {
			got := p.BackoffDelay(attempt)
			if got < base || got >= base+base/2 {
				t.Fatalf("BackoffDelay(%d) = %v outside [%v, %v)", attempt, got, base, base+base/2)
			}
		}
	}
}

func TestBackoffJitterCapped(t *testing.T) {
	p := NewRetryPolicy(5, time.Second, time.Second, 2.0)

	for i := 0; i < 50; i++ {
		if got := p.BackoffDelay(3); got > time.Second {
			t.Fatalf("BackoffDelay exceeded cap: %v", got)
		}
	}
}

func TestRetryPolicyMinimums(t *testing.T) {
	p := NewRetryPolicy(0, time.Second, time.Minute, 0.5)
	if p.Tries != 1 {
		t.Errorf("Expected tries clamped to 1, got %d", p.Tries)
	}
	if p.Multiplier != 1 {
		t.Errorf("Expected multiplier clamped to 1, got %v", p.Multiplier)
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}
