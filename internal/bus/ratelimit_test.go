package bus

import "testing"

func TestRateLimiterAllowsUpToCapacityBurst(t *testing.T) {
	rl := NewRateLimiter(3)
	for i := 0; i < 3; i++ {
		if !rl.Allow("source-a") {
			t.Fatalf("expected burst token %d to be allowed", i)
		}
	}
	if rl.Allow("source-a") {
		t.Fatal("expected 4th call within the burst to be denied")
	}
}

func TestRateLimiterBucketsArePerSource(t *testing.T) {
	rl := NewRateLimiter(1)
	if !rl.Allow("a") {
		t.Fatal("expected first call for source a to be allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("expected source b's bucket to be independent of source a")
	}
	if rl.Allow("a") {
		t.Fatal("expected source a's single-capacity bucket to now be empty")
	}
}

func TestRateLimiterDefaultsToSixOnNonPositiveCapacity(t *testing.T) {
	rl := NewRateLimiter(0)
	if rl.capacity != 6 {
		t.Fatalf("expected default capacity 6, got %d", rl.capacity)
	}
}
