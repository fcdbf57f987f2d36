package fetch

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiter(t *testing.T) {
	limiter := NewHostLimiter(100 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := limiter.Wait(ctx, "https://ics.uci.edu/a"); err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	// www. shares the bucket of the bare host
	if err := limiter.Wait(ctx, "https://www.ics.uci.edu/b"); err != nil {
		t.Fatalf("Second request failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Second request to the same host was not delayed, elapsed %v", elapsed)
	}

	start = time.Now()
	if err := limiter.Wait(ctx, "https://cs.uci.edu/"); err != nil {
		t.Fatalf("Other host request failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("Different host was rate limited, elapsed %v", elapsed)
	}
}

func TestHostLimiterCustomDelay(t *testing.T) {
	limiter := NewHostLimiter(10 * time.Millisecond)
	limiter.SetHostDelay("stats.uci.edu", 150*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	_ = limiter.Wait(ctx, "https://stats.uci.edu/1")
	_ = limiter.Wait(ctx, "https://stats.uci.edu/2")
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Errorf("Custom delay not applied, elapsed %v", elapsed)
	}
}

func TestHostLimiterDisabled(t *testing.T) {
	var nilLimiter *HostLimiter
	if err := nilLimiter.Wait(context.Background(), "https://ics.uci.edu/"); err != nil {
		t.Errorf("nil limiter should not block: %v", err)
	}

	limiter := NewHostLimiter(0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		_ = limiter.Wait(context.Background(), "https://ics.uci.edu/")
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("Disabled limiter delayed requests, elapsed %v", elapsed)
	}
}

func TestHostLimiterContextCancel(t *testing.T) {
	limiter := NewHostLimiter(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	_ = limiter.Wait(ctx, "https://ics.uci.edu/")
	cancel()
	if err := limiter.Wait(ctx, "https://ics.uci.edu/"); err == nil {
		t.Error("Expected error from cancelled context")
	}
}
