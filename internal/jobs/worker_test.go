package jobs

import (
	"testing"
	"time"
)

func TestBackoffForGrowsExponentially(t *testing.T) {
	if got := backoffFor(0); got != 5*time.Minute {
		t.Fatalf("attempt 0: expected 5m, got %v", got)
	}
	if got := backoffFor(1); got != 10*time.Minute {
		t.Fatalf("attempt 1: expected 10m, got %v", got)
	}
	if got := backoffFor(2); got != 20*time.Minute {
		t.Fatalf("attempt 2: expected 20m, got %v", got)
	}
}

func TestBackoffForCapsAtOneHour(t *testing.T) {
	if got := backoffFor(20); got != time.Hour {
		t.Fatalf("expected backoff to cap at 1h, got %v", got)
	}
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(nil, nil, nil, PoolConfig{})
	if p.workers != 3 {
		t.Fatalf("expected default worker count 3, got %d", p.workers)
	}
	if p.pollEvery != 2*time.Second {
		t.Fatalf("expected default poll interval 2s, got %v", p.pollEvery)
	}
	if p.batchSize != 10 {
		t.Fatalf("expected default batch size 10, got %d", p.batchSize)
	}
	if p.jobTimeout != 15*time.Second {
		t.Fatalf("expected default job timeout 15s, got %v", p.jobTimeout)
	}
}
