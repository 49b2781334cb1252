package service

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDelayDoublesUpToMax(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Max: 5 * time.Second, MaxAttempts: 5}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v", got)
	}

	uncapped := BackoffPolicy{Base: time.Second}
	if got := uncapped.Delay(4); got != 8*time.Second {
		t.Errorf("uncapped Delay(4) = %v", got)
	}
}

func TestBackoffExhausted(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3}
	if p.Exhausted(2) {
		t.Error("2 of 3 attempts should not be exhausted")
	}
	if !p.Exhausted(3) {
		t.Error("3 of 3 attempts should be exhausted")
	}
}

func TestSleepContextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("got %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("got %v", err)
	}
}
