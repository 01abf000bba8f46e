package slskd

import (
	"context"
	"testing"
	"time"
)

func TestSearchLimiterWindow(t *testing.T) {
	l := newSearchLimiter(searchWindowLimit, searchWindow)
	start := time.Now()

	for i := 0; i < searchWindowLimit; i++ {
		delay, ok := l.reserve(start.Add(time.Duration(i) * time.Second))
		if !ok {
			t.Fatalf("search %d should not wait, got delay %v", i+1, delay)
		}
	}

	// The 36th start inside the window must wait until the first stamp
	// leaves it.
	at := start.Add(35 * time.Second)
	delay, ok := l.reserve(at)
	if ok {
		t.Fatal("36th search inside the window must wait")
	}
	want := start.Add(searchWindow).Sub(at)
	if delay != want {
		t.Errorf("delay = %v, want %v", delay, want)
	}

	// Once the oldest stamp expires a slot frees up.
	if _, ok := l.reserve(start.Add(searchWindow + time.Second)); !ok {
		t.Error("slot should free once the oldest stamp leaves the window")
	}
}

func TestSearchLimiterWaitHonorsContext(t *testing.T) {
	l := newSearchLimiter(1, time.Hour)
	if err := l.wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.wait(ctx)
	if err == nil {
		t.Fatal("wait should fail when the context ends before a slot frees")
	}
}
