package http

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInFlightTracker_ConcurrentCounting(t *testing.T) {
	tracker := &InFlightTracker{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment()
		}()
	}
	wg.Wait()
	if got := tracker.Count(); got != 50 {
		t.Fatalf("Count() = %d, want 50", got)
	}

	for i := 0; i < 50; i++ {
		tracker.Decrement()
	}
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero_Idle(t *testing.T) {
	tracker := &InFlightTracker{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Already drained: returns before looking at ctx.
	if err := tracker.WaitForZero(ctx, time.Hour); err != nil {
		t.Errorf("WaitForZero on idle tracker = %v, want nil", err)
	}
}

func TestInFlightTracker_WaitForZero_Drains(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	result := make(chan error, 1)
	go func() {
		result <- tracker.WaitForZero(context.Background(), time.Millisecond)
	}()
	tracker.Decrement()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("WaitForZero = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForZero did not return after the last request finished")
	}
}

func TestInFlightTracker_WaitForZero_Deadline(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tracker.WaitForZero(ctx, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForZero = %v, want DeadlineExceeded", err)
	}
	if tracker.Count() != 1 {
		t.Errorf("Count() = %d, want 1", tracker.Count())
	}
}
