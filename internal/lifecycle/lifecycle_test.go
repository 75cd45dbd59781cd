package lifecycle

import (
	"testing"
	"time"
)

func TestShuttingDown_ServingByDefault(t *testing.T) {
	Reset()
	if ShuttingDown() {
		t.Error("ShuttingDown() = true before BeginShutdown")
	}
	if !DrainingSince().IsZero() {
		t.Errorf("DrainingSince() = %v, want zero", DrainingSince())
	}
}

func TestBeginShutdown_KeepsFirstTime(t *testing.T) {
	Reset()
	defer Reset()

	first := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	BeginShutdown(first)
	BeginShutdown(first.Add(time.Minute))

	if !ShuttingDown() {
		t.Fatal("ShuttingDown() = false after BeginShutdown")
	}
	if got := DrainingSince(); !got.Equal(first) {
		t.Errorf("DrainingSince() = %v, want %v", got, first)
	}
}

func TestReset(t *testing.T) {
	BeginShutdown(time.Now())
	Reset()
	if ShuttingDown() {
		t.Error("ShuttingDown() = true after Reset")
	}
}
