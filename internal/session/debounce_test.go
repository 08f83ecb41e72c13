package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	var calls int32
	d := NewDebouncer(func() { atomic.AddInt32(&calls, 1) })

	for i := 0; i < 10; i++ {
		d.Schedule(20 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if d.Pending() {
		t.Error("debouncer still pending after run")
	}
}

func TestDebouncerCancel(t *testing.T) {
	var calls int32
	d := NewDebouncer(func() { atomic.AddInt32(&calls, 1) })

	d.Schedule(20 * time.Millisecond)
	if !d.Pending() {
		t.Fatal("expected pending run")
	}
	d.Cancel()
	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestDebouncerReschedule(t *testing.T) {
	done := make(chan struct{}, 2)
	d := NewDebouncer(func() { done <- struct{}{} })

	d.Schedule(time.Hour)
	d.Schedule(0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rescheduled run did not fire")
	}
}
