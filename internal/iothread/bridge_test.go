package iothread

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCallRunsOnBridgeGoroutine(t *testing.T) {
	b := New()
	defer b.Stop()

	var n int32
	b.Call(func() { atomic.AddInt32(&n, 1) })
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("expected fn to have run, got n=%d", n)
	}
}

func TestCallBlocksUntilDone(t *testing.T) {
	b := New()
	defer b.Stop()

	done := make(chan struct{})
	go func() {
		b.Call(func() { time.Sleep(20 * time.Millisecond) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return")
	}
}

func TestCallsAreSerialized(t *testing.T) {
	b := New()
	defer b.Stop()

	order := make([]int, 0, 3)
	ch := make(chan struct{})
	go func() {
		b.Call(func() {
			<-ch
			order = append(order, 1)
		})
	}()
	time.Sleep(10 * time.Millisecond)
	close(ch)
	b.Call(func() { order = append(order, 2) })

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected calls to serialize in order, got %v", order)
	}
}

func TestStopAfterStopIsANoop(t *testing.T) {
	b := New()
	b.Stop()
	b.Stop() // must not panic
}
