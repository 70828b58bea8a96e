package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBarrierRelease(t *testing.T) {
	b := NewBarrier()
	if b.Released() {
		t.Fatal("new barrier should not be released")
	}

	done := make(chan error, 1)
	go func() { done <- b.Wait(context.Background()) }()

	b.Release()
	b.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
	if !b.Released() {
		t.Error("Released() = false after Release")
	}
}

func TestBarrierWaitContext(t *testing.T) {
	b := NewBarrier()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := b.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}
