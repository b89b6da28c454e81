package tmc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/usbtmc/pkg"
)

func TestChannelRequestOrder(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel()

	for i := 1; i <= QueueDepth; i++ {
		req := Request{Tag: uint8(i)}
		if err := ch.EnqueueRequest(ctx, req); err != nil {
			t.Fatalf("EnqueueRequest(%d) error = %v", i, err)
		}
	}
	if n := ch.PendingRequests(); n != QueueDepth {
		t.Fatalf("PendingRequests() = %d, want %d", n, QueueDepth)
	}

	for i := 1; i <= QueueDepth; i++ {
		req, err := ch.DequeueRequest(ctx)
		if err != nil {
			t.Fatalf("DequeueRequest() error = %v", err)
		}
		if req.Tag != uint8(i) {
			t.Fatalf("dequeued tag %d, want %d (FIFO order)", req.Tag, i)
		}
	}
}

// The queue accepts exactly QueueDepth items; the next producer
// suspends until a consumer makes room.
func TestChannelBackpressure(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel()

	for i := 0; i < QueueDepth; i++ {
		if err := ch.EnqueueRequest(ctx, Request{Tag: 1}); err != nil {
			t.Fatal(err)
		}
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := ch.EnqueueRequest(short, Request{Tag: 2}); !errors.Is(err, pkg.ErrCancelled) {
		t.Fatalf("EnqueueRequest(full) error = %v, want %v", err, pkg.ErrCancelled)
	}

	// Freeing one slot unblocks the producer.
	done := make(chan error, 1)
	go func() {
		done <- ch.EnqueueRequest(ctx, Request{Tag: 2})
	}()

	if _, err := ch.DequeueRequest(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EnqueueRequest() error = %v after slot freed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after slot freed")
	}
}

func TestChannelDequeueCancelled(t *testing.T) {
	ch := NewChannel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ch.DequeueRequest(ctx); !errors.Is(err, pkg.ErrCancelled) {
		t.Fatalf("DequeueRequest() error = %v, want %v", err, pkg.ErrCancelled)
	}
	if _, err := ch.DequeueResponse(ctx); !errors.Is(err, pkg.ErrCancelled) {
		t.Fatalf("DequeueResponse() error = %v, want %v", err, pkg.ErrCancelled)
	}
}

func TestChannelTryDequeueResponse(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel()

	if _, ok := ch.TryDequeueResponse(); ok {
		t.Fatal("TryDequeueResponse() = true on empty queue")
	}

	if err := ch.EnqueueResponse(ctx, Response{Tag: 5, Len: 1}); err != nil {
		t.Fatal(err)
	}
	resp, ok := ch.TryDequeueResponse()
	if !ok || resp.Tag != 5 {
		t.Fatalf("TryDequeueResponse() = (%+v, %v), want tag 5, true", resp, ok)
	}
}
