package tmc

import (
	"context"

	"github.com/ardnew/usbtmc/pkg"
)

// Request is one fully reassembled command message. It is created when
// reassembly completes, consumed exactly once by the command handler,
// and then discarded.
type Request struct {
	Tag  uint8 // bTag of the transfer that carried this command
	EOM  bool  // End-Of-Message attribute from the transfer header
	Len  int
	Data [MaxMessageSize]byte
}

// Bytes returns the command payload.
func (r *Request) Bytes() []byte {
	return r.Data[:r.Len]
}

// Response is one reply message produced for a Request. The engine
// stamps Tag from the originating Request so stale replies can be
// discarded after a reset or an out-of-order host.
type Response struct {
	Tag  uint8
	Len  int
	Data [MaxMessageSize]byte
}

// Bytes returns the response payload.
func (r *Response) Bytes() []byte {
	return r.Data[:r.Len]
}

// Channel is the sole communication path between the dispatcher loops
// and the command handler task: two bounded FIFO queues. Each queue has
// exactly one producer and one consumer. A full queue suspends the
// producer (backpressure); an empty queue suspends the consumer.
// Nothing is ever dropped by the queues themselves.
type Channel struct {
	requests  chan Request
	responses chan Response
}

// NewChannel creates a channel pair with QueueDepth capacity each.
func NewChannel() *Channel {
	return &Channel{
		requests:  make(chan Request, QueueDepth),
		responses: make(chan Response, QueueDepth),
	}
}

// EnqueueRequest blocks until the request fits in the queue.
func (c *Channel) EnqueueRequest(ctx context.Context, req Request) error {
	select {
	case c.requests <- req:
		return nil
	case <-ctx.Done():
		return pkg.ErrCancelled
	}
}

// DequeueRequest blocks until a request is available.
func (c *Channel) DequeueRequest(ctx context.Context) (Request, error) {
	select {
	case req := <-c.requests:
		return req, nil
	case <-ctx.Done():
		return Request{}, pkg.ErrCancelled
	}
}

// EnqueueResponse blocks until the response fits in the queue.
func (c *Channel) EnqueueResponse(ctx context.Context, resp Response) error {
	select {
	case c.responses <- resp:
		return nil
	case <-ctx.Done():
		return pkg.ErrCancelled
	}
}

// DequeueResponse blocks until a response is available.
func (c *Channel) DequeueResponse(ctx context.Context) (Response, error) {
	select {
	case resp := <-c.responses:
		return resp, nil
	case <-ctx.Done():
		return Response{}, pkg.ErrCancelled
	}
}

// TryDequeueResponse returns a queued response without blocking.
func (c *Channel) TryDequeueResponse() (Response, bool) {
	select {
	case resp := <-c.responses:
		return resp, true
	default:
		return Response{}, false
	}
}

// PendingRequests returns the number of queued requests.
func (c *Channel) PendingRequests() int {
	return len(c.requests)
}

// PendingResponses returns the number of queued responses.
func (c *Channel) PendingResponses() int {
	return len(c.responses)
}
