package tmc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ardnew/usbtmc/hal"
	"github.com/ardnew/usbtmc/pkg"
)

// State is the externally observable dispatcher state.
type State uint32

// Dispatcher states.
const (
	StateIdle       State = iota // No transfer in flight
	StateReceiving               // Reassembling a DEV_DEP_MSG_OUT transfer
	StateReady                   // Command complete, queued for processing
	StateResponding              // Sending a DEV_DEP_MSG_IN response
	StateStalled                 // Protocol error; waiting for host clear
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateReady:
		return "ready"
	case StateResponding:
		return "responding"
	case StateStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Handler interprets one complete command message and writes its reply.
//
// Handle is called once per Request, with the command payload in cmd
// and a reply buffer of MaxMessageSize bytes. It returns the number of
// reply bytes written (0 for commands with no reply text). It must not
// block on anything outside its own state; the engine guarantees a
// bounded response latency only if Handle does.
type Handler interface {
	Handle(cmd []byte, reply []byte) int
}

// inRequest is the OUT-loop's handoff of a REQUEST_DEV_DEP_MSG_IN to
// the IN-loop: the requested tag and the most bytes the host accepts.
type inRequest struct {
	tag uint8
	max int
}

// Engine is the USBTMC protocol dispatcher. It owns both bounded
// queues and drives three cooperative tasks over a PacketHAL:
//
//   - the OUT-loop receives bulk OUT packets, reassembles command
//     transfers, and enqueues Requests
//   - the process loop consumes Requests through the Handler and
//     enqueues Responses
//   - the IN-loop services REQUEST_DEV_DEP_MSG_IN by encoding and
//     sending the tag-matched Response
//
// All cross-task interaction goes through the Channel's enqueue and
// dequeue operations; backpressure from the bounded queues is the only
// congestion control.
type Engine struct {
	hal     hal.PacketHAL
	ch      *Channel
	handler Handler

	state       atomic.Uint32
	currentTag  atomic.Uint32 // tag of the most recently completed OUT transfer; 0 = none
	outstanding atomic.Int32  // accepted commands whose responses are not yet dispatched

	inReq chan inRequest

	rx   Reassembler
	rxMu sync.Mutex

	wire [WireBufferSize]byte

	running bool
	mutex   sync.Mutex
}

// NewEngine creates an engine bound to the given transport and handler.
func NewEngine(h hal.PacketHAL, handler Handler) *Engine {
	e := &Engine{
		hal:     h,
		ch:      NewChannel(),
		handler: handler,
		inReq:   make(chan inRequest, 1),
	}
	return e
}

// State returns the current dispatcher state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	old := State(e.state.Swap(uint32(s)))
	if old != s {
		pkg.LogDebug(pkg.ComponentEngine, "state transition",
			"from", old.String(),
			"to", s.String())
	}
}

// CurrentTag returns the tag of the most recently completed OUT
// transfer, or 0 if none is pending.
func (e *Engine) CurrentTag() uint8 {
	return uint8(e.currentTag.Load())
}

// Run starts the dispatcher tasks and blocks until the context is
// cancelled, the transport disconnects, or a task fails.
func (e *Engine) Run(ctx context.Context) error {
	e.mutex.Lock()
	if e.running {
		e.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	if e.hal == nil || e.handler == nil {
		e.mutex.Unlock()
		return pkg.ErrNotConfigured
	}
	e.running = true
	e.mutex.Unlock()

	defer func() {
		e.mutex.Lock()
		e.running = false
		e.mutex.Unlock()
	}()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		once   sync.Once
		runErr error
	)
	fail := func(err error) {
		if err != nil && !errors.Is(err, pkg.ErrCancelled) {
			once.Do(func() { runErr = err })
		}
		cancel()
	}

	wg.Add(3)
	go func() { defer wg.Done(); fail(e.outLoop(ctx)) }()
	go func() { defer wg.Done(); fail(e.inLoop(ctx)) }()
	go func() { defer wg.Done(); fail(e.processLoop(ctx)) }()
	wg.Wait()

	if runErr != nil {
		return runErr
	}
	return parent.Err()
}

// outLoop receives bulk OUT packets and drives reassembly.
func (e *Engine) outLoop(ctx context.Context) error {
	buf := make([]byte, e.hal.MaxPacketSize())

	for {
		n, err := e.hal.ReceivePacket(ctx, buf)
		if err != nil {
			switch {
			case errors.Is(err, pkg.ErrReset):
				e.handleReset()
				continue
			case errors.Is(err, pkg.ErrCancelled):
				e.abandonReceive()
				return pkg.ErrCancelled
			case ctx.Err() != nil:
				return pkg.ErrCancelled
			default:
				pkg.LogWarn(pkg.ComponentEngine, "receive error",
					"error", err)
				if e.State() != StateStalled {
					e.abandonReceive()
				}
				continue
			}
		}

		if e.State() == StateStalled {
			// Host must clear the endpoint first.
			continue
		}

		e.rxMu.Lock()
		active := e.rx.Active()
		e.rxMu.Unlock()

		if active {
			if err := e.continueTransfer(ctx, buf[:n]); err != nil {
				return err
			}
			continue
		}

		var hdr BulkHeader
		if err := ParseBulkHeader(buf[:n], &hdr); err != nil {
			e.stallProtocol(err)
			continue
		}

		switch hdr.MsgID {
		case MsgDevDepOut:
			if err := e.beginTransfer(ctx, &hdr, buf[BulkHeaderSize:n]); err != nil {
				return err
			}

		case MsgRequestDevDepIn:
			pkg.LogDebug(pkg.ComponentEngine, "IN request received",
				"tag", hdr.Tag,
				"max", hdr.TransferSize)
			select {
			case e.inReq <- inRequest{tag: hdr.Tag, max: int(hdr.TransferSize)}:
			case <-ctx.Done():
				return pkg.ErrCancelled
			}
		}
	}
}

// beginTransfer starts reassembly of a DEV_DEP_MSG_OUT transfer.
func (e *Engine) beginTransfer(ctx context.Context, hdr *BulkHeader, first []byte) error {
	e.setState(StateReceiving)

	e.rxMu.Lock()
	done, err := e.rx.Begin(hdr, first)
	e.rxMu.Unlock()

	if err != nil {
		e.stallProtocol(err)
		return nil
	}

	pkg.LogDebug(pkg.ComponentEngine, "transfer started",
		"tag", hdr.Tag,
		"size", hdr.TransferSize,
		"eom", hdr.EOM())

	if done {
		return e.completeRequest(ctx)
	}
	return nil
}

// continueTransfer feeds one continuation packet to the reassembler.
func (e *Engine) continueTransfer(ctx context.Context, pkt []byte) error {
	e.rxMu.Lock()
	done, err := e.rx.Accumulate(pkt)
	e.rxMu.Unlock()

	if err != nil {
		if !pkg.IsProtocolError(err) {
			// Transfer was aborted out from under us; drop the packet.
			return nil
		}
		e.stallProtocol(err)
		return nil
	}

	if done {
		return e.completeRequest(ctx)
	}
	return nil
}

// completeRequest moves the finished transfer into the request queue.
// Enqueueing suspends here when the queue is full; that backpressure is
// the engine's only flow control.
func (e *Engine) completeRequest(ctx context.Context) error {
	var req Request
	e.rxMu.Lock()
	e.rx.Take(&req)
	e.rxMu.Unlock()

	e.currentTag.Store(uint32(req.Tag))
	e.setState(StateReady)
	e.outstanding.Add(1)

	if err := e.ch.EnqueueRequest(ctx, req); err != nil {
		return err
	}

	pkg.LogDebug(pkg.ComponentEngine, "command complete",
		"tag", req.Tag,
		"len", req.Len,
		"eom", req.EOM)
	return nil
}

// inLoop services REQUEST_DEV_DEP_MSG_IN messages handed over by the
// OUT-loop, enforcing the tag correlation rule.
func (e *Engine) inLoop(ctx context.Context) error {
	var (
		held    Response
		hasHeld bool
	)

	for {
		var r inRequest
		select {
		case r = <-e.inReq:
		case <-ctx.Done():
			return pkg.ErrCancelled
		}

		cur := e.CurrentTag()
		if r.tag != cur {
			pkg.LogWarn(pkg.ComponentEngine, "IN request for stale tag",
				"requested", r.tag,
				"current", cur)
			hasHeld = e.discardStale(cur, &held, hasHeld)
			continue
		}

		resp, ok, err := e.nextResponse(ctx, cur, &held, &hasHeld)
		if err != nil {
			return err
		}
		if ok {
			// The response is consumed here; a failed encode or send
			// abandons it without resurrecting the count.
			e.outstanding.Add(-1)
		}

		e.setState(StateResponding)

		size := resp.Len
		if size > r.max {
			size = r.max
		}
		total, err := EncodeInMessage(cur, resp.Data[:size], e.wire[:])
		if err != nil {
			pkg.LogError(pkg.ComponentEngine, "encode failed", "error", err)
			e.setState(StateIdle)
			continue
		}

		if err := e.sendWire(ctx, total); err != nil {
			if errors.Is(err, pkg.ErrCancelled) {
				return err
			}
			// Transport failure: abandon the response, back to idle.
			pkg.LogWarn(pkg.ComponentEngine, "send failed",
				"tag", cur,
				"error", err)
			e.setState(StateIdle)
			continue
		}

		pkg.LogDebug(pkg.ComponentEngine, "response sent",
			"tag", cur,
			"len", size,
			"wire", total)
		e.setState(StateIdle)
	}
}

// nextResponse obtains the response matching the current tag. Stale
// responses are discarded on the way. When no command is outstanding it
// returns an empty response (ok=false) so the host is answered with a
// header-only message instead of hanging the bus.
func (e *Engine) nextResponse(ctx context.Context, cur uint8, held *Response, hasHeld *bool) (Response, bool, error) {
	for {
		var resp Response
		switch {
		case *hasHeld:
			resp = *held
			*hasHeld = false
		default:
			if got, ok := e.ch.TryDequeueResponse(); ok {
				resp = got
				break
			}
			if e.outstanding.Load() == 0 {
				return Response{Tag: cur}, false, nil
			}
			got, err := e.ch.DequeueResponse(ctx)
			if err != nil {
				return Response{}, false, err
			}
			resp = got
		}

		if resp.Tag == cur {
			return resp, true, nil
		}

		e.outstanding.Add(-1)
		pkg.LogDebug(pkg.ComponentEngine, "stale response discarded",
			"tag", resp.Tag,
			"current", cur)
	}
}

// discardStale drops queued responses whose tag is no longer current.
// A response matching cur is held back for the next matching request.
func (e *Engine) discardStale(cur uint8, held *Response, hasHeld bool) bool {
	for {
		var resp Response
		if hasHeld {
			resp = *held
			hasHeld = false
		} else {
			got, ok := e.ch.TryDequeueResponse()
			if !ok {
				return false
			}
			resp = got
		}

		if resp.Tag == cur {
			*held = resp
			return true
		}

		e.outstanding.Add(-1)
		pkg.LogDebug(pkg.ComponentEngine, "stale response discarded",
			"tag", resp.Tag,
			"current", cur)
	}
}

// sendWire sends an encoded message as a sequence of bulk IN packets.
func (e *Engine) sendWire(ctx context.Context, total int) error {
	mps := e.hal.MaxPacketSize()
	for off := 0; off < total; off += mps {
		end := off + mps
		if end > total {
			end = total
		}
		if err := e.hal.SendPacket(ctx, e.wire[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// processLoop consumes requests through the handler, one at a time.
// A response is always produced; no request is processed twice.
func (e *Engine) processLoop(ctx context.Context) error {
	reply := make([]byte, MaxMessageSize)

	for {
		req, err := e.ch.DequeueRequest(ctx)
		if err != nil {
			return err
		}

		n := e.handler.Handle(req.Bytes(), reply)
		if n < 0 {
			n = 0
		}
		if n > MaxMessageSize {
			n = MaxMessageSize
		}

		var resp Response
		resp.Tag = req.Tag
		resp.Len = n
		copy(resp.Data[:], reply[:n])

		if err := e.ch.EnqueueResponse(ctx, resp); err != nil {
			return err
		}
	}
}

// stallProtocol halts the bulk endpoint pair after a protocol error.
// Only a host-issued clear (ClearStall) leaves this state.
func (e *Engine) stallProtocol(err error) {
	pkg.LogWarn(pkg.ComponentEngine, "protocol error",
		"error", err)

	e.rxMu.Lock()
	e.rx.Reset()
	e.rxMu.Unlock()

	if serr := e.hal.Stall(hal.DirOut); serr != nil {
		pkg.LogWarn(pkg.ComponentEngine, "stall OUT failed", "error", serr)
	}
	if serr := e.hal.Stall(hal.DirIn); serr != nil {
		pkg.LogWarn(pkg.ComponentEngine, "stall IN failed", "error", serr)
	}
	e.setState(StateStalled)
}

// ClearStall is invoked when the host clears the halted endpoints
// (Clear-Feature ENDPOINT_HALT, routed here by the USB stack).
func (e *Engine) ClearStall() {
	if err := e.hal.ClearStall(hal.DirOut); err != nil {
		pkg.LogWarn(pkg.ComponentEngine, "clear OUT failed", "error", err)
	}
	if err := e.hal.ClearStall(hal.DirIn); err != nil {
		pkg.LogWarn(pkg.ComponentEngine, "clear IN failed", "error", err)
	}

	e.rxMu.Lock()
	e.rx.Reset()
	e.rxMu.Unlock()

	e.setState(StateIdle)
	pkg.LogInfo(pkg.ComponentEngine, "endpoint halt cleared")
}

// AbortBulkOut abandons an in-flight reassembly if its tag matches.
// Invoked by the control handler for INITIATE_ABORT_BULK_OUT.
func (e *Engine) AbortBulkOut(tag uint8) {
	e.rxMu.Lock()
	aborted := e.rx.Active() && e.rx.Tag() == tag
	if aborted {
		e.rx.Reset()
	}
	e.rxMu.Unlock()

	if aborted {
		if e.CurrentTag() == tag {
			e.currentTag.Store(0)
		}
		e.setState(StateIdle)
		pkg.LogInfo(pkg.ComponentEngine, "bulk OUT transfer aborted",
			"tag", tag)
	}
}

// handleReset flushes in-flight state after an endpoint reset. Items
// already queued are kept; they are dropped at the next dispatch
// attempt if their tag is no longer current.
func (e *Engine) handleReset() {
	e.rxMu.Lock()
	e.rx.Reset()
	e.rxMu.Unlock()

	e.currentTag.Store(0)
	e.setState(StateIdle)
	pkg.LogInfo(pkg.ComponentEngine, "endpoint reset")
}

// abandonReceive drops any partial reassembly without replying.
func (e *Engine) abandonReceive() {
	e.rxMu.Lock()
	active := e.rx.Active()
	e.rx.Reset()
	e.rxMu.Unlock()

	if active {
		pkg.LogDebug(pkg.ComponentEngine, "in-flight transfer abandoned")
	}
	e.setState(StateIdle)
}
