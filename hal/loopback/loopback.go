package loopback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ardnew/usbtmc/hal"
	"github.com/ardnew/usbtmc/pkg"
)

// queueDepth is the number of packets buffered per direction. Large
// enough for a host to push a whole multi-packet message before the
// device reads any of it.
const queueDepth = 16

// Loopback is an in-memory PacketHAL with a host-side handle. The
// device side (the Loopback itself) and the [Host] exchange packet
// copies over buffered channels, emulating a bulk endpoint pair.
type Loopback struct {
	out chan []byte // host -> device (bulk OUT)
	in  chan []byte // device -> host (bulk IN)

	resetCh chan struct{}
	closeCh chan struct{}

	stalledOut atomic.Bool
	stalledIn  atomic.Bool

	mps       int
	closeOnce sync.Once
}

// New creates a connected loopback transport with full-speed 64-byte
// packets.
func New() *Loopback {
	return &Loopback{
		out:     make(chan []byte, queueDepth),
		in:      make(chan []byte, queueDepth),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		mps:     hal.FullSpeedMaxPacketSize,
	}
}

// Host returns the host-side handle of this transport.
func (l *Loopback) Host() *Host {
	return &Host{l: l}
}

// ReceivePacket blocks until one bulk OUT packet arrives.
func (l *Loopback) ReceivePacket(ctx context.Context, buf []byte) (int, error) {
	// Disconnect and reset take priority over queued data.
	select {
	case <-l.closeCh:
		return 0, pkg.ErrCancelled
	case <-l.resetCh:
		return 0, pkg.ErrReset
	default:
	}

	select {
	case <-l.closeCh:
		return 0, pkg.ErrCancelled
	case <-ctx.Done():
		return 0, pkg.ErrCancelled
	case <-l.resetCh:
		return 0, pkg.ErrReset
	case pkt := <-l.out:
		if len(pkt) > len(buf) {
			return 0, pkg.ErrBufferTooSmall
		}
		return copy(buf, pkt), nil
	}
}

// SendPacket blocks until the host side accepts one bulk IN packet.
func (l *Loopback) SendPacket(ctx context.Context, data []byte) error {
	if len(data) > l.mps {
		return pkg.ErrPacketTooLarge
	}
	if l.stalledIn.Load() {
		return pkg.ErrStall
	}

	select {
	case <-l.closeCh:
		return pkg.ErrCancelled
	default:
	}

	pkt := make([]byte, len(data))
	copy(pkt, data)

	select {
	case <-l.closeCh:
		return pkg.ErrCancelled
	case <-ctx.Done():
		return pkg.ErrCancelled
	case l.in <- pkt:
		return nil
	}
}

// Stall halts the endpoint in the given direction.
func (l *Loopback) Stall(dir hal.Direction) error {
	if dir == hal.DirIn {
		l.stalledIn.Store(true)
	} else {
		l.stalledOut.Store(true)
	}
	pkg.LogDebug(pkg.ComponentHAL, "endpoint stalled", "dir", dir.String())
	return nil
}

// ClearStall clears a halt on the endpoint in the given direction.
func (l *Loopback) ClearStall(dir hal.Direction) error {
	if dir == hal.DirIn {
		l.stalledIn.Store(false)
	} else {
		l.stalledOut.Store(false)
	}
	pkg.LogDebug(pkg.ComponentHAL, "endpoint stall cleared", "dir", dir.String())
	return nil
}

// Stalled reports whether the endpoint in the given direction is halted.
func (l *Loopback) Stalled(dir hal.Direction) bool {
	if dir == hal.DirIn {
		return l.stalledIn.Load()
	}
	return l.stalledOut.Load()
}

// MaxPacketSize returns the bulk endpoint max packet size.
func (l *Loopback) MaxPacketSize() int {
	return l.mps
}

// drain empties both packet queues.
func (l *Loopback) drain() {
	for {
		select {
		case <-l.out:
		case <-l.in:
		default:
			return
		}
	}
}

// Host is the host-side handle of a loopback transport. Tests and
// examples use it to play the role of a USBTMC host controller.
type Host struct {
	l *Loopback
}

// SendPacket delivers one bulk OUT packet to the device. It fails with
// pkg.ErrStall while the OUT endpoint is halted.
func (h *Host) SendPacket(ctx context.Context, data []byte) error {
	if len(data) > h.l.mps {
		return pkg.ErrPacketTooLarge
	}
	if h.l.stalledOut.Load() {
		return pkg.ErrStall
	}
	select {
	case <-h.l.closeCh:
		return pkg.ErrCancelled
	default:
	}

	pkt := make([]byte, len(data))
	copy(pkt, data)

	select {
	case <-h.l.closeCh:
		return pkg.ErrCancelled
	case <-ctx.Done():
		return pkg.ErrCancelled
	case h.l.out <- pkt:
		return nil
	}
}

// ReceivePacket blocks until one bulk IN packet arrives from the device.
func (h *Host) ReceivePacket(ctx context.Context, buf []byte) (int, error) {
	select {
	case <-h.l.closeCh:
		return 0, pkg.ErrCancelled
	case <-ctx.Done():
		return 0, pkg.ErrCancelled
	case pkt := <-h.l.in:
		if len(pkt) > len(buf) {
			return 0, pkg.ErrBufferTooSmall
		}
		return copy(buf, pkt), nil
	}
}

// Reset emulates an endpoint reset: queued packets are discarded,
// halts are cleared, and the device's pending receive fails with
// pkg.ErrReset.
func (h *Host) Reset() {
	h.l.drain()
	h.l.stalledIn.Store(false)
	h.l.stalledOut.Store(false)

	select {
	case h.l.resetCh <- struct{}{}:
	default:
	}
	pkg.LogDebug(pkg.ComponentHAL, "loopback reset")
}

// Disconnect tears the transport down; all pending and future
// operations on both sides fail with pkg.ErrCancelled.
func (h *Host) Disconnect() {
	h.l.closeOnce.Do(func() {
		close(h.l.closeCh)
	})
	pkg.LogDebug(pkg.ComponentHAL, "loopback disconnected")
}

// Compile-time interface check
var _ hal.PacketHAL = (*Loopback)(nil)
