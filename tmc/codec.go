package tmc

import (
	"github.com/ardnew/usbtmc/pkg"
)

// paddedTotal returns the total wire length of a message with the given
// payload size: header plus payload, zero-padded to a 4-byte boundary.
func paddedTotal(payload int) int {
	return (BulkHeaderSize + payload + 3) &^ 3
}

// Reassembler accumulates the payload of one DEV_DEP_MSG_OUT transfer
// split across bulk packets. It exists only for the duration of one
// in-flight transfer; Reset discards any partial state.
//
// The wire stream after the header consists of TransferSize payload
// bytes followed by the transfer's pad bytes. Both must be consumed
// before the transfer is complete; only the payload is visible in the
// resulting Request.
type Reassembler struct {
	hdr      BulkHeader
	buf      [MaxMessageSize]byte
	copied   int // payload bytes captured so far
	consumed int // payload+pad bytes consumed so far
	expected int // payload+pad bytes this transfer carries in total
	active   bool
}

// Active returns true while a transfer is being reassembled.
func (r *Reassembler) Active() bool {
	return r.active
}

// Tag returns the bTag of the in-flight transfer (0 when inactive).
func (r *Reassembler) Tag() uint8 {
	if !r.active {
		return 0
	}
	return r.hdr.Tag
}

// Begin starts reassembly of a transfer from its header and the payload
// bytes that shared the header's packet. It returns true when the
// transfer is already complete (TransferSize 0, or a single short
// packet carried the whole message).
func (r *Reassembler) Begin(hdr *BulkHeader, first []byte) (bool, error) {
	if hdr.TransferSize > MaxMessageSize {
		return false, pkg.ErrOverflow
	}

	r.hdr = *hdr
	r.copied = 0
	r.consumed = 0
	r.expected = paddedTotal(int(hdr.TransferSize)) - BulkHeaderSize
	r.active = true

	return r.consume(first)
}

// Accumulate appends one continuation packet to the in-progress
// transfer. It returns true when the transfer is complete, or
// pkg.ErrOverflow if the packet carries more bytes than the header
// declared.
func (r *Reassembler) Accumulate(pkt []byte) (bool, error) {
	if !r.active {
		return false, pkg.ErrNotConfigured
	}
	return r.consume(pkt)
}

func (r *Reassembler) consume(b []byte) (bool, error) {
	if len(b) > r.expected-r.consumed {
		r.Reset()
		return false, pkg.ErrOverflow
	}

	// Capture the payload portion; the remainder is padding.
	size := int(r.hdr.TransferSize)
	if r.copied < size {
		n := len(b)
		if n > size-r.copied {
			n = size - r.copied
		}
		copy(r.buf[r.copied:], b[:n])
		r.copied += n
	}
	r.consumed += len(b)

	return r.consumed == r.expected, nil
}

// Take fills out with the completed Request and resets the reassembler.
// It must only be called after Begin or Accumulate returned true.
func (r *Reassembler) Take(out *Request) {
	out.Tag = r.hdr.Tag
	out.EOM = r.hdr.EOM()
	out.Len = r.copied
	copy(out.Data[:], r.buf[:r.copied])
	r.Reset()
}

// Reset discards any partial reassembly state.
func (r *Reassembler) Reset() {
	r.active = false
	r.copied = 0
	r.consumed = 0
	r.expected = 0
}

// EncodeInMessage writes a complete DEV_DEP_MSG_IN wire message to buf:
// the 12-byte header, the payload, and zero padding to the next 4-byte
// boundary. The padding is excluded from the header's TransferSize.
// An empty payload produces a header-only message. EOM is always set.
//
// Returns the total wire length written.
func EncodeInMessage(tag uint8, payload []byte, buf []byte) (int, error) {
	if tag == 0 {
		return 0, pkg.ErrZeroTag
	}
	if len(payload) > MaxMessageSize {
		return 0, pkg.ErrOverflow
	}

	total := paddedTotal(len(payload))
	if len(buf) < total {
		return 0, pkg.ErrBufferTooSmall
	}

	hdr := NewInHeader(tag, uint32(len(payload)))
	n := hdr.MarshalTo(buf)
	n += copy(buf[n:], payload)
	for n < total {
		buf[n] = 0
		n++
	}

	return total, nil
}
