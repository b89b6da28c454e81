package tmc

import (
	"encoding/binary"

	"github.com/ardnew/usbtmc/pkg"
)

// BulkHeader represents the 12-byte header leading every USBTMC bulk
// message (little-endian on the wire).
type BulkHeader struct {
	MsgID        uint8  // Message type (MsgDevDepOut, MsgRequestDevDepIn, ...)
	Tag          uint8  // bTag, 1-255; correlates OUT transfers with IN responses
	TagInverse   uint8  // Must be 0xFF XOR Tag
	TransferSize uint32 // Payload bytes, excluding header and padding
	Attributes   uint8  // bmTransferAttributes (bit 0: EOM)
}

// ParseBulkHeader parses a bulk message header from raw bytes into out.
//
// It validates the bTag invariants: a header with Tag zero or with
// TagInverse not equal to the complement of Tag is a protocol error.
func ParseBulkHeader(data []byte, out *BulkHeader) error {
	if len(data) < BulkHeaderSize {
		return pkg.ErrHeaderTooShort
	}

	out.MsgID = data[0]
	out.Tag = data[1]
	out.TagInverse = data[2]
	out.TransferSize = binary.LittleEndian.Uint32(data[4:8])
	out.Attributes = data[8]

	if out.MsgID != MsgDevDepOut && out.MsgID != MsgRequestDevDepIn {
		return pkg.ErrInvalidMsgID
	}
	if out.Tag == 0 {
		return pkg.ErrZeroTag
	}
	if out.TagInverse != 0xFF^out.Tag {
		return pkg.ErrTagMismatch
	}

	return nil
}

// MarshalTo writes the header to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (h *BulkHeader) MarshalTo(buf []byte) int {
	if len(buf) < BulkHeaderSize {
		return 0
	}

	buf[0] = h.MsgID
	buf[1] = h.Tag
	buf[2] = h.TagInverse
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], h.TransferSize)
	buf[8] = h.Attributes
	buf[9] = 0
	buf[10] = 0
	buf[11] = 0

	return BulkHeaderSize
}

// EOM returns true if the End-Of-Message attribute bit is set.
func (h *BulkHeader) EOM() bool {
	return h.Attributes&TransferAttrEOM != 0
}

// NewInHeader creates a DEV_DEP_MSG_IN header for a response of the
// given payload size, with EOM set.
func NewInHeader(tag uint8, size uint32) *BulkHeader {
	return &BulkHeader{
		MsgID:        MsgDevDepIn,
		Tag:          tag,
		TagInverse:   0xFF ^ tag,
		TransferSize: size,
		Attributes:   TransferAttrEOM,
	}
}
