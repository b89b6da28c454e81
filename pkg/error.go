package pkg

import "errors"

// Transport errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrCancelled indicates a cancelled transfer (disconnect or shutdown).
	ErrCancelled = errors.New("transfer cancelled")

	// ErrReset indicates an endpoint reset or clear was received.
	ErrReset = errors.New("endpoint reset")

	// ErrNotConfigured indicates the engine or transport is not configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrAlreadyRunning indicates the engine is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrPacketTooLarge indicates a packet exceeds the endpoint's max packet size.
	ErrPacketTooLarge = errors.New("packet too large")
)

// USBTMC bulk protocol errors. Each of these stalls the bulk endpoints
// until the host issues a clear.
var (
	// ErrHeaderTooShort indicates a bulk OUT packet shorter than a header.
	ErrHeaderTooShort = errors.New("bulk header too short")

	// ErrZeroTag indicates a bulk header carrying the reserved bTag of zero.
	ErrZeroTag = errors.New("zero bTag")

	// ErrTagMismatch indicates bTagInverse is not the complement of bTag.
	ErrTagMismatch = errors.New("bTag inverse mismatch")

	// ErrInvalidMsgID indicates an unrecognized MsgID in a bulk header.
	ErrInvalidMsgID = errors.New("invalid MsgID")

	// ErrOverflow indicates a transfer larger than the reassembly buffer,
	// or more payload bytes than the header declared.
	ErrOverflow = errors.New("transfer overflow")
)

// IsProtocolError reports whether err is a USBTMC bulk protocol error,
// i.e. one that must stall the bulk endpoint pair.
func IsProtocolError(err error) bool {
	switch {
	case errors.Is(err, ErrHeaderTooShort),
		errors.Is(err, ErrZeroTag),
		errors.Is(err, ErrTagMismatch),
		errors.Is(err, ErrInvalidMsgID),
		errors.Is(err, ErrOverflow):
		return true
	}
	return false
}
