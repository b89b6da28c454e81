package tmc

// USBTMC interface identification (USBTMC Specification 1.0, Table 1).
const (
	InterfaceClass    = 0xFE // Application-class
	InterfaceSubClass = 0x03 // Test & Measurement
	InterfaceProtocol = 0x00 // USBTMC (no USB488 subprotocol)
)

// Bulk message MsgID values (USBTMC Specification, Table 2).
const (
	MsgDevDepOut       = 1 // DEV_DEP_MSG_OUT: command message, host to device
	MsgRequestDevDepIn = 2 // REQUEST_DEV_DEP_MSG_IN: host asks for a response
	MsgDevDepIn        = 2 // DEV_DEP_MSG_IN: response message, device to host
)

// Class-specific control requests (USBTMC Specification, Table 15).
const (
	RequestInitiateAbortBulkOut    = 0x01
	RequestCheckAbortBulkOutStatus = 0x02
	RequestInitiateAbortBulkIn     = 0x03
	RequestCheckAbortBulkInStatus  = 0x04
	RequestInitiateClear           = 0x05
	RequestCheckClearStatus        = 0x06
	RequestGetCapabilities         = 0x07
)

// BulkHeaderSize is the size of a bulk message header in bytes.
const BulkHeaderSize = 12

// TransferAttrEOM is the End-Of-Message bit in bmTransferAttributes.
const TransferAttrEOM = 0x01

// MaxMessageSize is the reassembly and response buffer capacity.
// A command or response never exceeds this many payload bytes.
const MaxMessageSize = 512

// QueueDepth is the capacity of the request and response queues.
// A full queue suspends the producer; nothing is ever dropped.
const QueueDepth = 4

// WireBufferSize is the largest encoded bulk IN message: header plus a
// maximum payload, padded to a 4-byte boundary.
const WireBufferSize = (BulkHeaderSize + MaxMessageSize + 3) &^ 3
