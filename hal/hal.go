package hal

import "context"

// FullSpeedMaxPacketSize is the bulk max packet size at USB full speed.
const FullSpeedMaxPacketSize = 64

// Direction selects one endpoint of the bulk pair.
type Direction uint8

// Endpoint directions.
const (
	DirOut Direction = iota // Host to device (bulk OUT)
	DirIn                   // Device to host (bulk IN)
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	if d == DirIn {
		return "IN"
	}
	return "OUT"
}

// PacketHAL is the packet-level transport used by the protocol engine.
//
// It abstracts a pair of bulk endpoints provided by an underlying USB
// device stack. Implementations deliver whole packets: one ReceivePacket
// call returns exactly one bulk OUT packet, and one SendPacket call
// queues exactly one bulk IN packet.
//
// All blocking operations take a context and must return promptly when
// it is cancelled.
type PacketHAL interface {
	// ReceivePacket blocks until one packet arrives on the bulk OUT
	// endpoint and copies it into buf, returning its length.
	//
	// It returns pkg.ErrReset when the host clears or resets the
	// endpoint, and pkg.ErrCancelled on disconnect or shutdown. Either
	// condition invalidates any in-progress reassembly.
	ReceivePacket(ctx context.Context, buf []byte) (int, error)

	// SendPacket blocks until the host accepts one packet on the bulk
	// IN endpoint. It returns pkg.ErrStall if the endpoint is halted
	// and pkg.ErrCancelled on disconnect or shutdown.
	SendPacket(ctx context.Context, data []byte) error

	// Stall halts the endpoint in the given direction. The halt is
	// cleared by a host-issued Clear-Feature, which the USB stack
	// reports to the engine out of band.
	Stall(dir Direction) error

	// ClearStall clears a halt on the endpoint in the given direction.
	ClearStall(dir Direction) error

	// MaxPacketSize returns the bulk endpoint max packet size.
	MaxPacketSize() int
}
