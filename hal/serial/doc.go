// Package serial implements hal.PacketHAL over a serial link.
//
// Bulk packets are carried in a simple framed protocol so the engine
// can be exercised against a peer on the far end of a UART or a USB
// CDC bridge. Each frame is a 3-byte header followed by the payload:
//
//	+------+----------+- - - - - -+
//	| type | len (LE) |  payload  |
//	+------+----------+- - - - - -+
//	  1 B      2 B       len B
//
// Frame types carry data packets, stall notifications, and reset
// events. Unknown types are skipped, so the protocol can grow without
// breaking older peers.
package serial
