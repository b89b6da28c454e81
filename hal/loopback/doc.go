// Package loopback provides an in-memory hal.PacketHAL with a
// host-side handle, used by tests and examples to exercise the
// protocol engine without USB hardware.
//
// The [Loopback] itself is the device side; [Loopback.Host] returns
// the host side. Packets are copied through buffered channels, so a
// host can queue a whole multi-packet message before the device reads
// any of it. [Host.Reset] and [Host.Disconnect] emulate the
// clear-endpoint and detach conditions a real bus delivers.
package loopback
