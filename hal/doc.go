// Package hal defines the packet-level transport interface consumed by
// the usbtmc protocol engine.
//
// The engine never talks to USB controller hardware directly. It drives
// a [PacketHAL], which a USB device stack (or a test double) implements
// on top of its bulk endpoint pair. The interface exposes exactly the
// suspension points the engine's cooperative tasks block on: receiving
// one bulk OUT packet, sending one bulk IN packet, and halting an
// endpoint after a protocol error.
//
// Two implementations ship with this module:
//
//   - [github.com/ardnew/usbtmc/hal/loopback] - in-memory transport with
//     a host-side handle, used by tests and examples
//   - [github.com/ardnew/usbtmc/hal/serial] - packet framing over a
//     serial link, for driving the engine against a tethered board
package hal
