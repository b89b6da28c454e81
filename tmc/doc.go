// Package tmc implements the USB Test & Measurement Class (USBTMC)
// bulk protocol engine: message framing and reassembly, bounded
// request/response queues, and the dispatcher that bridges a bulk
// endpoint pair to an instrument command interpreter.
//
// # Architecture
//
// The engine is built from four pieces:
//
//   - [BulkHeader], [Reassembler], and [EncodeInMessage] - pure
//     encode/decode of the 12-byte bulk headers and multi-packet
//     payloads, with no I/O
//   - [Channel] - two bounded FIFO queues, the sole communication path
//     between tasks
//   - [Engine] - the dispatcher: an OUT-loop, an IN-loop, and a
//     process loop running as cooperating goroutines over a
//     [github.com/ardnew/usbtmc/hal.PacketHAL]
//   - [ControlHandler] - class-specific EP0 requests (capabilities,
//     abort, clear) serviced for the collaborating USB device stack
//
// # Wire format
//
// Every bulk message starts with a 12-byte little-endian header:
//
//	byte 0     MsgID     (1 = DEV_DEP_MSG_OUT, 2 = REQUEST_DEV_DEP_MSG_IN / DEV_DEP_MSG_IN)
//	byte 1     bTag      (1..255)
//	byte 2     bTagInverse (0xFF XOR bTag)
//	byte 3     reserved
//	bytes 4-7  TransferSize (u32)
//	byte 8     bmTransferAttributes (bit 0 = EOM)
//	bytes 9-11 reserved
//
// The payload follows, and the total message is zero-padded to a
// 4-byte boundary; padding is excluded from TransferSize.
//
// # Concurrency
//
// The three tasks yield only at their suspension points: packet
// receive, packet send, and queue enqueue/dequeue. The bounded queues
// (capacity [QueueDepth]) give strict FIFO ordering and backpressure:
// a producer that outruns the consumer suspends, it never drops.
//
// # Errors
//
// Malformed headers and oversize transfers stall the bulk endpoint
// pair until the host issues a clear; transport failures abandon the
// in-flight transfer silently; unrecognized command text is answered
// with an error reply by the [Handler], never surfaced on the bus.
//
// # Usage
//
//	engine := tmc.NewEngine(transport, scpi.NewInterpreter(""))
//	ctrl := tmc.NewControlHandler(engine)
//	// Register ctrl with the USB stack for class EP0 requests,
//	// then run the engine:
//	err := engine.Run(ctx)
package tmc
