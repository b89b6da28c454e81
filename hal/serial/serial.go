package serial

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/ardnew/usbtmc/hal"
	"github.com/ardnew/usbtmc/pkg"
)

// Message types for the serial packet protocol.
const (
	msgData  = 0x02 // One bulk packet
	msgStall = 0x05 // Endpoint halted notification
	msgReset = 0x12 // Endpoint reset
)

// headerSize is the framing header: type (1) + length (2).
const headerSize = 3

// eofRetryDelay paces reads that return io.EOF with no data. Some
// drivers report a timed-out read as EOF, so EOF alone is not terminal,
// but a closed stream reports it back to back and must not spin.
const eofRetryDelay = 5 * time.Millisecond

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (ignored by USB CDC bridges, required for real UARTs)
	Baud int

	// Read timeout in milliseconds; bounds how often a blocked read
	// rechecks its context
	ReadTimeout int
}

// DefaultConfig returns a configuration suitable for a CDC bridge.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// HAL is a hal.PacketHAL that frames bulk packets over a serial link:
// each packet travels as [type, length16 LE, payload]. It lets the
// protocol engine run against a peer on the far end of a UART or CDC
// bridge instead of a real USB bulk endpoint pair.
type HAL struct {
	port io.ReadWriteCloser
	cfg  *Config

	readBuf [hal.FullSpeedMaxPacketSize + headerSize]byte

	writeMu sync.Mutex

	stalledIn  atomic.Bool
	stalledOut atomic.Bool
}

// Open opens the serial device described by cfg.
func Open(cfg *Config) (*HAL, error) {
	if cfg == nil {
		return nil, pkg.ErrNotConfigured
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}

	pkg.LogInfo(pkg.ComponentHAL, "serial transport opened",
		"device", cfg.Device,
		"baud", cfg.Baud)

	return &HAL{port: port, cfg: cfg}, nil
}

// newHAL wraps an already-open stream; tests use this to exercise the
// framing without a device node.
func newHAL(rw io.ReadWriteCloser) *HAL {
	return &HAL{port: rw, cfg: DefaultConfig("")}
}

// Close closes the serial port.
func (h *HAL) Close() error {
	if h.port != nil {
		return h.port.Close()
	}
	return nil
}

// ReceivePacket blocks until one framed packet arrives.
func (h *HAL) ReceivePacket(ctx context.Context, buf []byte) (int, error) {
	for {
		header := h.readBuf[:headerSize]
		if err := h.readFull(ctx, header); err != nil {
			return 0, err
		}

		msgType := header[0]
		length := int(binary.LittleEndian.Uint16(header[1:3]))
		if length > len(h.readBuf)-headerSize {
			return 0, pkg.ErrPacketTooLarge
		}

		payload := h.readBuf[headerSize : headerSize+length]
		if err := h.readFull(ctx, payload); err != nil {
			return 0, err
		}

		switch msgType {
		case msgData:
			if length > len(buf) {
				return 0, pkg.ErrBufferTooSmall
			}
			return copy(buf, payload), nil

		case msgReset:
			pkg.LogDebug(pkg.ComponentHAL, "reset received")
			return 0, pkg.ErrReset

		default:
			pkg.LogWarn(pkg.ComponentHAL, "unknown message type",
				"type", msgType)
			continue
		}
	}
}

// SendPacket writes one framed packet.
func (h *HAL) SendPacket(ctx context.Context, data []byte) error {
	if len(data) > hal.FullSpeedMaxPacketSize {
		return pkg.ErrPacketTooLarge
	}
	if h.stalledIn.Load() {
		return pkg.ErrStall
	}
	if ctx.Err() != nil {
		return pkg.ErrCancelled
	}
	return h.writeMessage(msgData, data)
}

// Stall marks the endpoint halted and notifies the peer.
func (h *HAL) Stall(dir hal.Direction) error {
	if dir == hal.DirIn {
		h.stalledIn.Store(true)
	} else {
		h.stalledOut.Store(true)
	}
	pkg.LogDebug(pkg.ComponentHAL, "endpoint stalled", "dir", dir.String())
	return h.writeMessage(msgStall, []byte{byte(dir)})
}

// ClearStall clears a halt.
func (h *HAL) ClearStall(dir hal.Direction) error {
	if dir == hal.DirIn {
		h.stalledIn.Store(false)
	} else {
		h.stalledOut.Store(false)
	}
	pkg.LogDebug(pkg.ComponentHAL, "endpoint stall cleared", "dir", dir.String())
	return nil
}

// MaxPacketSize returns the bulk endpoint max packet size.
func (h *HAL) MaxPacketSize() int {
	return hal.FullSpeedMaxPacketSize
}

// readFull reads exactly len(buf) bytes, rechecking ctx each time the
// port's read timeout expires.
func (h *HAL) readFull(ctx context.Context, buf []byte) error {
	total := 0
	for total < len(buf) {
		if ctx.Err() != nil {
			return pkg.ErrCancelled
		}

		n, err := h.port.Read(buf[total:])
		if n > 0 {
			total += n
			continue
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("serial read: %w", err)
		}
		// Timeout or EOF with no data; pace the retry so a closed
		// stream cannot spin the loop.
		select {
		case <-ctx.Done():
			return pkg.ErrCancelled
		case <-time.After(eofRetryDelay):
		}
	}
	return nil
}

// writeMessage frames and writes one message under the write lock.
func (h *HAL) writeMessage(msgType byte, data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	var msg [hal.FullSpeedMaxPacketSize + headerSize]byte
	msg[0] = msgType
	binary.LittleEndian.PutUint16(msg[1:3], uint16(len(data)))
	n := headerSize + copy(msg[headerSize:], data)

	written := 0
	for written < n {
		m, err := h.port.Write(msg[written:n])
		if m > 0 {
			written += m
		}
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
	}
	return nil
}

// Compile-time interface check
var _ hal.PacketHAL = (*HAL)(nil)
