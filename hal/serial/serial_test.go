package serial

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ardnew/usbtmc/hal"
	"github.com/ardnew/usbtmc/pkg"
)

// frame builds one wire frame of the given type and payload.
func frame(msgType byte, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	buf[0] = msgType
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// readFrame reads one complete frame from the peer side of the pipe.
func readFrame(t *testing.T, r io.Reader) (byte, []byte) {
	t.Helper()

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		t.Fatalf("read frame header: %v", err)
	}
	payload := make([]byte, binary.LittleEndian.Uint16(header[1:3]))
	if _, err := io.ReadFull(r, payload); err != nil {
		t.Fatalf("read frame payload: %v", err)
	}
	return header[0], payload
}

func TestSendPacketFraming(t *testing.T) {
	device, peer := net.Pipe()
	h := newHAL(device)
	defer h.Close()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	errCh := make(chan error, 1)
	go func() { errCh <- h.SendPacket(context.Background(), payload) }()

	msgType, got := readFrame(t, peer)
	if err := <-errCh; err != nil {
		t.Fatalf("SendPacket() error = %v", err)
	}
	if msgType != msgData {
		t.Errorf("frame type = %#x, want %#x", msgType, msgData)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = % x, want % x", got, payload)
	}
}

func TestSendPacketTooLarge(t *testing.T) {
	device, _ := net.Pipe()
	h := newHAL(device)
	defer h.Close()

	big := make([]byte, hal.FullSpeedMaxPacketSize+1)
	if err := h.SendPacket(context.Background(), big); !errors.Is(err, pkg.ErrPacketTooLarge) {
		t.Fatalf("SendPacket(big) error = %v, want %v", err, pkg.ErrPacketTooLarge)
	}
}

func TestReceivePacket(t *testing.T) {
	device, peer := net.Pipe()
	h := newHAL(device)
	defer h.Close()

	payload := []byte("VOLT 3.3")
	go peer.Write(frame(msgData, payload))

	buf := make([]byte, hal.FullSpeedMaxPacketSize)
	n, err := h.ReceivePacket(context.Background(), buf)
	if err != nil {
		t.Fatalf("ReceivePacket() error = %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Errorf("payload = %q, want %q", buf[:n], payload)
	}
}

// A frame split across writes must still arrive whole.
func TestReceivePacketSplitWrites(t *testing.T) {
	device, peer := net.Pipe()
	h := newHAL(device)
	defer h.Close()

	payload := []byte{1, 2, 3, 4, 5}
	wire := frame(msgData, payload)
	go func() {
		peer.Write(wire[:2])
		peer.Write(wire[2:6])
		peer.Write(wire[6:])
	}()

	buf := make([]byte, hal.FullSpeedMaxPacketSize)
	n, err := h.ReceivePacket(context.Background(), buf)
	if err != nil {
		t.Fatalf("ReceivePacket() error = %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Errorf("payload = % x, want % x", buf[:n], payload)
	}
}

func TestReceiveSkipsUnknownFrames(t *testing.T) {
	device, peer := net.Pipe()
	h := newHAL(device)
	defer h.Close()

	go func() {
		peer.Write(frame(0x7F, []byte{9, 9}))
		peer.Write(frame(msgData, []byte{0x42}))
	}()

	buf := make([]byte, hal.FullSpeedMaxPacketSize)
	n, err := h.ReceivePacket(context.Background(), buf)
	if err != nil || n != 1 || buf[0] != 0x42 {
		t.Fatalf("ReceivePacket() = (%d, %v), buf[0]=%#x; want data frame", n, err, buf[0])
	}
}

func TestReceiveReset(t *testing.T) {
	device, peer := net.Pipe()
	h := newHAL(device)
	defer h.Close()

	go peer.Write(frame(msgReset, nil))

	buf := make([]byte, hal.FullSpeedMaxPacketSize)
	if _, err := h.ReceivePacket(context.Background(), buf); !errors.Is(err, pkg.ErrReset) {
		t.Fatalf("ReceivePacket() error = %v, want %v", err, pkg.ErrReset)
	}
}

func TestStall(t *testing.T) {
	device, peer := net.Pipe()
	h := newHAL(device)
	defer h.Close()

	// The peer is notified of the halt.
	go func() {
		if err := h.Stall(hal.DirIn); err != nil {
			t.Error(err)
		}
	}()
	msgType, payload := readFrame(t, peer)
	if msgType != msgStall || len(payload) != 1 || payload[0] != byte(hal.DirIn) {
		t.Fatalf("stall frame = (%#x, % x)", msgType, payload)
	}

	// Sends fail until the halt is cleared.
	if err := h.SendPacket(context.Background(), []byte{1}); !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("SendPacket() error = %v, want %v", err, pkg.ErrStall)
	}
	if err := h.ClearStall(hal.DirIn); err != nil {
		t.Fatal(err)
	}

	go io.Copy(io.Discard, peer)
	if err := h.SendPacket(context.Background(), []byte{1}); err != nil {
		t.Fatalf("SendPacket() error = %v after clear", err)
	}
}

// eofStream mimics a closed file: every read reports EOF immediately.
type eofStream struct{}

func (eofStream) Read(p []byte) (int, error)  { return 0, io.EOF }
func (eofStream) Write(p []byte) (int, error) { return len(p), nil }
func (eofStream) Close() error                { return nil }

// A stream that persistently reports EOF with no data must not spin;
// the receive honors its context and returns promptly.
func TestReceiveEOFStreamHonorsContext(t *testing.T) {
	h := newHAL(eofStream{})
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	buf := make([]byte, hal.FullSpeedMaxPacketSize)
	if _, err := h.ReceivePacket(ctx, buf); !errors.Is(err, pkg.ErrCancelled) {
		t.Fatalf("ReceivePacket() error = %v, want %v", err, pkg.ErrCancelled)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ReceivePacket() returned after %v, expected prompt cancellation", elapsed)
	}
}

func TestOpenNilConfig(t *testing.T) {
	if _, err := Open(nil); !errors.Is(err, pkg.ErrNotConfigured) {
		t.Fatalf("Open(nil) error = %v, want %v", err, pkg.ErrNotConfigured)
	}
}
