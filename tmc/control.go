package tmc

import (
	"sync"

	"github.com/ardnew/usbtmc/pkg"
)

// GetCapabilitiesSize is the length of the GET_CAPABILITIES response.
const GetCapabilitiesSize = 6

// CheckAbortStatusSize is the length of the CHECK_ABORT_BULK_OUT_STATUS
// response.
const CheckAbortStatusSize = 8

// capabilityBytes is the GET_CAPABILITIES response: USBTMC interface
// revision 1.00, device-dependent messages only, no pulse indicator.
var capabilityBytes = [GetCapabilitiesSize]byte{0x00, 0x01, 0x07, 0x00, 0x00, 0x00}

// ControlHandler services USBTMC class-specific control requests on
// behalf of the collaborating USB device stack. The stack routes
// class/interface SETUP transactions here; a false return means the
// request is not a USBTMC request and the stack should handle or stall
// it itself.
type ControlHandler struct {
	engine *Engine

	// Abort bookkeeping for INITIATE/CHECK_ABORT_BULK_OUT_STATUS.
	abortTag uint8
	mutex    sync.Mutex
}

// NewControlHandler creates a control handler bound to an engine.
func NewControlHandler(e *Engine) *ControlHandler {
	return &ControlHandler{engine: e}
}

// HandleOut processes a host-to-device class control request.
// Returns true if the request was recognized and accepted.
func (c *ControlHandler) HandleOut(request uint8, value uint16) bool {
	switch request {
	case RequestInitiateAbortBulkOut:
		tag := uint8(value) & 0x7F
		c.mutex.Lock()
		c.abortTag = tag
		c.mutex.Unlock()

		if c.engine != nil {
			c.engine.AbortBulkOut(tag)
		}
		pkg.LogDebug(pkg.ComponentControl, "abort bulk OUT initiated",
			"tag", tag)
		return true

	case RequestInitiateClear:
		if c.engine != nil {
			c.engine.ClearStall()
		}
		pkg.LogDebug(pkg.ComponentControl, "clear initiated")
		return true

	default:
		return false
	}
}

// HandleIn processes a device-to-host class control request, writing
// the response into buf. Returns the response length and true if the
// request was recognized.
func (c *ControlHandler) HandleIn(request uint8, buf []byte) (int, bool) {
	switch request {
	case RequestGetCapabilities:
		if len(buf) < GetCapabilitiesSize {
			return 0, false
		}
		copy(buf, capabilityBytes[:])
		pkg.LogDebug(pkg.ComponentControl, "capabilities requested")
		return GetCapabilitiesSize, true

	case RequestCheckAbortBulkOutStatus:
		if len(buf) < CheckAbortStatusSize {
			return 0, false
		}

		c.mutex.Lock()
		tag := c.abortTag
		var status byte = 0x01
		if tag != 0 {
			status = 0x00
			c.abortTag = 0
		}
		c.mutex.Unlock()

		buf[0] = status
		buf[1] = tag
		for i := 2; i < CheckAbortStatusSize; i++ {
			buf[i] = 0
		}
		pkg.LogDebug(pkg.ComponentControl, "abort status checked",
			"tag", tag,
			"status", status)
		return CheckAbortStatusSize, true

	default:
		return 0, false
	}
}

// HandleClearFeature is invoked when the host clears an endpoint halt
// (Clear-Feature ENDPOINT_HALT on either bulk endpoint).
func (c *ControlHandler) HandleClearFeature() {
	if c.engine != nil {
		c.engine.ClearStall()
	}
}
