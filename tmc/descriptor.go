package tmc

import (
	"encoding/binary"

	"github.com/ardnew/usbtmc/hal"
	"github.com/ardnew/usbtmc/pkg"
)

// USB descriptor types used by the class interface (USB 2.0 Spec, Table 9-5).
const (
	descriptorTypeInterface = 0x04
	descriptorTypeEndpoint  = 0x05
)

// Endpoint attribute and direction constants.
const (
	endpointTypeBulk     = 0x02
	endpointDirectionIn  = 0x80
	endpointDirectionOut = 0x00
)

// interfaceDescriptorSize and endpointDescriptorSize are descriptor
// lengths in bytes.
const (
	interfaceDescriptorSize = 9
	endpointDescriptorSize  = 7
)

// DescriptorSize is the total length of the class interface descriptor
// block: one interface descriptor and two bulk endpoint descriptors.
const DescriptorSize = interfaceDescriptorSize + 2*endpointDescriptorSize

// MarshalDescriptors writes the USBTMC interface descriptor block to
// buf: interface descriptor (class 0xFE, subclass 0x03), bulk OUT
// endpoint, bulk IN endpoint, each with a 64-byte max packet size.
// The collaborating USB stack splices these bytes into its
// configuration descriptor.
//
// ifaceNum is the interface number; outAddr and inAddr are the
// endpoint numbers (direction bits are applied here).
// Returns the number of bytes written, or 0 if buf is too small.
func MarshalDescriptors(ifaceNum, outAddr, inAddr uint8, buf []byte) int {
	if len(buf) < DescriptorSize {
		return 0
	}

	n := 0

	// Interface descriptor
	buf[n+0] = interfaceDescriptorSize
	buf[n+1] = descriptorTypeInterface
	buf[n+2] = ifaceNum
	buf[n+3] = 0 // bAlternateSetting
	buf[n+4] = 2 // bNumEndpoints
	buf[n+5] = InterfaceClass
	buf[n+6] = InterfaceSubClass
	buf[n+7] = InterfaceProtocol
	buf[n+8] = 0 // iInterface
	n += interfaceDescriptorSize

	// Bulk OUT endpoint descriptor
	buf[n+0] = endpointDescriptorSize
	buf[n+1] = descriptorTypeEndpoint
	buf[n+2] = outAddr&0x0F | endpointDirectionOut
	buf[n+3] = endpointTypeBulk
	binary.LittleEndian.PutUint16(buf[n+4:n+6], hal.FullSpeedMaxPacketSize)
	buf[n+6] = 0 // bInterval
	n += endpointDescriptorSize

	// Bulk IN endpoint descriptor
	buf[n+0] = endpointDescriptorSize
	buf[n+1] = descriptorTypeEndpoint
	buf[n+2] = inAddr&0x0F | endpointDirectionIn
	buf[n+3] = endpointTypeBulk
	binary.LittleEndian.PutUint16(buf[n+4:n+6], hal.FullSpeedMaxPacketSize)
	buf[n+6] = 0
	n += endpointDescriptorSize

	pkg.LogDebug(pkg.ComponentControl, "descriptors marshalled",
		"interface", ifaceNum,
		"out", outAddr&0x0F,
		"in", inAddr&0x0F)

	return n
}
