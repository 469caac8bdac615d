package core

import (
	"encoding/binary"
	"fmt"
)

// SetupPacket is the 8-byte control transfer setup stage, as carried in the
// union slot of control records.
type SetupPacket [8]byte

func (s SetupPacket) RequestType() uint8 { return s[0] }
func (s SetupPacket) Request() uint8     { return s[1] }
func (s SetupPacket) Value() uint16      { return binary.LittleEndian.Uint16(s[2:4]) }
func (s SetupPacket) Index() uint16      { return binary.LittleEndian.Uint16(s[4:6]) }
func (s SetupPacket) Length() uint16     { return binary.LittleEndian.Uint16(s[6:8]) }

// DeviceToHost reports the data stage direction from bmRequestType bit 7.
func (s SetupPacket) DeviceToHost() bool { return s[0]&0x80 != 0 }

// String renders the setup packet the way usbmon's text interface does:
// bmRequestType and bRequest as bytes, the three words in host order.
func (s SetupPacket) String() string {
	return fmt.Sprintf("%02x %02x %04x %04x %04x", s.RequestType(), s.Request(), s.Value(), s.Index(), s.Length())
}

// NewSetupPacket builds a setup packet from its fields.
func NewSetupPacket(requestType, request uint8, value, index, length uint16) SetupPacket {
	var s SetupPacket
	s[0] = requestType
	s[1] = request
	binary.LittleEndian.PutUint16(s[2:4], value)
	binary.LittleEndian.PutUint16(s[4:6], index)
	binary.LittleEndian.PutUint16(s[6:8], length)
	return s
}
