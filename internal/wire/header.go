// Package wire implements the low-level SPICE mini-header framing: fixed
// header layout, capability bitsets, and the packet builder used by every
// channel to assemble an outbound message under its send lock.
package wire

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the byte length of the SPICE mini-header: a 16-bit type
// and a 32-bit size, both little-endian.
const HeaderSize = 6

// ErrShortHeader is returned when fewer than HeaderSize bytes are available
// to decode.
var ErrShortHeader = errors.New("wire: short header")

// Header is the 6-byte mini-header that prefixes every message on an
// established channel.
type Header struct {
	Type uint16
	Size uint32
}

// MarshalBinary encodes the header in little-endian wire order.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(b[0:2], h.Type)
	binary.LittleEndian.PutUint32(b[2:6], h.Size)
	return b, nil
}

// PutHeader writes h into b, which must be at least HeaderSize bytes.
func PutHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint16(b[0:2], h.Type)
	binary.LittleEndian.PutUint32(b[2:6], h.Size)
}

// UnmarshalBinary decodes a header from the first HeaderSize bytes of b.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return ErrShortHeader
	}
	h.Type = binary.LittleEndian.Uint16(b[0:2])
	h.Size = binary.LittleEndian.Uint32(b[2:6])
	return nil
}
