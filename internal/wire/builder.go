package wire

// Builder assembles one outbound message: a 6-byte mini-header followed by
// a typed payload view. It replaces the source implementation's
// macro-based packet allocators (spec design note) with a plain buffer
// that reserves the header up front and lets callers append payload bytes.
type Builder struct {
	buf []byte
}

// NewBuilder reserves a buffer for a message of the given payload type,
// pre-initialising the header with Size=0; callers append payload bytes
// with Put*/Append and call Finish to patch in the real size.
func NewBuilder(msgType uint16, sizeHint int) *Builder {
	b := &Builder{buf: make([]byte, HeaderSize, HeaderSize+sizeHint)}
	PutHeader(b.buf, Header{Type: msgType})
	return b
}

// Append adds raw payload bytes.
func (b *Builder) Append(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// PutUint8 appends a single byte.
func (b *Builder) PutUint8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// PutUint16 appends a little-endian uint16.
func (b *Builder) PutUint16(v uint16) *Builder {
	b.buf = append(b.buf, byte(v), byte(v>>8))
	return b
}

// PutUint32 appends a little-endian uint32.
func (b *Builder) PutUint32(v uint32) *Builder {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	return b
}

// PutUint64 appends a little-endian uint64.
func (b *Builder) PutUint64(v uint64) *Builder {
	for i := 0; i < 8; i++ {
		b.buf = append(b.buf, byte(v>>(8*i)))
	}
	return b
}

// PutInt32 appends a little-endian signed int32.
func (b *Builder) PutInt32(v int32) *Builder {
	return b.PutUint32(uint32(v))
}

// Finish patches the header's size field to the current payload length and
// returns the complete wire packet (header + payload).
func (b *Builder) Finish() []byte {
	PutHeader(b.buf, Header{Type: headerType(b.buf), Size: uint32(len(b.buf) - HeaderSize)})
	return b.buf
}

func headerType(buf []byte) uint16 {
	var h Header
	h.UnmarshalBinary(buf[:HeaderSize])
	return h.Type
}
