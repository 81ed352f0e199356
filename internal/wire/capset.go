package wire

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
)

// wordBits is the width of one capability word on the wire.
const wordBits = 32

// CapSet is a SPICE capability bitset: an array of 32-bit little-endian
// words, the number of which is maxCapIndex/32+1. Set/Has
// delegate to bits-and-blooms/bitset for the underlying bit operations;
// Words/FromWords handle the wire's fixed 32-bit-word layout.
type CapSet struct {
	bits   *bitset.BitSet
	maxSet uint
	any    bool
}

// NewCapSet returns an empty capability set.
func NewCapSet() *CapSet {
	return &CapSet{bits: bitset.New(wordBits)}
}

// Set marks capability index i as present.
func (c *CapSet) Set(i uint) {
	if c.bits == nil {
		c.bits = bitset.New(wordBits)
	}
	c.bits.Set(i)
	if !c.any || i > c.maxSet {
		c.maxSet = i
	}
	c.any = true
}

// Has reports whether capability index i is present.
func (c *CapSet) Has(i uint) bool {
	if c.bits == nil {
		return false
	}
	return c.bits.Test(i)
}

// Words encodes the set as the wire's array of 32-bit little-endian words,
// sized to cover the highest set bit (at least one word).
func (c *CapSet) Words() []uint32 {
	n := 1
	if c.any {
		n = int(c.maxSet)/wordBits + 1
	}
	out := make([]uint32, n)
	if c.bits == nil {
		return out
	}
	for i, e := c.bits.NextSet(0); e; i, e = c.bits.NextSet(i + 1) {
		word := int(i) / wordBits
		if word >= len(out) {
			continue
		}
		out[word] |= 1 << (i % wordBits)
	}
	return out
}

// FromWords builds a CapSet from a little-endian-ordered array of 32-bit
// words as read off the wire (e.g. a link reply's capability list).
func FromWords(words []uint32) *CapSet {
	c := NewCapSet()
	for wi, w := range words {
		for b := uint(0); b < wordBits; b++ {
			if w&(1<<b) != 0 {
				c.Set(uint(wi)*wordBits + b)
			}
		}
	}
	return c
}

// EncodeWords packs a slice of uint32 words into little-endian bytes, as
// they appear after a link message's caps_offset.
func EncodeWords(words []uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], w)
	}
	return b
}

// DecodeWords unpacks n little-endian 32-bit words from b.
func DecodeWords(b []byte, n int) []uint32 {
	out := make([]uint32, n)
	for i := 0; i < n && (i+1)*4 <= len(b); i++ {
		out[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	return out
}
