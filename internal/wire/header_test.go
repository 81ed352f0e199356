package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{Type: 0x1234, Size: 0xdeadbeef}
	b, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, len(b))
	}

	var out Header
	if err := out.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestHeaderUnmarshalShort(t *testing.T) {
	var h Header
	if err := h.UnmarshalBinary([]byte{1, 2, 3}); err != ErrShortHeader {
		t.Errorf("expected ErrShortHeader, got %v", err)
	}
}

func TestPutHeaderLittleEndian(t *testing.T) {
	b := make([]byte, HeaderSize)
	PutHeader(b, Header{Type: 1, Size: 300})
	want := []byte{0x01, 0x00, 0x2c, 0x01, 0x00, 0x00}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, b[i], want[i])
		}
	}
}
