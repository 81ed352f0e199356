package agent

import (
	"encoding/binary"
	"fmt"

	"github.com/zbum/purespice-go/internal/spiceapi"
)

// Clipboard agent-type wire codes (distinct from the outer agent message
// type: these identify the clipboard data format, not the message kind).
const (
	clipWireNone uint32 = iota
	clipWireText
	clipWirePNG
	clipWireBMP
	clipWireTIFF
	clipWireJPEG
)

// clipboardState is the ownership and in-flight-transfer bookkeeping
// described in spec.md §4 ("clipboard sub-state"). agentGrabbed and
// clientGrabbed are mutually exclusive by construction: every transition
// that sets one clears the other.
type clipboardState struct {
	agentGrabbed  bool
	clientGrabbed bool
	grabbedType   spiceapi.ClipboardType

	outTotal   uint32
	outWritten uint32
}

func clipboardTypeFromWire(v uint32) spiceapi.ClipboardType {
	switch v {
	case clipWireText:
		return spiceapi.ClipboardText
	case clipWirePNG:
		return spiceapi.ClipboardPNG
	case clipWireBMP:
		return spiceapi.ClipboardBMP
	case clipWireTIFF:
		return spiceapi.ClipboardTIFF
	case clipWireJPEG:
		return spiceapi.ClipboardJPEG
	default:
		return spiceapi.ClipboardNone
	}
}

func wireFromClipboardType(t spiceapi.ClipboardType) uint32 {
	switch t {
	case spiceapi.ClipboardText:
		return clipWireText
	case spiceapi.ClipboardPNG:
		return clipWirePNG
	case spiceapi.ClipboardBMP:
		return clipWireBMP
	case spiceapi.ClipboardTIFF:
		return clipWireTIFF
	case spiceapi.ClipboardJPEG:
		return clipWireJPEG
	default:
		return clipWireNone
	}
}

// selectionHeaderLocked returns the 4-byte selection header (selection
// code + 3 reserved bytes) when the server advertised selection support,
// or nil otherwise (spec.md §4.5: "Windows servers have no selection so
// this path is skipped").
func (a *Agent) selectionHeaderLocked() []byte {
	if !a.selection {
		return nil
	}
	return []byte{0, 0, 0, 0}
}

// handleClipboardGrabLocked processes a server clipboard grab
// notification. Only the first advertised type is retained (spec.md §9
// Open Question: "the source retains only types[0] and documents this as
// a pragmatic simplification").
func (a *Agent) handleClipboardGrabLocked(body []byte) error {
	if a.selection {
		if len(body) < 4 {
			return fmt.Errorf("agent: CLIPBOARD_GRAB selection header truncated")
		}
		body = body[4:]
	}
	if len(body) < 4 {
		return fmt.Errorf("agent: CLIPBOARD_GRAB empty type list")
	}
	first := binary.LittleEndian.Uint32(body[0:4])

	a.clipboard.agentGrabbed = true
	a.clipboard.clientGrabbed = false
	a.clipboard.grabbedType = clipboardTypeFromWire(first)

	if a.cb.Notice != nil {
		a.cb.Notice(a.clipboard.grabbedType)
	}
	return nil
}

// handleClipboardRequestLocked processes the server asking the client
// (which currently owns the clipboard) for data of the requested type.
func (a *Agent) handleClipboardRequestLocked(body []byte) error {
	if a.selection {
		if len(body) < 4 {
			return fmt.Errorf("agent: CLIPBOARD_REQUEST selection header truncated")
		}
		body = body[4:]
	}
	if len(body) < 4 {
		return fmt.Errorf("agent: CLIPBOARD_REQUEST too short")
	}
	t := clipboardTypeFromWire(binary.LittleEndian.Uint32(body[0:4]))

	if !a.clipboard.clientGrabbed || a.cb.Request == nil {
		return nil
	}
	data := a.cb.Request(t)
	a.queueClipboardOneShotLocked(t, data)
	return nil
}

// handleClipboardDataLocked delivers one fully-reassembled CLIPBOARD
// message: a 4-byte type prefix (spec.md §4.5) followed by data.
func (a *Agent) handleClipboardDataLocked(body []byte) error {
	if a.selection {
		if len(body) < 4 {
			return fmt.Errorf("agent: CLIPBOARD selection header truncated")
		}
		body = body[4:]
	}
	if len(body) < 4 {
		return fmt.Errorf("agent: CLIPBOARD message too short")
	}
	t := clipboardTypeFromWire(binary.LittleEndian.Uint32(body[0:4]))
	data := body[4:]
	if a.cb.Data != nil {
		a.cb.Data(t, data)
	}
	return nil
}

func (a *Agent) handleClipboardReleaseLocked() {
	a.clipboard.agentGrabbed = false
	a.clipboard.grabbedType = spiceapi.ClipboardNone
	if a.cb.Release != nil {
		a.cb.Release()
	}
}

func (a *Agent) queueClipboardOneShotLocked(t spiceapi.ClipboardType, data []byte) {
	header := a.selectionHeaderLocked()
	var typeBuf [4]byte
	binary.LittleEndian.PutUint32(typeBuf[:], wireFromClipboardType(t))
	body := append(append([]byte{}, header...), typeBuf[:]...)
	body = append(body, data...)
	a.enqueueMessage(MsgClipboard, body)
}

// ClipboardGrab claims clipboard ownership locally and advertises the
// given types to the server (spec.md §4.5's public clipboardGrab).
func (a *Agent) ClipboardGrab(types []spiceapi.ClipboardType) error {
	if len(types) == 0 {
		return fmt.Errorf("agent: clipboard grab requires at least one type")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clipboard.clientGrabbed = true
	a.clipboard.agentGrabbed = false

	body := a.selectionHeaderLocked()
	for _, t := range types {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], wireFromClipboardType(t))
		body = append(body, w[:]...)
	}
	a.enqueueMessage(MsgClipboardGrab, body)
	return nil
}

// ClipboardRelease releases the client's clipboard ownership; a no-op
// unless the client currently holds the grab (spec.md §4.5).
func (a *Agent) ClipboardRelease() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.clipboard.clientGrabbed {
		return nil
	}
	a.clipboard.clientGrabbed = false
	a.enqueueMessage(MsgClipboardRelease, a.selectionHeaderLocked())
	return nil
}

// ClipboardRequest asks the server (which currently owns the clipboard,
// per the last grab notification) for its advertised data.
func (a *Agent) ClipboardRequest(t spiceapi.ClipboardType) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.clipboard.agentGrabbed {
		return fmt.Errorf("agent: no server clipboard grab to request from")
	}
	if t != a.clipboard.grabbedType {
		return fmt.Errorf("agent: requested type does not match the advertised grab type")
	}
	var typeBuf [4]byte
	binary.LittleEndian.PutUint32(typeBuf[:], wireFromClipboardType(t))
	body := append(a.selectionHeaderLocked(), typeBuf[:]...)
	a.enqueueMessage(MsgClipboardRequest, body)
	return nil
}

// ClipboardDataStart begins a streamed outbound CLIPBOARD transmission
// of dataSize bytes of type t; subsequent ClipboardData calls append the
// declared bytes (spec.md §4.5's public clipboardDataStart).
func (a *Agent) ClipboardDataStart(t spiceapi.ClipboardType, dataSize uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var typeBuf [4]byte
	binary.LittleEndian.PutUint32(typeBuf[:], wireFromClipboardType(t))
	prefix := append(a.selectionHeaderLocked(), typeBuf[:]...)

	a.clipboard.outTotal = uint32(len(prefix)) + dataSize
	a.clipboard.outWritten = uint32(len(prefix))
	a.enqueueHeaderedLocked(MsgClipboard, a.clipboard.outTotal, prefix)
	return nil
}

// ClipboardData appends one chunk of a streamed CLIPBOARD transmission
// previously opened with ClipboardDataStart, asserting the caller never
// overruns the declared total (spec.md §4.5).
func (a *Agent) ClipboardData(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clipboard.outWritten+uint32(len(data)) > a.clipboard.outTotal {
		return fmt.Errorf("agent: clipboard data exceeds declared total")
	}
	a.clipboard.outWritten += uint32(len(data))
	a.enqueueContinuationLocked(data)
	return nil
}
