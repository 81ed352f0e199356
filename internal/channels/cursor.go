package channels

import (
	"encoding/binary"
	"fmt"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/spiceapi"
)

// Cursor message type codes (server -> client).
const (
	MsgCursorInit uint16 = channel.MsgBaseLast + iota
	MsgCursorReset
	MsgCursorSet
	MsgCursorMove
	MsgCursorHide
	MsgCursorTrail
	MsgCursorInvalOne
	MsgCursorInvalAll
)

// Cursor shape type codes, matching the server's cursor header.
const (
	cursorShapeAlpha uint8 = 0
	cursorShapeMono  uint8 = 1
	cursorShapeColor4 uint8 = 2
	cursorShapeColor8 uint8 = 3
	cursorShapeColor16 uint8 = 4
	cursorShapeColor24 uint8 = 5
	cursorShapeColor32 uint8 = 6
)

// cursorShape is one cached cursor bitmap, retained until invalidated.
type cursorShape struct {
	width, height, hotX, hotY uint16
	rgba                      []byte
}

// CursorHandler implements channel.Handler for the CURSOR channel,
// maintaining the server's cursor cache keyed by its "unique" id
// (spec.md §4.4).
type CursorHandler struct {
	cb    spiceapi.CursorCallbacks
	cache map[uint64]*cursorShape
}

func NewCursorHandler(cb spiceapi.CursorCallbacks) *CursorHandler {
	return &CursorHandler{cb: cb, cache: make(map[uint64]*cursorShape)}
}

func (h *CursorHandler) ConnectPacket(ch *channel.Channel) []byte { return nil }

func (h *CursorHandler) Discard(msgType uint16) bool { return false }

func (h *CursorHandler) Dispatch(ch *channel.Channel, msgType uint16, payload []byte) error {
	switch msgType {
	case MsgCursorInit:
		ch.SetInitDone()
		return h.handleSetLike(payload, true)
	case MsgCursorReset:
		h.cache = make(map[uint64]*cursorShape)
		if h.cb.SetVisible != nil {
			h.cb.SetVisible(false)
		}
		return nil
	case MsgCursorSet:
		return h.handleSetLike(payload, false)
	case MsgCursorMove:
		if len(payload) < 4 {
			return fmt.Errorf("cursor: MOVE too short")
		}
		x := int32(binary.LittleEndian.Uint16(payload[0:2]))
		y := int32(binary.LittleEndian.Uint16(payload[2:4]))
		if h.cb.Move != nil {
			h.cb.Move(x, y)
		}
		return nil
	case MsgCursorHide:
		// spec.md §9 open question: cursor visibility on a HIDE with no
		// prior SET is treated as "hide", matching the server's own
		// invariant that HIDE always follows a visible cursor state.
		if h.cb.SetVisible != nil {
			h.cb.SetVisible(false)
		}
		return nil
	case MsgCursorTrail:
		if len(payload) < 4 {
			return fmt.Errorf("cursor: TRAIL too short")
		}
		length := binary.LittleEndian.Uint16(payload[0:2])
		frequency := binary.LittleEndian.Uint16(payload[2:4])
		if h.cb.Trail != nil {
			h.cb.Trail(length, frequency)
		}
		return nil
	case MsgCursorInvalOne:
		if len(payload) < 8 {
			return fmt.Errorf("cursor: INVAL_ONE too short")
		}
		delete(h.cache, binary.LittleEndian.Uint64(payload[0:8]))
		return nil
	case MsgCursorInvalAll:
		h.cache = make(map[uint64]*cursorShape)
		return nil
	default:
		return nil
	}
}

// handleSetLike decodes a CURSOR_INIT or CURSOR_SET payload: an 8-byte
// cache key ("unique"), a shape header, and (for uncached shapes) the
// raw bitmap, decoded to straight RGBA by decodeCursorBitmap; COLOR4 and
// COLOR16 shapes are rejected with an error (spec.md §4.4).
func (h *CursorHandler) handleSetLike(payload []byte, visible bool) error {
	if len(payload) < 17 {
		return fmt.Errorf("cursor: shape header too short")
	}
	unique := binary.LittleEndian.Uint64(payload[0:8])
	shapeType := payload[8]
	width := binary.LittleEndian.Uint16(payload[9:11])
	height := binary.LittleEndian.Uint16(payload[11:13])
	hotX := binary.LittleEndian.Uint16(payload[13:15])
	hotY := binary.LittleEndian.Uint16(payload[15:17])

	shape, cached := h.cache[unique]
	if !cached {
		data := payload[17:]
		rgba, err := decodeCursorBitmap(shapeType, width, height, data)
		if err != nil {
			return err
		}
		shape = &cursorShape{width: width, height: height, hotX: hotX, hotY: hotY, rgba: rgba}
		h.cache[unique] = shape
	}

	if h.cb.SetShape != nil {
		h.cb.SetShape(shape.width, shape.height, shape.hotX, shape.hotY, shape.rgba)
	}
	if h.cb.SetVisible != nil {
		h.cb.SetVisible(visible)
	}
	return nil
}

// cursorBitmapSize returns the number of source bytes a shape of the
// given type and dimensions occupies on the wire (spec.md §4.4's
// per-encoding buffer sizing table).
func cursorBitmapSize(shapeType uint8, width, height uint16) (int, error) {
	w, h := int(width), int(height)
	switch shapeType {
	case cursorShapeAlpha:
		return w * h * 4, nil
	case cursorShapeMono:
		return ((w + 7) / 8) * h, nil
	case cursorShapeColor4:
		return ((w+1)/2)*h + 16*4, nil // nibble-packed indices + 16-entry palette
	case cursorShapeColor8:
		return w*h + 256*4, nil // byte indices + 256-entry palette
	case cursorShapeColor16:
		return w * h * 2, nil
	case cursorShapeColor24:
		return w * h * 3, nil
	case cursorShapeColor32:
		return w * h * 4, nil
	default:
		return 0, fmt.Errorf("cursor: unsupported shape type %d", shapeType)
	}
}

// decodeCursorBitmap converts the wire encoding into straight RGBA,
// dropping the AND mask row for ALPHA/mono shapes (spec.md §4.4
// Non-goal: no cursor "inverted" XOR rendering, only a straight mask).
func decodeCursorBitmap(shapeType uint8, width, height uint16, data []byte) ([]byte, error) {
	need, err := cursorBitmapSize(shapeType, width, height)
	if err != nil {
		return nil, err
	}
	if len(data) < need {
		return nil, fmt.Errorf("cursor: shape data truncated: need %d, have %d", need, len(data))
	}
	w, h := int(width), int(height)
	rgba := make([]byte, w*h*4)

	switch shapeType {
	case cursorShapeAlpha, cursorShapeColor32:
		copy(rgba, data[:w*h*4])
	case cursorShapeMono:
		stride := (w + 7) / 8
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				bit := data[y*stride+x/8] & (0x80 >> uint(x%8))
				v := byte(0)
				if bit != 0 {
					v = 0xFF
				}
				i := (y*w + x) * 4
				rgba[i], rgba[i+1], rgba[i+2], rgba[i+3] = v, v, v, 0xFF
			}
		}
	case cursorShapeColor8:
		palette := data[w*h:]
		for i := 0; i < w*h; i++ {
			idx := int(data[i])
			copy(rgba[i*4:i*4+4], palette[idx*4:idx*4+4])
		}
	case cursorShapeColor24:
		for i := 0; i < w*h; i++ {
			rgba[i*4] = data[i*3]
			rgba[i*4+1] = data[i*3+1]
			rgba[i*4+2] = data[i*3+2]
			rgba[i*4+3] = 0xFF
		}
	default:
		return nil, fmt.Errorf("cursor: unsupported shape type %d for decode", shapeType)
	}
	return rgba, nil
}
