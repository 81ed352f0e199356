package channels

import (
	"encoding/binary"
	"fmt"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/spiceapi"
	"github.com/zbum/purespice-go/internal/wire"
)

// Display message type codes (server -> client). Only the subset this
// core understands is named; everything else is dispatched as a no-op
// (spec.md §4.4 Non-goal: no video-stream, no compressed-bitmap codecs).
const (
	MsgDisplayMode uint16 = channel.MsgBaseLast + iota
	MsgDisplayMark
	MsgDisplayReset
	MsgDisplayCopyBits
	MsgDisplayInvalList
	MsgDisplayInvalAllPixmaps
	MsgDisplayInvalPalette
	MsgDisplayInvalAllPalettes
	MsgDisplayStreamCreate
	MsgDisplayStreamData
	MsgDisplayStreamClip
	MsgDisplayStreamDestroy
	MsgDisplayStreamDestroyAll
	MsgDisplaySurfaceCreate
	MsgDisplaySurfaceDestroy
	MsgDisplayDrawFill
	MsgDisplayDrawCopy
)

const (
	// brushTypeSolid is the only DRAW_FILL brush type this core renders
	// (spec.md §4.4 Non-goal: patterns are skipped, not decoded).
	brushTypeSolid uint8 = 1
	// imageTypeBitmap selects an uncompressed bitmap DRAW_COPY source
	// image; any other image type is unsupported.
	imageTypeBitmap uint8 = 0
	bitmapFormat32bit uint8 = 1
)

// DisplayHandler implements channel.Handler for the DISPLAY channel.
type DisplayHandler struct {
	cb spiceapi.DisplayCallbacks
}

func NewDisplayHandler(cb spiceapi.DisplayCallbacks) *DisplayHandler {
	return &DisplayHandler{cb: cb}
}

// ConnectPacket returns an empty DISPLAY_INIT message (spec.md §4.4). No
// preferred-compression message is sent.
func (h *DisplayHandler) ConnectPacket(ch *channel.Channel) []byte {
	b := wire.NewBuilder(MsgcDisplayInit, 0)
	return b.Finish()
}

func (h *DisplayHandler) Discard(msgType uint16) bool {
	switch msgType {
	case MsgDisplayStreamCreate, MsgDisplayStreamData, MsgDisplayStreamClip,
		MsgDisplayStreamDestroy, MsgDisplayStreamDestroyAll,
		MsgDisplayInvalPalette, MsgDisplayInvalAllPalettes:
		return true
	default:
		return false
	}
}

func (h *DisplayHandler) Dispatch(ch *channel.Channel, msgType uint16, payload []byte) error {
	switch msgType {
	case MsgDisplayMode:
		ch.SetInitDone()
		return nil
	case MsgDisplaySurfaceCreate:
		return h.handleSurfaceCreate(payload)
	case MsgDisplaySurfaceDestroy:
		return h.handleSurfaceDestroy(payload)
	case MsgDisplayDrawFill:
		return h.handleDrawFill(payload)
	case MsgDisplayDrawCopy:
		return h.handleDrawCopy(payload)
	default:
		return nil
	}
}

// MsgcDisplayInit is the client's single outbound DISPLAY message, sent
// with an empty payload (spec.md §4.4).
const MsgcDisplayInit uint16 = channel.MsgBaseLast + 100

func surfaceFormatFromWire(v uint32) spiceapi.SurfaceFormat {
	switch v {
	case 1:
		return spiceapi.SurfaceFormat1A
	case 8:
		return spiceapi.SurfaceFormat8A
	case 16:
		return spiceapi.SurfaceFormat16_555
	case 32:
		return spiceapi.SurfaceFormat32_xRGB
	default:
		return spiceapi.SurfaceFormatInvalid
	}
}

func (h *DisplayHandler) handleSurfaceCreate(payload []byte) error {
	if len(payload) < 20 {
		return fmt.Errorf("display: SURFACE_CREATE too short")
	}
	surfaceID := binary.LittleEndian.Uint32(payload[0:4])
	width := binary.LittleEndian.Uint32(payload[4:8])
	height := binary.LittleEndian.Uint32(payload[8:12])
	format := binary.LittleEndian.Uint32(payload[12:16])
	if h.cb.SurfaceCreate != nil {
		h.cb.SurfaceCreate(surfaceID, surfaceFormatFromWire(format), width, height)
	}
	return nil
}

func (h *DisplayHandler) handleSurfaceDestroy(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("display: SURFACE_DESTROY too short")
	}
	surfaceID := binary.LittleEndian.Uint32(payload[0:4])
	if h.cb.SurfaceDestroy != nil {
		h.cb.SurfaceDestroy(surfaceID)
	}
	return nil
}

// handleDrawFill parses a DRAW_FILL whose brush is the solid type
// (spec.md §4.4 Non-goal: pattern brushes decode to a no-op, not an
// error, since a server may legitimately mix the two).
func (h *DisplayHandler) handleDrawFill(payload []byte) error {
	if len(payload) < 21 {
		return fmt.Errorf("display: DRAW_FILL too short")
	}
	surfaceID := binary.LittleEndian.Uint32(payload[0:4])
	x := int32(binary.LittleEndian.Uint32(payload[4:8]))
	y := int32(binary.LittleEndian.Uint32(payload[8:12]))
	w := int32(binary.LittleEndian.Uint32(payload[12:16]))
	hgt := int32(binary.LittleEndian.Uint32(payload[16:20]))
	brushType := payload[20]
	if brushType != brushTypeSolid {
		return nil
	}
	if len(payload) < 25 {
		return fmt.Errorf("display: DRAW_FILL solid brush truncated")
	}
	color := binary.LittleEndian.Uint32(payload[21:25])
	if h.cb.DrawFill != nil {
		h.cb.DrawFill(surfaceID, x, y, w, hgt, color)
	}
	return nil
}

// handleDrawCopy parses a DRAW_COPY whose source image is an
// uncompressed bitmap (spec.md §4.4 Non-goal: compressed codecs are
// rejected as an error since this core cannot decode the pixels at
// all).
func (h *DisplayHandler) handleDrawCopy(payload []byte) error {
	if len(payload) < 16 {
		return fmt.Errorf("display: DRAW_COPY too short")
	}
	surfaceID := binary.LittleEndian.Uint32(payload[0:4])
	x := int32(binary.LittleEndian.Uint32(payload[4:8]))
	y := int32(binary.LittleEndian.Uint32(payload[8:12]))
	imageType := payload[12]
	if imageType != imageTypeBitmap {
		return fmt.Errorf("display: DRAW_COPY image type %d unsupported (bitmap only)", imageType)
	}
	if len(payload) < 29 {
		return fmt.Errorf("display: DRAW_COPY bitmap header truncated")
	}
	format := payload[13]
	width := binary.LittleEndian.Uint32(payload[14:18])
	height := binary.LittleEndian.Uint32(payload[18:22])
	stride := binary.LittleEndian.Uint32(payload[22:26])
	topDown := payload[26] != 0
	dataOffset := uint32(29)
	if format != bitmapFormat32bit {
		return fmt.Errorf("display: DRAW_COPY bitmap format %d unsupported (32-bit only)", format)
	}
	need := dataOffset + stride*height
	if uint32(len(payload)) < need {
		return fmt.Errorf("display: DRAW_COPY bitmap data truncated")
	}
	pixels := payload[dataOffset:need]
	if h.cb.DrawBitmap != nil {
		h.cb.DrawBitmap(surfaceID, pixels, topDown, x, y, width, height, stride)
	}
	return nil
}
