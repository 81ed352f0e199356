package channels

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/spiceapi"
	"github.com/zbum/purespice-go/internal/wire"
)

// Inputs message type codes (server -> client).
const (
	MsgInputsInit            uint16 = channel.MsgBaseLast + iota // INPUTS_INIT
	MsgInputsKeyModifiers                                        // KEY_MODIFIERS
	MsgInputsMouseMotionAck                                      // MOUSE_MOTION_ACK
)

// Inputs message type codes (client -> server).
const (
	MsgcInputsKeyDown uint16 = channel.MsgBaseLast + 100 + iota
	MsgcInputsKeyUp
	MsgcInputsKeyModifiers
	MsgcInputsMouseMotion
	MsgcInputsMousePosition
	MsgcInputsMousePress
	MsgcInputsMouseRelease
)

// motionAckBunch is the number of motion submessages the server expects
// to see acked together (spec.md §4.3).
const motionAckBunch = 16

// motionClamp is the largest absolute delta a single MOUSE_MOTION
// submessage may carry; larger deltas are split across multiple
// submessages (per QEMU virtio-mouse's signed-byte dx/dy wire format).
const motionClamp = 127

// InputsHandler implements channel.Handler for the INPUTS channel and
// provides the outbound key/mouse API internal/session exposes to hosts.
type InputsHandler struct {
	ch *channel.Channel

	mu         sync.Mutex
	modifiers  uint16
	buttonMask uint8
}

func NewInputsHandler() *InputsHandler {
	return &InputsHandler{}
}

// Bind records the owning channel so outbound methods can send on it.
// Called once by the session after constructing the channel.
func (h *InputsHandler) Bind(ch *channel.Channel) { h.ch = ch }

func (h *InputsHandler) ConnectPacket(ch *channel.Channel) []byte {
	return nil
}

func (h *InputsHandler) Discard(msgType uint16) bool { return false }

func (h *InputsHandler) Dispatch(ch *channel.Channel, msgType uint16, payload []byte) error {
	switch msgType {
	case MsgInputsInit:
		if len(payload) < 2 {
			return fmt.Errorf("inputs: INIT too short")
		}
		h.mu.Lock()
		h.modifiers = binary.LittleEndian.Uint16(payload[0:2])
		h.mu.Unlock()
		ch.SetInitDone()
		return nil
	case MsgInputsKeyModifiers:
		if len(payload) < 2 {
			return fmt.Errorf("inputs: KEY_MODIFIERS too short")
		}
		h.mu.Lock()
		h.modifiers = binary.LittleEndian.Uint16(payload[0:2])
		h.mu.Unlock()
		return nil
	case MsgInputsMouseMotionAck:
		return ch.AckMotion(motionAckBunch)
	default:
		return nil
	}
}

// KeyDown sends a scancode key-press.
func (h *InputsHandler) KeyDown(scancode uint32) error {
	return h.sendScancode(MsgcInputsKeyDown, scancode)
}

// KeyUp sends a scancode key-release.
func (h *InputsHandler) KeyUp(scancode uint32) error {
	return h.sendScancode(MsgcInputsKeyUp, scancode)
}

func (h *InputsHandler) sendScancode(msgType uint16, scancode uint32) error {
	b := wire.NewBuilder(msgType, 4)
	b.PutUint32(scancode)
	return h.ch.Send(b.Finish())
}

// KeyModifiers pushes the client's lock-key state to the server.
func (h *InputsHandler) KeyModifiers(modifiers uint16) error {
	b := wire.NewBuilder(MsgcInputsKeyModifiers, 2)
	b.PutUint16(modifiers)
	return h.ch.Send(b.Finish())
}

// MousePosition sends an absolute-mode mouse position update.
func (h *InputsHandler) MousePosition(x, y int32, buttonState uint32, displayID uint8) error {
	b := wire.NewBuilder(MsgcInputsMousePosition, 13)
	b.PutUint32(uint32(x))
	b.PutUint32(uint32(y))
	b.PutUint32(buttonState)
	b.PutUint8(displayID)
	return h.ch.Send(b.Finish())
}

// MousePress sends a button-press event with the accumulated button mask.
func (h *InputsHandler) MousePress(button spiceapi.MouseButton, buttonState uint32) error {
	b := wire.NewBuilder(MsgcInputsMousePress, 5)
	b.PutUint8(mouseButtonWire(button))
	b.PutUint32(buttonState)
	return h.ch.Send(b.Finish())
}

// MouseRelease sends a button-release event with the accumulated button mask.
func (h *InputsHandler) MouseRelease(button spiceapi.MouseButton, buttonState uint32) error {
	b := wire.NewBuilder(MsgcInputsMouseRelease, 5)
	b.PutUint8(mouseButtonWire(button))
	b.PutUint32(buttonState)
	return h.ch.Send(b.Finish())
}

func mouseButtonWire(b spiceapi.MouseButton) uint8 {
	switch b {
	case spiceapi.MouseButtonLeft:
		return 1
	case spiceapi.MouseButtonMiddle:
		return 2
	case spiceapi.MouseButtonRight:
		return 3
	case spiceapi.MouseButtonSide:
		return 4
	case spiceapi.MouseButtonExtra:
		return 5
	default:
		return 0
	}
}

// MouseMotion sends a relative-mode mouse motion, packetised into one or
// more submessages so that no single dx/dy exceeds motionClamp (spec.md
// §4.3, §8 scenario #2). Each submessage increments the channel's
// outstanding-motion counter by one.
func (h *InputsHandler) MouseMotion(dx, dy int32, buttonState uint32) error {
	return h.ch.WithSendLock(func() error {
		for dx != 0 || dy != 0 {
			stepX := clampStep(&dx)
			stepY := clampStep(&dy)

			b := wire.NewBuilder(MsgcInputsMouseMotion, 9)
			b.PutInt32(stepX)
			b.PutInt32(stepY)
			b.PutUint32(buttonState)
			if err := h.ch.WriteLocked(b.Finish()); err != nil {
				return err
			}
			h.ch.AddOutstandingMotion(1)

			if dx == 0 && dy == 0 {
				break
			}
		}
		return nil
	})
}

// clampStep consumes up to motionClamp from *remaining (toward zero) and
// returns the consumed step, mutating *remaining in place.
func clampStep(remaining *int32) int32 {
	r := *remaining
	if r == 0 {
		return 0
	}
	var step int32
	if r > motionClamp {
		step = motionClamp
	} else if r < -motionClamp {
		step = -motionClamp
	} else {
		step = r
	}
	*remaining = r - step
	return step
}
