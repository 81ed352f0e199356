package channels

import (
	"encoding/binary"
	"fmt"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/spiceapi"
	"github.com/zbum/purespice-go/internal/wire"
)

// Record message type codes (server -> client).
const (
	MsgRecordStart uint16 = channel.MsgBaseLast + iota // RECORD_START
	MsgRecordStop                                       // RECORD_STOP
	MsgRecordVolume                                      // RECORD_VOLUME
	MsgRecordMute                                        // RECORD_MUTE
)

// Record message type codes (client -> server).
const (
	MsgcRecordData uint16 = channel.MsgBaseLast + 100 + iota
	MsgcRecordModeRequest
	MsgcRecordStartMark
)

// recordModeRaw selects uncompressed S16 frames, the only mode this core
// offers (spec.md §4.4 Non-goal: no CELT/opus encode path).
const recordModeRaw uint16 = 1

// RecordHandler implements channel.Handler for the RECORD channel and
// exposes the outbound WriteAudio call the host uses to stream captured
// audio to the server.
type RecordHandler struct {
	ch *channel.Channel
	cb spiceapi.RecordCallbacks
}

func NewRecordHandler(cb spiceapi.RecordCallbacks) *RecordHandler {
	return &RecordHandler{cb: cb}
}

func (h *RecordHandler) Bind(ch *channel.Channel) { h.ch = ch }

func (h *RecordHandler) ConnectPacket(ch *channel.Channel) []byte {
	b := wire.NewBuilder(MsgcRecordModeRequest, 6)
	b.PutUint32(0) // time
	b.PutUint16(recordModeRaw)
	return b.Finish()
}

func (h *RecordHandler) Discard(msgType uint16) bool { return false }

func (h *RecordHandler) Dispatch(ch *channel.Channel, msgType uint16, payload []byte) error {
	switch msgType {
	case MsgRecordStart:
		return h.handleStart(ch, payload)
	case MsgRecordStop:
		if h.cb.Stop != nil {
			h.cb.Stop()
		}
		return nil
	case MsgRecordVolume:
		return h.handleVolume(payload)
	case MsgRecordMute:
		if len(payload) < 1 {
			return fmt.Errorf("record: MUTE too short")
		}
		if h.cb.Mute != nil {
			h.cb.Mute(payload[0] != 0)
		}
		return nil
	default:
		return nil
	}
}

func (h *RecordHandler) handleStart(ch *channel.Channel, payload []byte) error {
	if len(payload) < 8 {
		return fmt.Errorf("record: START too short")
	}
	channels := binary.LittleEndian.Uint16(payload[0:2])
	format := binary.LittleEndian.Uint16(payload[2:4])
	frequency := binary.LittleEndian.Uint32(payload[4:8])
	if format != audioFormatS16 {
		return fmt.Errorf("record: unsupported audio format %d (only S16 is supported)", format)
	}
	ch.SetInitDone()
	if h.cb.Start != nil {
		h.cb.Start(int(channels), frequency, spiceapi.AudioFormatS16)
	}
	return nil
}

func (h *RecordHandler) handleVolume(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("record: VOLUME too short")
	}
	n := binary.LittleEndian.Uint16(payload[0:2])
	want := 2 + int(n)*2
	if len(payload) < want {
		return fmt.Errorf("record: VOLUME channel array overruns payload")
	}
	if h.cb.Volume == nil {
		return nil
	}
	levels := make([]uint16, n)
	for i := 0; i < int(n); i++ {
		levels[i] = binary.LittleEndian.Uint16(payload[2+i*2 : 4+i*2])
	}
	h.cb.Volume(levels)
	return nil
}

// WriteAudio sends one raw S16 sample buffer to the server.
func (h *RecordHandler) WriteAudio(samples []byte) error {
	b := wire.NewBuilder(MsgcRecordData, 4+len(samples))
	b.PutUint32(0) // time
	b.Append(samples)
	return h.ch.Send(b.Finish())
}
