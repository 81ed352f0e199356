package channels

import (
	"encoding/binary"
	"fmt"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/spiceapi"
)

// Playback message type codes (server -> client).
const (
	MsgPlaybackStart uint16 = channel.MsgBaseLast + iota // PLAYBACK_START
	MsgPlaybackData                                       // PLAYBACK_DATA
	MsgPlaybackStop                                       // PLAYBACK_STOP
	MsgPlaybackVolume                                      // PLAYBACK_VOLUME
	MsgPlaybackMute                                        // PLAYBACK_MUTE
)

const audioFormatS16 uint16 = 1

// PlaybackHandler implements channel.Handler for the PLAYBACK channel,
// translating SPICE's mandatory-S16 audio stream into the host's
// playback callbacks (spec.md §4.4's Non-goal: only S16 is supported;
// a PLAYBACK_START advertising any other format is rejected with an
// error).
type PlaybackHandler struct {
	cb spiceapi.PlaybackCallbacks
}

func NewPlaybackHandler(cb spiceapi.PlaybackCallbacks) *PlaybackHandler {
	return &PlaybackHandler{cb: cb}
}

func (h *PlaybackHandler) ConnectPacket(ch *channel.Channel) []byte { return nil }

func (h *PlaybackHandler) Discard(msgType uint16) bool { return false }

func (h *PlaybackHandler) Dispatch(ch *channel.Channel, msgType uint16, payload []byte) error {
	switch msgType {
	case MsgPlaybackStart:
		return h.handleStart(ch, payload)
	case MsgPlaybackData:
		if len(payload) < 4 {
			return fmt.Errorf("playback: DATA too short")
		}
		if h.cb.Data != nil {
			h.cb.Data(payload[4:])
		}
		return nil
	case MsgPlaybackStop:
		if h.cb.Stop != nil {
			h.cb.Stop()
		}
		return nil
	case MsgPlaybackVolume:
		return h.handleVolume(payload)
	case MsgPlaybackMute:
		if len(payload) < 1 {
			return fmt.Errorf("playback: MUTE too short")
		}
		if h.cb.Mute != nil {
			h.cb.Mute(payload[0] != 0)
		}
		return nil
	default:
		return nil
	}
}

func (h *PlaybackHandler) handleStart(ch *channel.Channel, payload []byte) error {
	if len(payload) < 10 {
		return fmt.Errorf("playback: START too short")
	}
	channels := binary.LittleEndian.Uint16(payload[0:2])
	format := binary.LittleEndian.Uint16(payload[2:4])
	frequency := binary.LittleEndian.Uint32(payload[4:8])
	// time_stamp := payload[8:12] in some server builds; the 10-byte
	// minimum covers the fields this core consumes.
	if format != audioFormatS16 {
		return fmt.Errorf("playback: unsupported audio format %d (only S16 is supported)", format)
	}
	ch.SetInitDone()
	if h.cb.Start != nil {
		h.cb.Start(int(channels), frequency, spiceapi.AudioFormatS16)
	}
	return nil
}

func (h *PlaybackHandler) handleVolume(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("playback: VOLUME too short")
	}
	n := binary.LittleEndian.Uint16(payload[0:2])
	want := 2 + int(n)*2
	if len(payload) < want {
		return fmt.Errorf("playback: VOLUME channel array overruns payload")
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
