// Package channels implements the per-kind SPICE channel dispatch table:
// one file per channel kind, each providing the connect packet and
// message handler the shared channel.Channel runtime drives
// (spec.md §4.4), one-handler-file-per-message-family with a handler-table
// dispatch per file.
package channels

import (
	"encoding/binary"
	"fmt"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/wire"
)

// Main message type codes (server -> client), offset from
// channel.MsgBaseLast.
const (
	MsgMainInit             uint16 = channel.MsgBaseLast + iota // MAIN_INIT
	MsgMainName                                                 // NAME
	MsgMainUUID                                                 // UUID
	MsgMainChannelsList                                         // CHANNELS_LIST
	MsgMainAgentConnected                                       // AGENT_CONNECTED
	MsgMainAgentConnectedTok                                    // AGENT_CONNECTED_TOKENS
	MsgMainAgentDisconnected                                    // AGENT_DISCONNECTED
	MsgMainAgentData                                            // AGENT_DATA
	MsgMainAgentToken                                           // AGENT_TOKEN
	MsgMainMouseMode                                            // MOUSE_MODE
	MsgMainMultiMediaTime                                       // MULTI_MEDIA_TIME
)

// Main message type codes (client -> server).
const (
	MsgcMainClientInfo     uint16 = channel.MsgBaseLast + 100 + iota
	MsgcMainAttachChannels
	MsgcMainMouseModeRequest
	MsgcMainAgentStart
	MsgcMainAgentData
)

const (
	mouseModeServer uint32 = 1
	mouseModeClient uint32 = 2
)

// MainHost is the narrow view of the session the MAIN channel handler
// needs, implemented by internal/session.Session. Kept separate from the
// session package to avoid an import cycle (session owns the Channel
// table that channels.Handler implementations are installed into).
type MainHost interface {
	SetSessionID(id uint32)
	SetMouseMode(clientMode bool)
	MouseModeIsClient() bool
	AgentStart(tokens uint32)
	AgentStop(reason string)
	AgentData(payload []byte)
	AgentTokenGrant(n uint32)
	MarkChannelAvailable(kind channel.Kind)
	MaybeAutoConnect(kind channel.Kind)
	SetName(name string)
	SetUUID(id [16]byte)
	FireReadyIfComplete()
	RequireNameAndUUID() bool
}

// MainHandler implements channel.Handler for the MAIN channel.
type MainHandler struct {
	host MainHost
}

func NewMainHandler(host MainHost) *MainHandler {
	return &MainHandler{host: host}
}

func (h *MainHandler) SetCaps(common, channelCaps *wire.CapSet) {
	// Changes nothing: the session's buildCaps sets the common caps for
	// all channels and MAIN's agent-connected-tokens and name-and-UUID
	// caps.
}

func (h *MainHandler) ConnectPacket(ch *channel.Channel) []byte {
	// MAIN sends nothing immediately after link success; it waits
	// passively for MAIN_INIT (spec.md §4.4).
	return nil
}

func (h *MainHandler) Discard(msgType uint16) bool {
	switch msgType {
	case MsgMainMouseMode, MsgMainMultiMediaTime:
		return true
	default:
		return false
	}
}

func (h *MainHandler) Dispatch(ch *channel.Channel, msgType uint16, payload []byte) error {
	switch msgType {
	case MsgMainInit:
		return h.handleInit(ch, payload)
	case MsgMainName:
		if len(payload) < 4 {
			return fmt.Errorf("main: NAME too short")
		}
		n := binary.LittleEndian.Uint32(payload[0:4])
		if int(n) > len(payload)-4 {
			return fmt.Errorf("main: NAME length overruns payload")
		}
		h.host.SetName(string(payload[4 : 4+n]))
		h.host.FireReadyIfComplete()
		return nil
	case MsgMainUUID:
		if len(payload) < 16 {
			return fmt.Errorf("main: UUID too short")
		}
		var id [16]byte
		copy(id[:], payload[:16])
		h.host.SetUUID(id)
		h.host.FireReadyIfComplete()
		return nil
	case MsgMainChannelsList:
		return h.handleChannelsList(payload)
	case MsgMainAgentConnected:
		h.host.AgentStart(0)
		return nil
	case MsgMainAgentConnectedTok:
		if len(payload) < 4 {
			return fmt.Errorf("main: AGENT_CONNECTED_TOKENS too short")
		}
		h.host.AgentStart(binary.LittleEndian.Uint32(payload[0:4]))
		return nil
	case MsgMainAgentDisconnected:
		reason := "disconnected"
		if len(payload) >= 4 {
			reason = fmt.Sprintf("reason=%d", binary.LittleEndian.Uint32(payload[0:4]))
		}
		h.host.AgentStop(reason)
		return nil
	case MsgMainAgentData:
		h.host.AgentData(payload)
		return nil
	case MsgMainAgentToken:
		if len(payload) < 4 {
			return fmt.Errorf("main: AGENT_TOKEN too short")
		}
		h.host.AgentTokenGrant(binary.LittleEndian.Uint32(payload[0:4]))
		return nil
	default:
		return nil
	}
}

func (h *MainHandler) handleInit(ch *channel.Channel, payload []byte) error {
	if len(payload) < 20 {
		return fmt.Errorf("main: MAIN_INIT too short")
	}
	sessionID := binary.LittleEndian.Uint32(payload[0:4])
	// display_channels_hint := payload[4:8] (unused by this core)
	currentMouseMode := binary.LittleEndian.Uint32(payload[8:12])
	agentConnected := binary.LittleEndian.Uint32(payload[12:16])
	agentTokens := binary.LittleEndian.Uint32(payload[16:20])

	h.host.SetSessionID(sessionID)

	if agentConnected != 0 {
		h.host.AgentStart(agentTokens)
	}
	if currentMouseMode != mouseModeClient {
		if err := h.requestClientMouseMode(ch); err != nil {
			return err
		}
	}
	return h.sendAttachChannels(ch)
}

func (h *MainHandler) requestClientMouseMode(ch *channel.Channel) error {
	b := wire.NewBuilder(MsgcMainMouseModeRequest, 4)
	b.PutUint32(mouseModeClient)
	return ch.Send(b.Finish())
}

func (h *MainHandler) sendAttachChannels(ch *channel.Channel) error {
	b := wire.NewBuilder(MsgcMainAttachChannels, 0)
	return ch.Send(b.Finish())
}

// handleChannelsList parses a CHANNELS_LIST body: a channel count followed
// by one (type, id) byte pair per channel.
func (h *MainHandler) handleChannelsList(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("main: CHANNELS_LIST too short")
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	off := 4
	for i := uint32(0); i < n; i++ {
		if off+2 > len(payload) {
			return fmt.Errorf("main: CHANNELS_LIST entry overruns payload")
		}
		wireType := payload[off]
		// channelID := payload[off+1] (unused: this core tracks one
		// channel instance per kind, not per-id)
		off += 2

		kind, ok := kindForWireType(wireType)
		if !ok {
			continue
		}
		h.host.MarkChannelAvailable(kind)
		h.host.MaybeAutoConnect(kind)
	}
	return nil
}

func kindForWireType(t byte) (channel.Kind, bool) {
	switch t {
	case channel.WireTypeMain:
		return channel.KindMain, true
	case channel.WireTypeDisplay:
		return channel.KindDisplay, true
	case channel.WireTypeInputs:
		return channel.KindInputs, true
	case channel.WireTypeCursor:
		return channel.KindCursor, true
	case channel.WireTypePlayback:
		return channel.KindPlayback, true
	case channel.WireTypeRecord:
		return channel.KindRecord, true
	default:
		return 0, false
	}
}
