// Package agent implements the guest-agent sub-protocol tunneled over the
// MAIN channel's AGENT_DATA messages: capability negotiation, a
// token-gated outbound queue, and clipboard ownership (spec.md §4.5).
// The outbound queue is an unbounded FIFO of carriers; each carrier sent
// consumes one server token, taken by atomic compare-and-swap, and
// NextChunk reports nothing ready instead of blocking when no token is
// left.
package agent

import (
	"encoding/binary"
	"fmt"
)

// Protocol is the only agent wire protocol version this core speaks.
const Protocol uint32 = 1

// carrierHeaderSize is the agent-level framing prefix (protocol, type,
// opaque, total size), present only on the first carrier of a logical
// agent message.
const carrierHeaderSize = 16

// MaxCarrierBytes bounds one physical AGENT_DATA payload, header
// included on the first carrier of a message (spec.md §4.5).
const MaxCarrierBytes = 2048

// Agent message types, tunneled inside AGENT_DATA carriers.
const (
	MsgAnnounceCapabilities uint32 = 1
	MsgClipboardGrab        uint32 = 2
	MsgClipboardRequest     uint32 = 3
	MsgClipboard            uint32 = 4
	MsgClipboardRelease     uint32 = 5
)

// Capability bits announced in ANNOUNCE_CAPABILITIES (spec.md §4.5).
const (
	CapClipboardByDemand  uint32 = 1 << 0
	CapClipboardSelection uint32 = 1 << 1
)

// inboundState tracks one in-flight logical agent message being
// reassembled from successive AGENT_DATA carriers (spec.md §4.5 "the
// receiver reassembles by tracking remain").
type inboundState struct {
	msgType uint32
	remain  uint32
	buf     []byte
}

// enqueueMessage splits one logical agent message, complete and known in
// full up front, into carrier-sized raw packets appended to the outbound
// FIFO (spec.md §4's "unbounded FIFO of opaque raw packets" — chunking
// happens at enqueue time so the token-gated drain loop need only pop one
// carrier per credit).
func (a *Agent) enqueueMessage(msgType uint32, body []byte) {
	a.enqueueHeaderedLocked(msgType, uint32(len(body)), body)
}

// enqueueHeaderedLocked frames the first carrier with msgType/total and
// chunks body across carriers. total may exceed len(body) when the
// caller (clipboardDataStart) declares a size up front and streams the
// remaining bytes later via enqueueContinuationLocked.
func (a *Agent) enqueueHeaderedLocked(msgType uint32, total uint32, body []byte) {
	offset := 0
	first := true
	for offset < len(body) || first {
		var chunk []byte
		if first {
			room := MaxCarrierBytes - carrierHeaderSize
			n := len(body) - offset
			if n > room {
				n = room
			}
			chunk = make([]byte, carrierHeaderSize+n)
			binary.LittleEndian.PutUint32(chunk[0:4], Protocol)
			binary.LittleEndian.PutUint32(chunk[4:8], msgType)
			binary.LittleEndian.PutUint32(chunk[8:12], 0) // opaque, unused
			binary.LittleEndian.PutUint32(chunk[12:16], total)
			copy(chunk[carrierHeaderSize:], body[offset:offset+n])
			offset += n
			first = false
		} else {
			n := len(body) - offset
			if n > MaxCarrierBytes {
				n = MaxCarrierBytes
			}
			chunk = append([]byte(nil), body[offset:offset+n]...)
			offset += n
		}
		a.queue = append(a.queue, chunk)
	}
}

// enqueueContinuationLocked appends raw header-less carriers of
// previously-declared message bytes (spec.md §4.5 clipboardData:
// "fragments into <= MAX_DATA_SIZE carriers").
func (a *Agent) enqueueContinuationLocked(data []byte) {
	offset := 0
	for offset < len(data) {
		n := len(data) - offset
		if n > MaxCarrierBytes {
			n = MaxCarrierBytes
		}
		a.queue = append(a.queue, append([]byte(nil), data[offset:offset+n]...))
		offset += n
	}
}

// HandleCarrier feeds one inbound AGENT_DATA payload through reassembly,
// dispatching the completed logical message once fully collected.
func (a *Agent) HandleCarrier(payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inbound.buf == nil && a.inbound.remain == 0 {
		if len(payload) < carrierHeaderSize {
			return fmt.Errorf("agent: carrier header truncated")
		}
		protocol := binary.LittleEndian.Uint32(payload[0:4])
		if protocol != Protocol {
			return fmt.Errorf("agent: unsupported protocol %d", protocol)
		}
		msgType := binary.LittleEndian.Uint32(payload[4:8])
		total := binary.LittleEndian.Uint32(payload[12:16])
		body := payload[carrierHeaderSize:]

		if uint32(len(body)) >= total {
			return a.dispatchLocked(msgType, body[:total])
		}
		buf := make([]byte, len(body), total)
		copy(buf, body)
		a.inbound = inboundState{msgType: msgType, remain: total - uint32(len(body)), buf: buf}
		return nil
	}

	n := uint32(len(payload))
	if n > a.inbound.remain {
		n = a.inbound.remain
	}
	a.inbound.buf = append(a.inbound.buf, payload[:n]...)
	a.inbound.remain -= n
	if a.inbound.remain == 0 {
		msgType, buf := a.inbound.msgType, a.inbound.buf
		a.inbound = inboundState{}
		return a.dispatchLocked(msgType, buf)
	}
	return nil
}

// dispatchLocked handles one fully-reassembled agent message. Callers
// must already hold a.mu. Per spec.md §9's discard-path open question,
// every branch returns immediately after acting — never falls through to
// re-interpret the same bytes under a different case.
func (a *Agent) dispatchLocked(msgType uint32, body []byte) error {
	switch msgType {
	case MsgAnnounceCapabilities:
		return a.handleAnnounceCapabilitiesLocked(body)
	case MsgClipboardGrab:
		return a.handleClipboardGrabLocked(body)
	case MsgClipboard:
		return a.handleClipboardDataLocked(body)
	case MsgClipboardRequest:
		return a.handleClipboardRequestLocked(body)
	case MsgClipboardRelease:
		a.handleClipboardReleaseLocked()
		return nil
	default:
		return nil
	}
}

func announceCapabilitiesBody(request uint32, caps uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], request)
	binary.LittleEndian.PutUint32(buf[4:8], caps)
	return buf
}
