package channel

// Common message type codes, shared by every channel kind (spec.md §4.3).
// Anything below MsgBaseLast is handled by the shared common dispatcher
// before a channel's own handler ever sees it.
const (
	MsgMigrate          uint16 = 1
	MsgMigrateData      uint16 = 2
	MsgSetAck           uint16 = 3
	MsgPing             uint16 = 4
	MsgWaitForChannels  uint16 = 5
	MsgDisconnecting    uint16 = 6
	MsgNotify           uint16 = 7
	MsgBaseLast         uint16 = 101
)

// Client-to-server common message codes.
const (
	MsgcAckSync      uint16 = 1
	MsgcAck          uint16 = 2
	MsgcPong         uint16 = 3
	MsgcDisconnecting uint16 = 4
)

// commonDiscard reports whether a common message type's payload should be
// dropped without materialising a buffer.
func commonDiscard(msgType uint16) bool {
	switch msgType {
	case MsgMigrate, MsgMigrateData, MsgWaitForChannels:
		return true
	default:
		return false
	}
}

// NotifyHandler is called with the raw body of a NOTIFY message.
type NotifyHandler func(ch *Channel, body []byte)

// commonHandle processes a common message type that was not discarded:
// SET_ACK, PING, DISCONNECTING, NOTIFY. Any other common code (e.g. an
// unrecognised extension) is logged and ignored.
func (ch *Channel) commonHandle(msgType uint16, payload []byte) error {
	switch msgType {
	case MsgSetAck:
		return ch.handleSetAck(payload)
	case MsgPing:
		return ch.handlePing(payload)
	case MsgDisconnecting:
		ch.handleDisconnecting()
		return nil
	case MsgNotify:
		if ch.onNotify != nil {
			ch.onNotify(ch, payload)
		}
		return nil
	default:
		ch.logger.Debugf("%s: unhandled common message type %d, %d bytes", ch.name, msgType, len(payload))
		return nil
	}
}

// handleSetAck stores the server-requested ack window and replies with an
// ACK_SYNC carrying the same generation.
func (ch *Channel) handleSetAck(payload []byte) error {
	if len(payload) < 8 {
		return ErrShortMessage
	}
	generation := le32(payload[0:4])
	window := le32(payload[4:8])
	ch.ackWindow.Store(window)
	ch.ackCount.Store(0)

	return ch.sendSimple(MsgcAckSync, func(b *packetBuf) {
		b.putUint32(generation)
	})
}

// handlePing replies with a pong echoing id and timestamp, after consuming
// the filler payload.
func (ch *Channel) handlePing(payload []byte) error {
	if len(payload) < 12 {
		return ErrShortMessage
	}
	id := le32(payload[0:4])
	timestamp := le64(payload[4:12])

	return ch.sendSimple(MsgcPong, func(b *packetBuf) {
		b.putUint32(id)
		b.putUint64(timestamp)
	})
}

// handleDisconnecting shuts down the write half and marks the channel for
// teardown; the read loop observes EOF shortly after.
func (ch *Channel) handleDisconnecting() {
	ch.pendingDisconnect.Store(true)
	if tc, ok := ch.conn.(interface{ CloseWrite() error }); ok {
		tc.CloseWrite()
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
