// Package channel implements the per-channel runtime shared by every SPICE
// channel kind: the header->payload->handler read loop, ack-window
// accounting, graceful disconnect, and the send-side packet lock
// (spec.md §4.3).
package channel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/zbum/purespice-go/internal/link"
	"github.com/zbum/purespice-go/internal/wire"
)

// ErrShortMessage is returned when a common message's payload is too
// small to contain its fixed fields.
var ErrShortMessage = errors.New("channel: message too short")

// ErrMotionAckUnderflow is returned when the server acks more motion
// bunches than the client has outstanding (spec.md §4.3).
var ErrMotionAckUnderflow = errors.New("channel: motion-ack underflow")

// Logger is the minimal structured-logging surface the channel runtime
// needs; internal/logging provides the default implementation.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Handler is the per-kind capability set a Channel drives through the
// shared runtime (spec.md §9 "polymorphic channel table vs. virtual
// calls"): every channel kind implements ConnectPacket, Discard and
// Dispatch. The optional CapSetter and OnConnecter hooks below are not
// probed for or called by the session.
type Handler interface {
	// ConnectPacket returns the kind-specific packet sent immediately
	// after a successful link handshake (e.g. MAIN waits passively,
	// DISPLAY sends DisplayInit).
	ConnectPacket(ch *Channel) []byte
	// Discard reports whether msgType's payload should be read and
	// thrown away without being materialised into a buffer.
	Discard(msgType uint16) bool
	// Dispatch handles one fully-read (or empty, if discarded) message.
	Dispatch(ch *Channel, msgType uint16, payload []byte) error
}

// CapSetter is implemented by handlers that adjust the capability sets
// advertised during the link handshake (spec.md §4.1).
type CapSetter interface {
	SetCaps(common, channel *wire.CapSet)
}

// OnConnecter is implemented by handlers with connect-time side effects
// beyond sending the connect packet (none currently need it, but the hook
// matches spec.md §3's Channel virtual-method set).
type OnConnecter interface {
	OnConnect(ch *Channel) error
}

// Frame is one fully-processed inbound message, handed from the reader
// goroutine to Process().
type Frame struct {
	Type      uint16
	Payload   []byte
	Discarded bool
	Err       error
}

// Channel is one logical SPICE channel: an independent socket with its
// own link handshake, ack window, and message loop (spec.md §3).
type Channel struct {
	kind    Kind
	name    string
	handler Handler
	logger  Logger

	conn net.Conn

	connected         atomic.Bool
	ready             atomic.Bool
	initDone          atomic.Bool
	pendingDisconnect atomic.Bool

	sending atomic.Bool // spin-style send lock (spec.md §4.1)

	ackWindow atomic.Uint32
	ackCount  atomic.Uint32

	frames chan Frame

	onNotify NotifyHandler

	// motionOutstanding tracks in-flight INPUTS motion submessages; only
	// meaningful on the INPUTS channel but kept generically since the
	// common runtime owns no kind-specific state otherwise.
	motionOutstanding atomic.Int32
}

// New constructs a Channel bound to handler, not yet connected.
func New(kind Kind, handler Handler, logger Logger, onNotify NotifyHandler) *Channel {
	return &Channel{
		kind:     kind,
		name:     kind.String(),
		handler:  handler,
		logger:   logger,
		onNotify: onNotify,
		frames:   make(chan Frame, 1),
	}
}

// Kind returns the channel's kind.
func (ch *Channel) Kind() Kind { return ch.kind }

// Name returns the channel's human-readable name.
func (ch *Channel) Name() string { return ch.name }

// Connected reports whether the channel currently owns a live socket.
func (ch *Channel) Connected() bool { return ch.connected.Load() }

// Ready reports whether the channel has completed its link handshake and
// has not yet been torn down.
func (ch *Channel) Ready() bool { return ch.ready.Load() }

// InitDone reports whether the kind-specific init message has been seen.
func (ch *Channel) InitDone() bool { return ch.initDone.Load() }

// SetInitDone marks the kind-specific init message as seen.
func (ch *Channel) SetInitDone() { ch.initDone.Store(true) }

// PendingDisconnect reports whether the channel has been asked to tear
// down on the next Process tick.
func (ch *Channel) PendingDisconnect() bool { return ch.pendingDisconnect.Load() }

// RequestDisconnect marks the channel pending for teardown without
// tearing it down immediately, avoiding re-entrancy into a handler that is
// currently executing (spec.md §4.6).
func (ch *Channel) RequestDisconnect() { ch.pendingDisconnect.Store(true) }

// Attach binds a freshly handshaken connection and starts the reader
// goroutine. Called once link handshake + (optional) auth have succeeded.
func (ch *Channel) Attach(conn net.Conn) {
	ch.conn = conn
	ch.connected.Store(true)
	ch.ready.Store(true)
	go ch.readLoop()
}

// Frames returns the channel's frame-delivery channel, consumed by the
// session-level multiplexer in Process().
func (ch *Channel) Frames() <-chan Frame {
	return ch.frames
}

// HandleFrame dispatches one frame already pulled off Frames() by the
// caller (spec.md §4.3 steps 2-3): common messages below MsgBaseLast go to
// the shared handler, everything else to the kind's own Dispatch.
func (ch *Channel) HandleFrame(f Frame) error {
	if f.Err != nil {
		return f.Err
	}
	if f.Type < MsgBaseLast {
		return ch.commonHandle(f.Type, f.Payload)
	}
	return ch.handler.Dispatch(ch, f.Type, f.Payload)
}

// readLoop is the per-channel I/O goroutine: it reads exactly one frame
// (header, then payload-or-discard) at a time and hands it to Process()
// through the one-slot frames buffer, so a channel runs at most two
// frames ahead of the dispatcher: one buffered and one waiting to be
// handed over (spec.md §4.3, §5).
func (ch *Channel) readLoop() {
	defer close(ch.frames)
	for {
		var hdrBuf [wire.HeaderSize]byte
		if _, err := io.ReadFull(ch.conn, hdrBuf[:]); err != nil {
			ch.connected.Store(false)
			ch.frames <- Frame{Err: fmt.Errorf("%s: read header: %w", ch.name, err)}
			return
		}
		var hdr wire.Header
		hdr.UnmarshalBinary(hdrBuf[:])

		ch.bumpAck()

		discard := hdr.Type < MsgBaseLast && commonDiscard(hdr.Type)
		if !discard && hdr.Type >= MsgBaseLast {
			discard = ch.handler.Discard(hdr.Type)
		}

		if discard {
			if _, err := io.CopyN(io.Discard, ch.conn, int64(hdr.Size)); err != nil {
				ch.connected.Store(false)
				ch.frames <- Frame{Err: fmt.Errorf("%s: discard payload: %w", ch.name, err)}
				return
			}
			ch.frames <- Frame{Type: hdr.Type, Discarded: true}
			continue
		}

		payload := make([]byte, hdr.Size)
		if _, err := io.ReadFull(ch.conn, payload); err != nil {
			ch.connected.Store(false)
			ch.frames <- Frame{Err: fmt.Errorf("%s: read payload: %w", ch.name, err)}
			return
		}
		ch.frames <- Frame{Type: hdr.Type, Payload: payload}

		if ch.pendingDisconnect.Load() {
			return
		}
	}
}

// bumpAck implements the ack-credit discipline: count incoming headers,
// and once the server's ack window is reached, send a one-byte ack and
// reset (spec.md §4.3). A zero window suppresses acks entirely.
func (ch *Channel) bumpAck() {
	window := ch.ackWindow.Load()
	if window == 0 {
		return
	}
	n := ch.ackCount.Add(1)
	if n < window {
		return
	}
	ch.ackCount.Store(0)
	ch.SendRaw([]byte{0})
}

// acquireSend spins on the atomic send flag until it can be claimed,
// guarding the socket for the duration of one outbound packet or agent
// burst (spec.md §4.1, §5).
func (ch *Channel) acquireSend() {
	for !ch.sending.CompareAndSwap(false, true) {
		// Busy-loop: sends are short and infrequent; a spin avoids the
		// allocation and wakeup latency of a mutex for this hot path.
	}
}

func (ch *Channel) releaseSend() {
	ch.sending.Store(false)
}

// SendRaw writes a preassembled byte-framed SPICE-MSGC_ACK-style raw byte
// sequence (no mini-header) under the send lock. Used only for the
// single-byte ack credit.
func (ch *Channel) SendRaw(b []byte) error {
	ch.acquireSend()
	defer ch.releaseSend()
	return ch.writeAll(b)
}

// packetBuf is a tiny payload-building helper shared by the common
// handler's outbound replies (ack-sync, pong) and the kind handlers.
type packetBuf struct {
	b *wire.Builder
}

func (p *packetBuf) putUint32(v uint32) { p.b.PutUint32(v) }
func (p *packetBuf) putUint64(v uint64) { p.b.PutUint64(v) }

// sendSimple builds a header-prefixed packet of msgType and sends it
// under the channel's send lock in one atomic write.
func (ch *Channel) sendSimple(msgType uint16, fill func(*packetBuf)) error {
	b := wire.NewBuilder(msgType, 16)
	if fill != nil {
		fill(&packetBuf{b: b})
	}
	return ch.Send(b.Finish())
}

// Send writes a complete header-prefixed packet under the channel's send
// lock, requiring the channel to be ready.
func (ch *Channel) Send(pkt []byte) error {
	if !ch.ready.Load() {
		return fmt.Errorf("%s: send on non-ready channel", ch.name)
	}
	ch.acquireSend()
	defer ch.releaseSend()
	return ch.writeAll(pkt)
}

// WithSendLock runs fn while holding the channel's send lock, for
// multi-packet bursts that must be emitted contiguously (the agent's
// chunked writes, mouse-motion packetisation, record audio writes).
func (ch *Channel) WithSendLock(fn func() error) error {
	ch.acquireSend()
	defer ch.releaseSend()
	return fn()
}

// WriteLocked writes one packet; callers must already hold the send lock
// via WithSendLock.
func (ch *Channel) WriteLocked(pkt []byte) error {
	return ch.writeAll(pkt)
}

func (ch *Channel) writeAll(b []byte) error {
	n, err := ch.conn.Write(b)
	if err != nil {
		return fmt.Errorf("%s: write: %w", ch.name, err)
	}
	if n != len(b) {
		return fmt.Errorf("%s: short write (%d/%d)", ch.name, n, len(b))
	}
	return nil
}

// AckMotion subtracts one ack bunch (16) from the outstanding motion
// counter (spec.md §4.3's INPUTS motion-ack discipline).
func (ch *Channel) AckMotion(bunch int32) error {
	n := ch.motionOutstanding.Add(-bunch)
	if n < -bunch {
		ch.motionOutstanding.Store(0)
		return ErrMotionAckUnderflow
	}
	if n < 0 {
		ch.motionOutstanding.Store(0)
	}
	return nil
}

// AddOutstandingMotion increments the outstanding motion counter by n
// (one per emitted sub-packet).
func (ch *Channel) AddOutstandingMotion(n int32) {
	ch.motionOutstanding.Add(n)
}

// OutstandingMotion returns the current outstanding-motion counter.
func (ch *Channel) OutstandingMotion() int32 {
	return ch.motionOutstanding.Load()
}

// Disconnect performs the graceful shutdown sequence (spec.md §4.3): if
// ready, disable Nagle, send DISCONNECTING with a monotonic timestamp and
// ERR_OK, re-enable Nagle to force the flush, then close the socket.
func (ch *Channel) Disconnect() {
	if ch.ready.Load() {
		link.TuneTCP(ch.conn, true)
		b := wire.NewBuilder(MsgcDisconnecting, 16)
		b.PutUint64(uint64(time.Now().UnixMilli()))
		b.PutUint32(link.ErrOK)
		ch.Send(b.Finish())
		link.TuneTCP(ch.conn, false)
	}
	ch.ready.Store(false)
	if ch.conn != nil {
		ch.conn.Close()
	}
	ch.connected.Store(false)
}
