package channels

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/wire"
)

// netPipe returns a connected in-memory net.Conn pair.
func netPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

type nopLog struct{}

func (nopLog) Debugf(string, ...interface{}) {}
func (nopLog) Infof(string, ...interface{})  {}
func (nopLog) Warnf(string, ...interface{})  {}
func (nopLog) Errorf(string, ...interface{}) {}

func newPipeChannel(kind channel.Kind, h channel.Handler) (*channel.Channel, net.Conn) {
	a, b := netPipe()
	ch := channel.New(kind, h, nopLog{}, nil)
	ch.Attach(a)
	return ch, b
}

// writeFrame writes one header-prefixed packet to peer, simulating a
// server message arriving on the channel's socket.
func writeFrame(t *testing.T, peer net.Conn, msgType uint16, payload []byte) {
	t.Helper()
	b := wire.NewBuilder(msgType, len(payload))
	b.Append(payload)
	writeRaw(t, peer, b.Finish())
}

func writeRaw(t *testing.T, peer net.Conn, pkt []byte) {
	t.Helper()
	if _, err := peer.Write(pkt); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readFrame reads one header-prefixed packet off peer, simulating the
// server's view of a client-bound message.
func readFrame(t *testing.T, peer net.Conn) (uint16, []byte) {
	t.Helper()
	var hdrBuf [wire.HeaderSize]byte
	if _, err := io.ReadFull(peer, hdrBuf[:]); err != nil {
		t.Fatalf("read header: %v", err)
	}
	var hdr wire.Header
	hdr.UnmarshalBinary(hdrBuf[:])
	payload := make([]byte, hdr.Size)
	if hdr.Size > 0 {
		if _, err := io.ReadFull(peer, payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
	}
	return hdr.Type, payload
}

// pumpOne pulls exactly one frame off ch and dispatches it, the way the
// session-level multiplexer's Process() does for a single channel.
func pumpOne(t *testing.T, ch *channel.Channel) {
	t.Helper()
	select {
	case f := <-ch.Frames():
		if err := ch.HandleFrame(f); err != nil {
			t.Fatalf("handle frame: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
