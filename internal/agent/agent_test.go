package agent

import (
	"encoding/binary"
	"testing"

	"github.com/zbum/purespice-go/internal/spiceapi"
)

func buildCarrier(msgType uint32, body []byte) []byte {
	buf := make([]byte, carrierHeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], Protocol)
	binary.LittleEndian.PutUint32(buf[4:8], msgType)
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(body)))
	copy(buf[carrierHeaderSize:], body)
	return buf
}

func decodeAnnounce(t *testing.T, chunk []byte) (request, caps uint32) {
	t.Helper()
	if len(chunk) < carrierHeaderSize+8 {
		t.Fatalf("announce chunk too short: %d", len(chunk))
	}
	request = binary.LittleEndian.Uint32(chunk[16:20])
	caps = binary.LittleEndian.Uint32(chunk[20:24])
	return
}

func TestAgentStartQueuesOwnCapabilityAnnouncement(t *testing.T) {
	a := New(spiceapi.ClipboardCallbacks{})
	a.Start(10)

	chunk, ok := a.NextChunk()
	if !ok {
		t.Fatal("expected a queued chunk after Start")
	}
	msgType := binary.LittleEndian.Uint32(chunk[4:8])
	if msgType != MsgAnnounceCapabilities {
		t.Fatalf("msgType = %d, want ANNOUNCE_CAPABILITIES", msgType)
	}
	request, caps := decodeAnnounce(t, chunk)
	if request != 1 {
		t.Errorf("request = %d, want 1", request)
	}
	if caps&CapClipboardByDemand == 0 || caps&CapClipboardSelection == 0 {
		t.Errorf("caps = %#x, missing expected bits", caps)
	}
}

func TestCapabilityHandshakeRepliesWhenRequested(t *testing.T) {
	a := New(spiceapi.ClipboardCallbacks{})
	a.Start(10)
	a.NextChunk() // drain the client's own initial announcement

	serverBody := announceCapabilitiesBody(1, CapClipboardByDemand|CapClipboardSelection)
	if err := a.HandleCarrier(buildCarrier(MsgAnnounceCapabilities, serverBody)); err != nil {
		t.Fatalf("HandleCarrier: %v", err)
	}
	if !a.ClipboardByDemand() || !a.ClipboardSelection() {
		t.Error("expected both capability flags recorded")
	}

	chunk, ok := a.NextChunk()
	if !ok {
		t.Fatal("expected a reply chunk queued")
	}
	request, _ := decodeAnnounce(t, chunk)
	if request != 0 {
		t.Errorf("reply request flag = %d, want 0", request)
	}
}

func TestChunkedClipboardReassembly(t *testing.T) {
	var gotType spiceapi.ClipboardType
	var gotData []byte
	cb := spiceapi.ClipboardCallbacks{
		Data: func(t spiceapi.ClipboardType, data []byte) {
			gotType = t
			gotData = append([]byte(nil), data...)
		},
	}
	a := New(cb)

	const dataLen = 2496
	full := make([]byte, 4+dataLen)
	binary.LittleEndian.PutUint32(full[0:4], clipWireText)
	for i := 0; i < dataLen; i++ {
		full[4+i] = byte(i)
	}

	room := MaxCarrierBytes - carrierHeaderSize
	first := full[:room]
	rest := full[room:]

	carrier1 := make([]byte, carrierHeaderSize+len(first))
	binary.LittleEndian.PutUint32(carrier1[0:4], Protocol)
	binary.LittleEndian.PutUint32(carrier1[4:8], MsgClipboard)
	binary.LittleEndian.PutUint32(carrier1[8:12], 0)
	binary.LittleEndian.PutUint32(carrier1[12:16], uint32(len(full)))
	copy(carrier1[carrierHeaderSize:], first)

	if err := a.HandleCarrier(carrier1); err != nil {
		t.Fatalf("carrier1: %v", err)
	}
	if gotData != nil {
		t.Fatal("callback fired before reassembly complete")
	}
	if err := a.HandleCarrier(rest); err != nil {
		t.Fatalf("carrier2: %v", err)
	}

	if gotType != spiceapi.ClipboardText {
		t.Errorf("type = %v, want Text", gotType)
	}
	if len(gotData) != dataLen {
		t.Fatalf("data len = %d, want %d", len(gotData), dataLen)
	}
	for i := 0; i < dataLen; i++ {
		if gotData[i] != byte(i) {
			t.Fatalf("data[%d] = %d, want %d", i, gotData[i], byte(i))
		}
	}
}

func TestOutboundQueueMonotonicallyDecreasesWithTokens(t *testing.T) {
	a := New(spiceapi.ClipboardCallbacks{})
	a.Start(0) // no tokens yet: queue fills but cannot drain

	if err := a.ClipboardGrab([]spiceapi.ClipboardType{spiceapi.ClipboardText}); err != nil {
		t.Fatal(err)
	}
	if err := a.ClipboardRequest(spiceapi.ClipboardText); err == nil {
		t.Error("expected error requesting without a server grab")
	}

	before := a.QueueLen()
	if before == 0 {
		t.Fatal("expected queued messages")
	}
	if _, ok := a.NextChunk(); ok {
		t.Fatal("expected no chunk to drain without tokens")
	}
	if a.QueueLen() != before {
		t.Fatalf("queue length changed without a token: %d -> %d", before, a.QueueLen())
	}

	a.GrantTokens(uint32(before))
	for a.QueueLen() > 0 {
		prev := a.QueueLen()
		if _, ok := a.NextChunk(); !ok {
			t.Fatal("expected chunk while tokens remain")
		}
		if a.QueueLen() >= prev {
			t.Fatalf("queue length did not decrease: %d -> %d", prev, a.QueueLen())
		}
	}
}

func TestClipboardGrabRetainsOnlyFirstType(t *testing.T) {
	var got spiceapi.ClipboardType
	cb := spiceapi.ClipboardCallbacks{Notice: func(t spiceapi.ClipboardType) { got = t }}
	a := New(cb)
	a.Start(10)
	a.NextChunk() // drain initial announce

	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], clipWirePNG)
	binary.LittleEndian.PutUint32(body[4:8], clipWireText)
	if err := a.HandleCarrier(buildCarrier(MsgClipboardGrab, body)); err != nil {
		t.Fatal(err)
	}
	if got != spiceapi.ClipboardPNG {
		t.Errorf("grabbed type = %v, want PNG (first entry only)", got)
	}
}

func TestClipboardReleaseNoOpWithoutClientGrab(t *testing.T) {
	a := New(spiceapi.ClipboardCallbacks{})
	a.Start(10)
	a.NextChunk() // drain initial announce

	before := a.QueueLen()
	if err := a.ClipboardRelease(); err != nil {
		t.Fatal(err)
	}
	if a.QueueLen() != before {
		t.Error("expected release to be a no-op without a client grab")
	}
}
