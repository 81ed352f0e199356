package channels

import (
	"encoding/binary"
	"testing"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/wire"
)

type fakeMainHost struct {
	sessionID       uint32
	mouseClient     bool
	agentTokens     uint32
	agentStarted    bool
	agentStopped    bool
	agentData       []byte
	agentTokenGrant uint32
	available       []channel.Kind
	autoConnected   []channel.Kind
	name            string
	uuid            [16]byte
	readyFired      int
}

func (f *fakeMainHost) SetSessionID(id uint32)       { f.sessionID = id }
func (f *fakeMainHost) SetMouseMode(clientMode bool) { f.mouseClient = clientMode }
func (f *fakeMainHost) MouseModeIsClient() bool      { return f.mouseClient }
func (f *fakeMainHost) AgentStart(tokens uint32) {
	f.agentStarted = true
	f.agentTokens = tokens
}
func (f *fakeMainHost) AgentStop(reason string)  { f.agentStopped = true }
func (f *fakeMainHost) AgentData(payload []byte) { f.agentData = append([]byte(nil), payload...) }
func (f *fakeMainHost) AgentTokenGrant(n uint32)   { f.agentTokenGrant = n }
func (f *fakeMainHost) MarkChannelAvailable(k channel.Kind) {
	f.available = append(f.available, k)
}
func (f *fakeMainHost) MaybeAutoConnect(k channel.Kind) {
	f.autoConnected = append(f.autoConnected, k)
}
func (f *fakeMainHost) SetName(name string)      { f.name = name }
func (f *fakeMainHost) SetUUID(id [16]byte)      { f.uuid = id }
func (f *fakeMainHost) FireReadyIfComplete()     { f.readyFired++ }
func (f *fakeMainHost) RequireNameAndUUID() bool { return false }

func TestMainInitRequestsMouseModeAndAttachChannels(t *testing.T) {
	host := &fakeMainHost{}
	h := NewMainHandler(host)
	ch, peer := newPipeChannel(channel.KindMain, h)
	defer ch.Disconnect()

	body := make([]byte, 20)
	binary.LittleEndian.PutUint32(body[0:4], 77) // session id
	binary.LittleEndian.PutUint32(body[4:8], 1)  // display channels hint
	binary.LittleEndian.PutUint32(body[8:12], mouseModeServer)
	binary.LittleEndian.PutUint32(body[12:16], 1) // agent connected
	binary.LittleEndian.PutUint32(body[16:20], 30)

	writeFrame(t, peer, MsgMainInit, body)
	// handleInit writes its replies on the unbuffered pipe, so the frame is
	// dispatched on its own goroutine while the test reads them.
	handled := make(chan error, 1)
	go func() { handled <- ch.HandleFrame(<-ch.Frames()) }()

	msgType, payload := readFrame(t, peer)
	if msgType != MsgcMainMouseModeRequest {
		t.Fatalf("expected mouse mode request, got %d", msgType)
	}
	if binary.LittleEndian.Uint32(payload) != mouseModeClient {
		t.Errorf("expected client mouse mode request")
	}

	msgType, _ = readFrame(t, peer)
	if msgType != MsgcMainAttachChannels {
		t.Fatalf("expected attach channels, got %d", msgType)
	}
	if err := <-handled; err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	if host.sessionID != 77 {
		t.Errorf("expected session id 77, got %d", host.sessionID)
	}
	if !host.agentStarted || host.agentTokens != 30 {
		t.Errorf("expected agent started with 30 tokens, got started=%v tokens=%d", host.agentStarted, host.agentTokens)
	}
}

func TestChannelsListMarksAvailableAndAutoConnects(t *testing.T) {
	host := &fakeMainHost{}
	h := NewMainHandler(host)
	ch, peer := newPipeChannel(channel.KindMain, h)
	defer ch.Disconnect()

	b := wire.NewBuilder(MsgMainChannelsList, 0)
	b.PutUint32(2)
	b.PutUint8(channel.WireTypeDisplay)
	b.PutUint8(0)
	b.PutUint8(channel.WireTypeInputs)
	b.PutUint8(0)
	writeRaw(t, peer, b.Finish())
	pumpOne(t, ch)

	if len(host.available) != 2 {
		t.Fatalf("expected 2 available channels, got %d", len(host.available))
	}
	if host.available[0] != channel.KindDisplay || host.available[1] != channel.KindInputs {
		t.Errorf("unexpected available channels: %v", host.available)
	}
	if len(host.autoConnected) != 2 {
		t.Errorf("expected 2 auto-connect attempts, got %d", len(host.autoConnected))
	}
}

func TestNameAndUUIDFireReady(t *testing.T) {
	host := &fakeMainHost{}
	h := NewMainHandler(host)
	ch, peer := newPipeChannel(channel.KindMain, h)
	defer ch.Disconnect()

	nameBody := wire.NewBuilder(MsgMainName, 0)
	nameBody.PutUint32(5)
	nameBody.Append([]byte("guest"))
	writeRaw(t, peer, nameBody.Finish())
	pumpOne(t, ch)

	var uuidBody [16]byte
	for i := range uuidBody {
		uuidBody[i] = byte(i)
	}
	writeFrame(t, peer, MsgMainUUID, uuidBody[:])
	pumpOne(t, ch)

	if host.name != "guest" {
		t.Errorf("name = %q", host.name)
	}
	if host.uuid != uuidBody {
		t.Errorf("uuid mismatch")
	}
	if host.readyFired != 2 {
		t.Errorf("expected FireReadyIfComplete called twice, got %d", host.readyFired)
	}
}
