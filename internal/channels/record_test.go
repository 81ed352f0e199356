package channels

import (
	"encoding/binary"
	"testing"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/spiceapi"
)

func TestRecordConnectPacketRequestsRawMode(t *testing.T) {
	h := NewRecordHandler(spiceapi.RecordCallbacks{})
	ch, _ := newPipeChannel(channel.KindRecord, h)
	h.Bind(ch)
	defer ch.Disconnect()

	pkt := h.ConnectPacket(ch)
	msgType := binary.LittleEndian.Uint16(pkt[0:2])
	if msgType != MsgcRecordModeRequest {
		t.Fatalf("connect packet type = %d, want %d", msgType, MsgcRecordModeRequest)
	}
	mode := binary.LittleEndian.Uint16(pkt[10:12])
	if mode != recordModeRaw {
		t.Errorf("mode = %d, want raw", mode)
	}
}

func TestWriteAudioFramesWithTimestamp(t *testing.T) {
	h := NewRecordHandler(spiceapi.RecordCallbacks{})
	ch, peer := newPipeChannel(channel.KindRecord, h)
	h.Bind(ch)
	defer ch.Disconnect()

	samples := []byte{1, 2, 3, 4, 5, 6}
	go h.WriteAudio(samples)

	msgType, payload := readFrame(t, peer)
	if msgType != MsgcRecordData {
		t.Fatalf("msgType = %d", msgType)
	}
	if len(payload) != 4+len(samples) {
		t.Fatalf("payload len = %d", len(payload))
	}
	if string(payload[4:]) != string(samples) {
		t.Errorf("payload data mismatch")
	}
}

func TestRecordStartRejectsNonS16(t *testing.T) {
	h := NewRecordHandler(spiceapi.RecordCallbacks{})
	ch, peer := newPipeChannel(channel.KindRecord, h)
	h.Bind(ch)
	defer ch.Disconnect()

	body := make([]byte, 8)
	binary.LittleEndian.PutUint16(body[2:4], 7)
	writeFrame(t, peer, MsgRecordStart, body)

	f := <-ch.Frames()
	if err := ch.HandleFrame(f); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
