package session

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/channels"
	"github.com/zbum/purespice-go/internal/spiceapi"
	"github.com/zbum/purespice-go/internal/testutil"
)

func mainInitBody(sessionID, mouseMode, agentConnected, agentTokens uint32) []byte {
	body := make([]byte, 20)
	binary.LittleEndian.PutUint32(body[0:4], sessionID)
	binary.LittleEndian.PutUint32(body[4:8], 1) // display_channels_hint, unused
	binary.LittleEndian.PutUint32(body[8:12], mouseMode)
	binary.LittleEndian.PutUint32(body[12:16], agentConnected)
	binary.LittleEndian.PutUint32(body[16:20], agentTokens)
	return body
}

func testConfig(sockPath string) spiceapi.Config {
	var cfg spiceapi.Config
	cfg.Host = sockPath
	cfg.Port = 0
	cfg.Password = "secret"
	return cfg
}

func TestConnectHandshakeAndAttachChannels(t *testing.T) {
	sockPath, srv := testutil.StartFakeServer(t, "secret")
	defer srv.Close()

	readyCh := make(chan struct{}, 1)
	cfg := testConfig(sockPath)
	cfg.Ready = func() { readyCh <- struct{}{} }

	connectDone := make(chan struct{})
	var sess *Session
	var connectErr error
	go func() {
		sess, connectErr = Connect(cfg)
		close(connectDone)
	}()

	fc := srv.Accept()

	fc.SendFrame(channels.MsgMainInit, mainInitBody(42, 2 /* mouseModeClient */, 0, 0))

	<-connectDone
	require.NoError(t, connectErr)

	status, err := sess.Process(time.Second)
	require.NoError(t, err)
	require.Equal(t, spiceapi.StatusRun, status)

	msgType, _ := fc.ReadFrame()
	require.Equal(t, channels.MsgcMainAttachChannels, msgType)

	nameBody := make([]byte, 4+len("test-server"))
	binary.LittleEndian.PutUint32(nameBody[0:4], uint32(len("test-server")))
	copy(nameBody[4:], "test-server")
	fc.SendFrame(channels.MsgMainName, nameBody)
	_, err = sess.Process(time.Second)
	require.NoError(t, err)

	uuidBody := make([]byte, 16)
	uuidBody[0] = 0xAB
	fc.SendFrame(channels.MsgMainUUID, uuidBody)
	_, err = sess.Process(time.Second)
	require.NoError(t, err)

	select {
	case <-readyCh:
	case <-time.After(time.Second):
		t.Fatal("ready callback never fired")
	}

	info, ok := sess.GetServerInfo()
	require.True(t, ok, "expected server info once NAME and UUID are known")
	require.Equal(t, "test-server", info.Name)
	require.Equal(t, byte(0xAB), info.UUID[0])
}

func TestHasChannelAndDisconnectChannelIdempotence(t *testing.T) {
	sockPath, srv := testutil.StartFakeServer(t, "secret")
	defer srv.Close()

	cfg := testConfig(sockPath)
	connectDone := make(chan struct{})
	var sess *Session
	var connectErr error
	go func() {
		sess, connectErr = Connect(cfg)
		close(connectDone)
	}()
	fc := srv.Accept()
	fc.SendFrame(channels.MsgMainInit, mainInitBody(1, 2, 0, 0))
	<-connectDone
	if connectErr != nil {
		t.Fatalf("Connect: %v", connectErr)
	}
	if _, err := sess.Process(time.Second); err != nil {
		t.Fatalf("Process: %v", err)
	}
	fc.ReadFrame() // ATTACH_CHANNELS

	if sess.HasChannel(channel.KindDisplay) {
		t.Fatal("display should not be marked available before CHANNELS_LIST")
	}

	// DisconnectChannel on a never-connected kind must be a harmless no-op.
	sess.DisconnectChannel(channel.KindDisplay)
	sess.DisconnectChannel(channel.KindDisplay)

	if sess.ChannelConnected(channel.KindDisplay) {
		t.Fatal("display should not report connected")
	}
}
