// Package session owns the live connection: the per-kind channel table,
// the guest-agent sub-protocol, and the select-based multiplexer that
// drives them all from one Process call (spec.md §4.6), grounded in the
// teacher's internal/core connection/dispatcher pairing generalized from
// one socket to six independent channel sockets sharing one agent.
package session

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zbum/purespice-go/internal/agent"
	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/channels"
	"github.com/zbum/purespice-go/internal/link"
	"github.com/zbum/purespice-go/internal/logging"
	"github.com/zbum/purespice-go/internal/spiceapi"
	"github.com/zbum/purespice-go/internal/wire"
)

// Session is one live connection to a SPICE server: up to six channels,
// the guest-agent tunnel riding MAIN, and the host-visible outbound API
// (spec.md §4.6).
type Session struct {
	mu sync.Mutex

	host     string
	port     int
	password string

	readyCb func()

	channelOpt  [channel.NumKinds]spiceapi.ChannelOption
	available   [channel.NumKinds]bool
	channels    [channel.NumKinds]*channel.Channel
	log         logging.Logger

	mainHandler     *channels.MainHandler
	inputsHandler   *channels.InputsHandler
	playbackHandler *channels.PlaybackHandler
	recordHandler   *channels.RecordHandler
	displayHandler  *channels.DisplayHandler
	cursorHandler   *channels.CursorHandler

	agent *agent.Agent

	sessionID       uint32
	mouseClientMode bool
	name            string
	nameSet         bool
	uuid            [16]byte
	uuidSet         bool
	readyFired      bool
}

// Connect validates cfg, dials and handshakes the MAIN channel, and
// returns a Session driving it. Other channels are attached lazily,
// either on the server's CHANNELS_LIST auto-connect hint or via a later
// ConnectChannel call (spec.md §4.6 purespice_connect).
func Connect(cfg spiceapi.Config) (*Session, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	s := &Session{
		host:     cfg.Host,
		port:     cfg.Port,
		password: cfg.Password,
		readyCb:  cfg.Ready,
		log:      logging.Current(),
	}
	s.channelOpt[channel.KindInputs] = cfg.Inputs
	s.channelOpt[channel.KindPlayback] = cfg.Playback.ChannelOption
	s.channelOpt[channel.KindRecord] = cfg.Record.ChannelOption
	s.channelOpt[channel.KindDisplay] = cfg.Display.ChannelOption
	s.channelOpt[channel.KindCursor] = cfg.Cursor.ChannelOption

	s.agent = agent.New(cfg.Clipboard.ClipboardCallbacks)
	s.mainHandler = channels.NewMainHandler(s)
	s.inputsHandler = channels.NewInputsHandler()
	s.playbackHandler = channels.NewPlaybackHandler(cfg.Playback.PlaybackCallbacks)
	s.recordHandler = channels.NewRecordHandler(cfg.Record.RecordCallbacks)
	s.displayHandler = channels.NewDisplayHandler(cfg.Display.DisplayCallbacks)
	s.cursorHandler = channels.NewCursorHandler(cfg.Cursor.CursorCallbacks)

	if err := s.connectChannelLocked(channel.KindMain); err != nil {
		return nil, err
	}
	return s, nil
}

// connectionID returns the id presented at a channel's link handshake
// (spec.md §4.2): 0 for MAIN, and the session id from MAIN_INIT for every
// other channel.
func connectionID(kind channel.Kind, sessionID uint32) uint32 {
	if kind == channel.KindMain {
		return 0
	}
	return sessionID
}

func (s *Session) handlerFor(kind channel.Kind) channel.Handler {
	switch kind {
	case channel.KindMain:
		return s.mainHandler
	case channel.KindInputs:
		return s.inputsHandler
	case channel.KindPlayback:
		return s.playbackHandler
	case channel.KindRecord:
		return s.recordHandler
	case channel.KindDisplay:
		return s.displayHandler
	case channel.KindCursor:
		return s.cursorHandler
	default:
		return nil
	}
}

// buildCaps returns the (common, channel) capability sets this core
// advertises for kind (spec.md §9 Design Note: "the only capabilities
// this core sets are auth-selection/spice-auth/mini-header in common,
// plus the few per-channel ones each handler actually exercises").
func (s *Session) buildCaps(kind channel.Kind) (*wire.CapSet, *wire.CapSet) {
	common := wire.NewCapSet()
	common.Set(link.CommonCapAuthSelection)
	common.Set(link.CommonCapAuthSpice)
	common.Set(link.CommonCapMiniHeader)

	channelCaps := wire.NewCapSet()
	switch kind {
	case channel.KindMain:
		channelCaps.Set(link.MainCapAgentConnectedTokens)
		channelCaps.Set(link.MainCapNameAndUUID)
	case channel.KindDisplay:
		channelCaps.Set(link.DisplayCapPreferredCompression)
	case channel.KindPlayback:
		if s.playbackHandler != nil && s.hasVolumeCallback(channel.KindPlayback) {
			channelCaps.Set(link.PlaybackCapVolume)
		}
	case channel.KindRecord:
		if s.recordHandler != nil && s.hasVolumeCallback(channel.KindRecord) {
			channelCaps.Set(link.RecordCapVolume)
		}
	}
	return common, channelCaps
}

func (s *Session) hasVolumeCallback(kind channel.Kind) bool {
	// Handlers hold the callbacks privately; the capability only affects
	// what the server sends, and both handlers silently ignore a
	// PLAYBACK_VOLUME/RECORD_VOLUME they have no callback for, so it is
	// always safe (if slightly wasteful) to advertise it. Kept narrow per
	// kind in case a future handler wants to gate this more precisely.
	return true
}

// connectChannelLocked dials, handshakes, and attaches the channel for
// kind, installing it into the channel table. Callers must hold s.mu,
// except during the initial Connect call before any goroutine can
// observe s.
func (s *Session) connectChannelLocked(kind channel.Kind) error {
	if s.channels[kind] != nil && s.channels[kind].Connected() {
		return nil
	}
	handler := s.handlerFor(kind)
	if handler == nil {
		return fmt.Errorf("session: no handler for channel kind %s", kind)
	}
	common, channelCaps := s.buildCaps(kind)

	conn, err := dialChannel(s.host, s.port, connectionID(kind, s.sessionID), kind, s.password, common, channelCaps)
	if err != nil {
		return err
	}

	ch := channel.New(kind, handler, s.log, nil)
	ch.Attach(conn)
	s.channels[kind] = ch

	switch kind {
	case channel.KindInputs:
		s.inputsHandler.Bind(ch)
	case channel.KindRecord:
		s.recordHandler.Bind(ch)
	}

	if pkt := handler.ConnectPacket(ch); pkt != nil {
		if err := ch.Send(pkt); err != nil {
			ch.Disconnect()
			s.channels[kind] = nil
			return fmt.Errorf("session: %s: connect packet: %w", kind, err)
		}
	}
	return nil
}

// ConnectChannel manually attaches kind, beyond whatever the server's
// CHANNELS_LIST auto-connect hints already triggered (spec.md §4.6).
func (s *Session) ConnectChannel(kind channel.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectChannelLocked(kind)
}

// DisconnectChannel tears down kind's channel if connected; a no-op
// otherwise (idempotent, spec.md §8).
func (s *Session) DisconnectChannel(kind channel.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[kind]
	if ch == nil {
		return
	}
	ch.Disconnect()
	s.channels[kind] = nil
}

// HasChannel reports whether the server has ever advertised kind in its
// CHANNELS_LIST (spec.md §8).
func (s *Session) HasChannel(kind channel.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available[kind]
}

// ChannelConnected reports whether kind currently owns a live socket.
func (s *Session) ChannelConnected(kind channel.Kind) bool {
	s.mu.Lock()
	ch := s.channels[kind]
	s.mu.Unlock()
	return ch != nil && ch.Connected()
}

// GetServerInfo returns the server's advertised name/UUID, once both
// NAME and UUID have arrived (spec.md §6).
func (s *Session) GetServerInfo() (spiceapi.ServerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.nameSet || !s.uuidSet {
		return spiceapi.ServerInfo{}, false
	}
	return spiceapi.ServerInfo{Name: s.name, UUID: s.uuid}, true
}

// Disconnect tears down every channel, MAIN last, and stops the agent
// (spec.md §4.6 purespice_disconnect).
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := channel.NumKinds - 1; k >= 0; k-- {
		if k == channel.KindMain {
			continue
		}
		if ch := s.channels[k]; ch != nil {
			ch.Disconnect()
			s.channels[k] = nil
		}
	}
	if ch := s.channels[channel.KindMain]; ch != nil {
		ch.Disconnect()
		s.channels[channel.KindMain] = nil
	}
	s.agent.Stop()
}

// Process services exactly one round of work across every connected
// channel and the agent's outbound queue, blocking up to timeout when
// there is nothing ready (spec.md §4.6, §7): deferred disconnects are
// honored first, then at most one ready frame, from one channel, is
// dispatched, then the agent drains as many queued chunks as it has
// tokens for.
func (s *Session) Process(timeout time.Duration) (spiceapi.Status, error) {
	s.mu.Lock()
	for k := range s.channels {
		ch := s.channels[k]
		if ch != nil && ch.PendingDisconnect() && !ch.Connected() {
			s.channels[k] = nil
		}
	}

	cases := make([]reflectCase, 0, channel.NumKinds)
	for k := range s.channels {
		ch := s.channels[k]
		if ch != nil {
			cases = append(cases, reflectCase{kind: channel.Kind(k), ch: ch})
		}
	}
	s.mu.Unlock()

	if len(cases) == 0 {
		return spiceapi.StatusShutdown, nil
	}

	status, err := s.pollOnce(cases, timeout)
	s.drainAgent()
	return status, err
}

// reflectCase pairs a channel with its kind for the multiplexer.
type reflectCase struct {
	kind channel.Kind
	ch   *channel.Channel
}

// pollOnce waits for the first channel with a ready frame (or timeout),
// handles it, and returns the resulting status. The channel set is only
// known at runtime (channels attach/detach over the session's lifetime),
// so this uses reflect.Select rather than a static select statement.
// When several channels have a frame ready, reflect.Select picks one of
// them pseudo-randomly; no fixed round-robin order is kept.
func (s *Session) pollOnce(cases []reflectCase, timeout time.Duration) (spiceapi.Status, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	selCases := make([]reflect.SelectCase, 0, len(cases)+1)
	for _, c := range cases {
		selCases = append(selCases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(c.ch.Frames()),
		})
	}
	selCases = append(selCases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(timer.C),
	})

	chosen, recv, recvOK := reflect.Select(selCases)
	if chosen == len(cases) {
		return spiceapi.StatusRun, nil
	}
	c := cases[chosen]
	if !recvOK {
		s.disconnectChannelAsync(c.kind)
		return spiceapi.StatusErrRead, fmt.Errorf("session: %s: channel closed", c.kind)
	}
	return s.handleFrame(c, recv.Interface().(channel.Frame))
}

func (s *Session) handleFrame(c reflectCase, f channel.Frame) (spiceapi.Status, error) {
	if f.Err != nil {
		s.disconnectChannelAsync(c.kind)
		return spiceapi.StatusErrRead, fmt.Errorf("session: %s: %w", c.kind, f.Err)
	}
	if err := c.ch.HandleFrame(f); err != nil {
		return spiceapi.StatusErrAck, fmt.Errorf("session: %s: %w", c.kind, err)
	}
	return spiceapi.StatusRun, nil
}

func (s *Session) disconnectChannelAsync(kind channel.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch := s.channels[kind]; ch != nil {
		ch.Disconnect()
		s.channels[kind] = nil
	}
}

// drainAgent pushes as many queued agent carriers as tokens allow onto
// MAIN's AGENT_DATA message, under MAIN's send lock so a burst of
// carriers goes out contiguously (spec.md §4.5, §5).
func (s *Session) drainAgent() {
	s.mu.Lock()
	mainCh := s.channels[channel.KindMain]
	s.mu.Unlock()
	if mainCh == nil {
		return
	}
	for {
		chunk, ok := s.agent.NextChunk()
		if !ok {
			return
		}
		b := wire.NewBuilder(channels.MsgcMainAgentData, len(chunk))
		b.Append(chunk)
		if err := mainCh.Send(b.Finish()); err != nil {
			s.log.Warnf("session: agent data send: %v", err)
			return
		}
	}
}

// --- channels.MainHost ---

func (s *Session) SetSessionID(id uint32) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func (s *Session) SetMouseMode(clientMode bool) {
	s.mu.Lock()
	s.mouseClientMode = clientMode
	s.mu.Unlock()
}

func (s *Session) MouseModeIsClient() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mouseClientMode
}

func (s *Session) AgentStart(tokens uint32) {
	s.agent.Start(tokens)
	s.mu.Lock()
	mainCh := s.channels[channel.KindMain]
	s.mu.Unlock()
	if mainCh == nil {
		return
	}
	b := wire.NewBuilder(channels.MsgcMainAgentStart, 4)
	b.Append(agent.StartBody(tokens))
	if err := mainCh.Send(b.Finish()); err != nil {
		s.log.Warnf("session: agent start send: %v", err)
	}
}

func (s *Session) AgentStop(reason string) {
	s.log.Debugf("session: agent disconnected: %s", reason)
	s.agent.Stop()
}

func (s *Session) AgentData(payload []byte) {
	if err := s.agent.HandleCarrier(payload); err != nil {
		s.log.Warnf("session: agent carrier: %v", err)
	}
}

func (s *Session) AgentTokenGrant(n uint32) {
	s.agent.GrantTokens(n)
}

func (s *Session) MarkChannelAvailable(kind channel.Kind) {
	s.mu.Lock()
	s.available[kind] = true
	s.mu.Unlock()
}

func (s *Session) MaybeAutoConnect(kind channel.Kind) {
	s.mu.Lock()
	opt := s.channelOpt[kind]
	s.mu.Unlock()
	if kind == channel.KindMain || !opt.Enable || !opt.AutoConnect {
		return
	}
	if err := s.ConnectChannel(kind); err != nil {
		s.log.Warnf("session: auto-connect %s: %v", kind, err)
	}
}

func (s *Session) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.nameSet = true
	s.mu.Unlock()
}

func (s *Session) SetUUID(id [16]byte) {
	s.mu.Lock()
	s.uuid = id
	s.uuidSet = true
	s.mu.Unlock()
	s.log.Debugf("session: server uuid=%s", uuid.UUID(id))
}

// RequireNameAndUUID reports whether this core waits for NAME and UUID
// before firing ready; both were negotiated via MainCapNameAndUUID so a
// compliant server always sends them (spec.md §4.4).
func (s *Session) RequireNameAndUUID() bool { return true }

func (s *Session) FireReadyIfComplete() {
	s.mu.Lock()
	if s.readyFired || !s.nameSet || !s.uuidSet {
		s.mu.Unlock()
		return
	}
	s.readyFired = true
	cb := s.readyCb
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// --- outbound API (spec.md §6) ---

func (s *Session) KeyDown(scancode uint32) error { return s.inputsHandler.KeyDown(scancode) }
func (s *Session) KeyUp(scancode uint32) error   { return s.inputsHandler.KeyUp(scancode) }
func (s *Session) KeyModifiers(modifiers uint16) error {
	return s.inputsHandler.KeyModifiers(modifiers)
}

func (s *Session) MousePosition(x, y int32, buttonState uint32, displayID uint8) error {
	return s.inputsHandler.MousePosition(x, y, buttonState, displayID)
}

func (s *Session) MouseMotion(dx, dy int32, buttonState uint32) error {
	return s.inputsHandler.MouseMotion(dx, dy, buttonState)
}

func (s *Session) MousePress(button spiceapi.MouseButton, buttonState uint32) error {
	return s.inputsHandler.MousePress(button, buttonState)
}

func (s *Session) MouseRelease(button spiceapi.MouseButton, buttonState uint32) error {
	return s.inputsHandler.MouseRelease(button, buttonState)
}

func (s *Session) WriteAudio(samples []byte) error { return s.recordHandler.WriteAudio(samples) }

func (s *Session) ClipboardGrab(types []spiceapi.ClipboardType) error {
	return s.agent.ClipboardGrab(types)
}

func (s *Session) ClipboardRelease() error { return s.agent.ClipboardRelease() }

func (s *Session) ClipboardRequest(t spiceapi.ClipboardType) error {
	return s.agent.ClipboardRequest(t)
}

func (s *Session) ClipboardDataStart(t spiceapi.ClipboardType, dataSize uint32) error {
	return s.agent.ClipboardDataStart(t, dataSize)
}

func (s *Session) ClipboardData(data []byte) error { return s.agent.ClipboardData(data) }
