// Package purespice is a pure-Go SPICE client engine: connect, pump
// Process in a loop, and receive display/cursor/clipboard/audio events
// through callbacks while driving keyboard, mouse, and clipboard back to
// the server (spec.md §6, the flat public API surface this repository
// exists to provide).
package purespice

import (
	"time"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/logging"
	"github.com/zbum/purespice-go/internal/session"
	"github.com/zbum/purespice-go/internal/spiceapi"
)

// Type aliases re-exporting the engine's public-shaped vocabulary so
// callers only ever import this one package.
type (
	Config             = spiceapi.Config
	ChannelOption      = spiceapi.ChannelOption
	ClipboardCallbacks = spiceapi.ClipboardCallbacks
	PlaybackCallbacks  = spiceapi.PlaybackCallbacks
	RecordCallbacks    = spiceapi.RecordCallbacks
	DisplayCallbacks   = spiceapi.DisplayCallbacks
	CursorCallbacks    = spiceapi.CursorCallbacks
	ClipboardType      = spiceapi.ClipboardType
	SurfaceFormat      = spiceapi.SurfaceFormat
	AudioFormat        = spiceapi.AudioFormat
	MouseButton        = spiceapi.MouseButton
	ServerInfo         = spiceapi.ServerInfo
	Status             = spiceapi.Status
	LogLevel           = spiceapi.LogLevel
	LogFunc            = spiceapi.LogFunc
	Kind               = channel.Kind
)

// Clipboard type constants.
const (
	ClipboardNone = spiceapi.ClipboardNone
	ClipboardText = spiceapi.ClipboardText
	ClipboardPNG  = spiceapi.ClipboardPNG
	ClipboardBMP  = spiceapi.ClipboardBMP
	ClipboardTIFF = spiceapi.ClipboardTIFF
	ClipboardJPEG = spiceapi.ClipboardJPEG
)

// Mouse button constants.
const (
	MouseButtonLeft   = spiceapi.MouseButtonLeft
	MouseButtonMiddle = spiceapi.MouseButtonMiddle
	MouseButtonRight  = spiceapi.MouseButtonRight
	MouseButtonSide   = spiceapi.MouseButtonSide
	MouseButtonExtra  = spiceapi.MouseButtonExtra
)

// Process status constants.
const (
	StatusRun      = spiceapi.StatusRun
	StatusShutdown = spiceapi.StatusShutdown
	StatusErrPoll  = spiceapi.StatusErrPoll
	StatusErrRead  = spiceapi.StatusErrRead
	StatusErrAck   = spiceapi.StatusErrAck
)

// Channel kind constants.
const (
	KindMain     = channel.KindMain
	KindInputs   = channel.KindInputs
	KindPlayback = channel.KindPlayback
	KindRecord   = channel.KindRecord
	KindDisplay  = channel.KindDisplay
	KindCursor   = channel.KindCursor
)

// Log level constants.
const (
	LogDebug = spiceapi.LogDebug
	LogInfo  = spiceapi.LogInfo
	LogWarn  = spiceapi.LogWarn
	LogError = spiceapi.LogError
)

// Init installs fn as the process-wide log sink, or restores the default
// logger when fn is nil. Idempotent (spec.md §4.6 purespice_init).
func Init(fn LogFunc) {
	logging.Init(fn)
}

// Session is one live connection to a SPICE server.
type Session struct {
	s *session.Session
}

// Connect validates cfg, dials, and handshakes the MAIN channel
// (spec.md §4.6 purespice_connect). Other channels attach lazily via the
// server's auto-connect hints or a later ConnectChannel call.
func Connect(cfg Config) (*Session, error) {
	s, err := session.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Session{s: s}, nil
}

// Process services one round of channel and agent traffic, blocking up
// to timeout when there is nothing ready (spec.md §4.6 purespice_process).
func (sess *Session) Process(timeout time.Duration) (Status, error) {
	return sess.s.Process(timeout)
}

// Disconnect tears down every channel and the guest-agent tunnel
// (spec.md §4.6 purespice_disconnect).
func (sess *Session) Disconnect() { sess.s.Disconnect() }

// HasChannel reports whether the server has ever advertised kind.
func (sess *Session) HasChannel(kind Kind) bool { return sess.s.HasChannel(kind) }

// ChannelConnected reports whether kind currently owns a live socket.
func (sess *Session) ChannelConnected(kind Kind) bool { return sess.s.ChannelConnected(kind) }

// ConnectChannel manually attaches kind.
func (sess *Session) ConnectChannel(kind Kind) error { return sess.s.ConnectChannel(kind) }

// DisconnectChannel tears kind's channel down immediately; the teardown is
// not deferred to the next Process.
func (sess *Session) DisconnectChannel(kind Kind) { sess.s.DisconnectChannel(kind) }

// GetServerInfo returns the server's advertised name/UUID, once known.
func (sess *Session) GetServerInfo() (ServerInfo, bool) { return sess.s.GetServerInfo() }

// KeyDown sends a scancode key-press on the INPUTS channel.
func (sess *Session) KeyDown(scancode uint32) error { return sess.s.KeyDown(scancode) }

// KeyUp sends a scancode key-release on the INPUTS channel.
func (sess *Session) KeyUp(scancode uint32) error { return sess.s.KeyUp(scancode) }

// KeyModifiers pushes the client's lock-key state.
func (sess *Session) KeyModifiers(modifiers uint16) error { return sess.s.KeyModifiers(modifiers) }

// MousePosition sends an absolute-mode mouse position update.
func (sess *Session) MousePosition(x, y int32, buttonState uint32, displayID uint8) error {
	return sess.s.MousePosition(x, y, buttonState, displayID)
}

// MouseMotion sends a relative-mode mouse motion, packetised per
// spec.md §4.3/§8.
func (sess *Session) MouseMotion(dx, dy int32, buttonState uint32) error {
	return sess.s.MouseMotion(dx, dy, buttonState)
}

// MousePress sends a button-press event.
func (sess *Session) MousePress(button MouseButton, buttonState uint32) error {
	return sess.s.MousePress(button, buttonState)
}

// MouseRelease sends a button-release event.
func (sess *Session) MouseRelease(button MouseButton, buttonState uint32) error {
	return sess.s.MouseRelease(button, buttonState)
}

// WriteAudio sends one raw S16 sample buffer on the RECORD channel.
func (sess *Session) WriteAudio(samples []byte) error { return sess.s.WriteAudio(samples) }

// ClipboardGrab claims clipboard ownership and advertises types.
func (sess *Session) ClipboardGrab(types []ClipboardType) error {
	return sess.s.ClipboardGrab(types)
}

// ClipboardRelease releases the client's clipboard ownership.
func (sess *Session) ClipboardRelease() error { return sess.s.ClipboardRelease() }

// ClipboardRequest asks the server for the currently grabbed type's data.
func (sess *Session) ClipboardRequest(t ClipboardType) error { return sess.s.ClipboardRequest(t) }

// ClipboardDataStart begins a streamed outbound clipboard transmission.
func (sess *Session) ClipboardDataStart(t ClipboardType, dataSize uint32) error {
	return sess.s.ClipboardDataStart(t, dataSize)
}

// ClipboardData appends one chunk of a streamed clipboard transmission.
func (sess *Session) ClipboardData(data []byte) error { return sess.s.ClipboardData(data) }
