// Package testutil provides an in-process fake SPICE server used by
// internal/session's integration tests: a Unix-socket listener that
// performs the real link handshake (and RSA ticket auth) against a
// freshly generated key, then lets the test script exact MAIN_INIT-style
// traffic by hand. Uses an accept-loop-plus-per-connection-goroutine
// pattern, scaled down from a long-lived TCP listener to a throwaway
// per-test Unix socket.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SPICE 2.2 ticket auth mandates SHA-1/MGF1-SHA1.
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/zbum/purespice-go/internal/wire"
)

// FakeChannelServer is one accepted, link-handshaken connection a test
// can now script MAIN (or any other channel kind's) traffic over.
type FakeChannelServer struct {
	t    *testing.T
	Conn net.Conn
}

// FakeServer listens on a throwaway Unix socket and hands each accepted
// connection through the SPICE link handshake before returning it to the
// test.
type FakeServer struct {
	t        *testing.T
	listener net.Listener
	password string
	key      *rsa.PrivateKey
	accepted chan *FakeChannelServer
}

// StartFakeServer listens on a fresh Unix socket under t.TempDir,
// accepting connections and running the link handshake (ticket auth
// checked against password) on each. Path is the dial target to hand to
// session.Connect (Port: 0 selects this Unix-socket path).
func StartFakeServer(t *testing.T, password string) (path string, srv *FakeServer) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	sockPath := filepath.Join(t.TempDir(), "spice.sock")
	l, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen unix %s: %v", sockPath, err)
	}
	s := &FakeServer{t: t, listener: l, password: password, key: key, accepted: make(chan *FakeChannelServer, 8)}

	go s.acceptLoop()
	t.Cleanup(func() { l.Close() })
	return sockPath, s
}

func (s *FakeServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *FakeServer) handleConn(conn net.Conn) {
	if err := s.handshake(conn); err != nil {
		s.t.Logf("testutil: handshake failed: %v", err)
		conn.Close()
		return
	}
	s.accepted <- &FakeChannelServer{t: s.t, Conn: conn}
}

// handshake performs the server side of the link exchange: read the
// client's link message, reply with this server's SubjectPublicKeyInfo
// and empty capability lists, then validate the RSA-OAEP ticket.
func (s *FakeServer) handshake(conn net.Conn) error {
	var hdr [16]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return fmt.Errorf("read link header: %w", err)
	}
	size := binary.LittleEndian.Uint32(hdr[12:16])
	body := make([]byte, size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return fmt.Errorf("read link body: %w", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal server public key: %w", err)
	}

	replyBody := make([]byte, 16)
	binary.LittleEndian.PutUint32(replyBody[0:4], 0) // ErrOK
	binary.LittleEndian.PutUint32(replyBody[4:8], 0)  // num_common_caps
	binary.LittleEndian.PutUint32(replyBody[8:12], 0) // num_channel_caps
	// caps_offset points past the variable-length public key, where the
	// (empty) capability word arrays would begin.
	binary.LittleEndian.PutUint32(replyBody[12:16], uint32(16+len(der)))
	replyBody = append(replyBody, der...)

	replyHdr := make([]byte, 16)
	copy(replyHdr[0:4], []byte("REDQ"))
	binary.LittleEndian.PutUint32(replyHdr[4:8], 2)
	binary.LittleEndian.PutUint32(replyHdr[8:12], 2)
	binary.LittleEndian.PutUint32(replyHdr[12:16], uint32(len(replyBody)))

	if _, err := conn.Write(append(replyHdr, replyBody...)); err != nil {
		return fmt.Errorf("write link reply: %w", err)
	}

	var mech [4]byte
	if _, err := io.ReadFull(conn, mech[:]); err != nil {
		return fmt.Errorf("read auth mechanism: %w", err)
	}
	ticket := make([]byte, s.key.Size())
	if _, err := io.ReadFull(conn, ticket); err != nil {
		return fmt.Errorf("read ticket: %w", err)
	}
	plaintext, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, s.key, ticket, nil)
	if err != nil {
		return fmt.Errorf("decrypt ticket: %w", err)
	}
	got := string(trimNUL(plaintext))
	var result uint32
	if got != s.password {
		result = 1
	}
	var resultBuf [4]byte
	binary.LittleEndian.PutUint32(resultBuf[:], result)
	if _, err := conn.Write(resultBuf[:]); err != nil {
		return fmt.Errorf("write auth result: %w", err)
	}
	if result != 0 {
		return fmt.Errorf("client presented wrong ticket")
	}
	return nil
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// Accept blocks until the next handshaken connection arrives; it has no
// timeout.
func (s *FakeServer) Accept() *FakeChannelServer {
	s.t.Helper()
	return <-s.accepted
}

// Close shuts the listener down.
func (s *FakeServer) Close() { s.listener.Close() }

// SendFrame writes one mini-header-framed message to the client.
func (c *FakeChannelServer) SendFrame(msgType uint16, payload []byte) {
	c.t.Helper()
	b := wire.NewBuilder(msgType, len(payload))
	b.Append(payload)
	if _, err := c.Conn.Write(b.Finish()); err != nil {
		c.t.Fatalf("testutil: send frame: %v", err)
	}
}

// ReadFrame reads one mini-header-framed message sent by the client.
func (c *FakeChannelServer) ReadFrame() (uint16, []byte) {
	c.t.Helper()
	var hdrBuf [wire.HeaderSize]byte
	if _, err := io.ReadFull(c.Conn, hdrBuf[:]); err != nil {
		c.t.Fatalf("testutil: read header: %v", err)
	}
	var hdr wire.Header
	hdr.UnmarshalBinary(hdrBuf[:])
	payload := make([]byte, hdr.Size)
	if hdr.Size > 0 {
		if _, err := io.ReadFull(c.Conn, payload); err != nil {
			c.t.Fatalf("testutil: read payload: %v", err)
		}
	}
	return hdr.Type, payload
}
