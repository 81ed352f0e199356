package link

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // verifying the client's OAEP/SHA-1 ticket against a test key.
	"crypto/x509"
	"encoding/binary"
	"net"
	"testing"

	"github.com/zbum/purespice-go/internal/wire"
)

// fakeServer performs the server half of scenario #1 in spec.md §8: accept
// the link header, reply with a fixed capability list, and accept the
// ticket auth, returning success.
func fakeServer(t *testing.T, conn net.Conn, key *rsa.PrivateKey) {
	t.Helper()

	hdr, err := ReadHeader(conn)
	if err != nil {
		t.Errorf("server: read header: %v", err)
		return
	}
	if hdr.Magic != Magic {
		t.Errorf("server: bad magic")
	}
	body := make([]byte, hdr.Size)
	if _, err := readFull(conn, body); err != nil {
		t.Errorf("server: read body: %v", err)
		return
	}

	// Write back link header + reply.
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal SPKI: %v", err)
	}

	reply := make([]byte, 0, linkReplyPreambleSize+len(der)+8)
	reply = appendUint32(reply, ErrOK)
	reply = appendUint32(reply, 1) // num_common_caps
	reply = appendUint32(reply, 1) // num_channel_caps
	reply = appendUint32(reply, uint32(linkReplyPreambleSize+len(der)))
	reply = append(reply, der...)
	reply = append(reply, wire.EncodeWords([]uint32{0x0B})...)
	reply = append(reply, wire.EncodeWords([]uint32{0x00})...)

	replyHeader := make([]byte, 16)
	copy(replyHeader[0:4], Magic[:])
	binary.LittleEndian.PutUint32(replyHeader[4:8], MajorVersion)
	binary.LittleEndian.PutUint32(replyHeader[8:12], MinorVersion)
	binary.LittleEndian.PutUint32(replyHeader[12:16], uint32(len(reply)))
	if _, err := conn.Write(append(replyHeader, reply...)); err != nil {
		t.Errorf("server: write reply: %v", err)
		return
	}

	// Auth mechanism selector.
	var mech [4]byte
	if _, err := readFull(conn, mech[:]); err != nil {
		t.Errorf("server: read auth mechanism: %v", err)
		return
	}
	if binary.LittleEndian.Uint32(mech[:]) != AuthSpiceTicket {
		t.Errorf("server: unexpected auth mechanism")
	}

	ticket := make([]byte, key.Size())
	if _, err := readFull(conn, ticket); err != nil {
		t.Errorf("server: read ticket: %v", err)
		return
	}
	pt, err := rsa.DecryptOAEP(sha1.New(), nil, key, ticket, nil)
	if err != nil {
		t.Errorf("server: decrypt ticket: %v", err)
		return
	}
	if string(pt) != "secretpw\x00" {
		t.Errorf("server: decrypted password = %q", pt)
	}

	var ok [4]byte
	binary.LittleEndian.PutUint32(ok[:], ErrOK)
	conn.Write(ok[:])
}

func readFull(conn net.Conn, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := conn.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestHandshakeEndToEnd(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go fakeServer(t, server, key)

	commonCaps := wire.NewCapSet()
	commonCaps.Set(CommonCapMiniHeader)
	channelCaps := wire.NewCapSet()

	if err := WriteLink(client, 0, 1, 0, commonCaps, channelCaps); err != nil {
		t.Fatalf("write link: %v", err)
	}

	hdr, err := ReadHeader(client)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}

	reply, err := ReadReply(client, hdr)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !reply.CommonCaps.Has(0) || !reply.CommonCaps.Has(1) || !reply.CommonCaps.Has(3) {
		t.Errorf("expected common caps bits 0,1,3 set from 0x0B, got words %v", reply.CommonCaps.Words())
	}

	pub, err := parseAndCheck(reply.PubKeyDER)
	if err != nil {
		t.Fatalf("parse pub key: %v", err)
	}

	if err := Authenticate(client, pub, "secretpw"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func parseAndCheck(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	return pub.(*rsa.PublicKey), nil
}
