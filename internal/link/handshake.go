// Package link implements the SPICE link handshake: the magic+version
// exchange, capability negotiation, and RSA ticket authentication that
// bring a freshly dialed socket up to a channel-ready state (spec.md §4.2).
package link

import (
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	purespicecrypto "github.com/zbum/purespice-go/internal/crypto"
	"github.com/zbum/purespice-go/internal/wire"
)

// Magic is the 32-bit link magic value "REDQ", sent and expected
// byte-for-byte (not byte-swapped) on the wire.
var Magic = [4]byte{'R', 'E', 'D', 'Q'}

const (
	MajorVersion = 2
	MinorVersion = 2

	// AuthSpiceTicket selects the RSA ticket auth mechanism (the only one
	// this client speaks, per spec.md §6).
	AuthSpiceTicket uint32 = 1

	// ErrOK is the link-layer "no error" code, used both in the link
	// reply's error field and the final 32-bit auth result.
	ErrOK uint32 = 0

	// linkReplyPreambleSize covers error, num_common_caps, num_channel_caps
	// and caps_offset: the fixed prefix before the variable-length RSA
	// public key and the capability words. A 2048-bit key's ASN.1
	// SubjectPublicKeyInfo does not fit the legacy SPICE protocol's
	// historical fixed 162-byte pub_key field, so this layout keeps the
	// key variable-length and locates it via caps_offset instead.
	linkReplyPreambleSize = 16
)

// ErrHandshake is returned for any deviation from the expected handshake
// sequence: bad magic, unsupported major version, non-OK error codes, or
// an undersized reply.
var ErrHandshake = errors.New("link: handshake failed")

// Header is the fixed link header every message begins with.
type Header struct {
	Magic [4]byte
	Major uint32
	Minor uint32
	Size  uint32
}

// Reply carries the server's link-reply: its error code, RSA public key in
// ASN.1 SubjectPublicKeyInfo form, and advertised capability lists.
type Reply struct {
	Error       uint32
	PubKeyDER   []byte
	CommonCaps  *wire.CapSet
	ChannelCaps *wire.CapSet
}

// WriteLink sends the client's link message: header followed by
// connection_id, channel_type, channel_id, capability counts/offset, and
// the capability words themselves.
func WriteLink(conn net.Conn, connectionID uint32, channelType, channelID uint8, commonCaps, channelCaps *wire.CapSet) error {
	commonWords := commonCaps.Words()
	channelWords := channelCaps.Words()

	body := make([]byte, 0, 20+4*(len(commonWords)+len(channelWords)))
	body = appendUint32(body, connectionID)
	body = append(body, channelType, channelID, 0, 0) // pad to 4-byte alignment like the source struct
	body = appendUint32(body, uint32(len(commonWords)))
	body = appendUint32(body, uint32(len(channelWords)))
	body = appendUint32(body, uint32(len(body)+4)) // caps_offset = sizeof(mess) from this point
	body = append(body, wire.EncodeWords(commonWords)...)
	body = append(body, wire.EncodeWords(channelWords)...)

	header := make([]byte, 16)
	copy(header[0:4], Magic[:])
	binary.LittleEndian.PutUint32(header[4:8], MajorVersion)
	binary.LittleEndian.PutUint32(header[8:12], MinorVersion)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(body)))

	pkt := append(header, body...)
	n, err := conn.Write(pkt)
	if err != nil {
		return fmt.Errorf("link: write link message: %w", err)
	}
	if n != len(pkt) {
		return fmt.Errorf("%w: short write of link message (%d/%d)", ErrHandshake, n, len(pkt))
	}
	return nil
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// ReadHeader reads back the link header sent in response to WriteLink,
// validating the magic and major version.
func ReadHeader(conn net.Conn) (Header, error) {
	var raw [16]byte
	if _, err := io.ReadFull(conn, raw[:]); err != nil {
		return Header{}, fmt.Errorf("%w: read link header: %v", ErrHandshake, err)
	}
	var h Header
	copy(h.Magic[:], raw[0:4])
	h.Major = binary.LittleEndian.Uint32(raw[4:8])
	h.Minor = binary.LittleEndian.Uint32(raw[8:12])
	h.Size = binary.LittleEndian.Uint32(raw[12:16])

	if h.Magic != Magic {
		return h, fmt.Errorf("%w: bad magic %q", ErrHandshake, h.Magic[:])
	}
	if h.Major != MajorVersion {
		return h, fmt.Errorf("%w: unsupported major version %d", ErrHandshake, h.Major)
	}
	return h, nil
}

// ReadReply reads the link-reply body described by header.Size, which must
// be at least the fixed reply struct's size.
func ReadReply(conn net.Conn, header Header) (*Reply, error) {
	if header.Size < linkReplyPreambleSize {
		return nil, fmt.Errorf("%w: link reply too small (%d bytes)", ErrHandshake, header.Size)
	}
	body := make([]byte, header.Size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("%w: read link reply: %v", ErrHandshake, err)
	}

	errCode := binary.LittleEndian.Uint32(body[0:4])
	if errCode != ErrOK {
		return nil, fmt.Errorf("%w: link reply error code %d", ErrHandshake, errCode)
	}
	numCommon := binary.LittleEndian.Uint32(body[4:8])
	numChannel := binary.LittleEndian.Uint32(body[8:12])
	capsOffset := binary.LittleEndian.Uint32(body[12:16])

	if int(capsOffset) < linkReplyPreambleSize || int(capsOffset)+4*int(numCommon+numChannel) > len(body) {
		return nil, fmt.Errorf("%w: capability list overruns link reply", ErrHandshake)
	}
	pubKey := append([]byte(nil), body[linkReplyPreambleSize:capsOffset]...)
	capsBytes := body[capsOffset:]
	commonWords := wire.DecodeWords(capsBytes, int(numCommon))
	channelWords := wire.DecodeWords(capsBytes[4*numCommon:], int(numChannel))

	return &Reply{
		Error:       errCode,
		PubKeyDER:   pubKey,
		CommonCaps:  wire.FromWords(commonWords),
		ChannelCaps: wire.FromWords(channelWords),
	}, nil
}

// Authenticate runs the SPICE ticket auth step: send the auth mechanism
// selector, encrypt the password against the server's RSA key, write the
// ciphertext, and check the 32-bit link result.
func Authenticate(conn net.Conn, pub *rsa.PublicKey, password string) error {
	var mech [4]byte
	binary.LittleEndian.PutUint32(mech[:], AuthSpiceTicket)
	if _, err := conn.Write(mech[:]); err != nil {
		return fmt.Errorf("%w: write auth mechanism: %v", ErrHandshake, err)
	}

	ticket, err := purespicecrypto.EncryptTicket(pub, password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if _, err := conn.Write(ticket); err != nil {
		return fmt.Errorf("%w: write ticket: %v", ErrHandshake, err)
	}

	var resultRaw [4]byte
	if _, err := io.ReadFull(conn, resultRaw[:]); err != nil {
		return fmt.Errorf("%w: read link result: %v", ErrHandshake, err)
	}
	if result := binary.LittleEndian.Uint32(resultRaw[:]); result != ErrOK {
		return fmt.Errorf("%w: link result %d", ErrHandshake, result)
	}
	return nil
}
