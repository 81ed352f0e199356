package session

import (
	"crypto/rsa"
	"fmt"
	"net"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/crypto"
	"github.com/zbum/purespice-go/internal/link"
	"github.com/zbum/purespice-go/internal/wire"
)

// dialAddress resolves spec.md §6's "Address": port == 0 selects a Unix
// domain socket at host; otherwise host must parse as an IPv4 literal
// (the wire spec's inet_pton requirement) and a TCP connection is dialed.
func dialAddress(host string, port int) (net.Conn, error) {
	if port == 0 {
		conn, err := net.Dial("unix", host)
		if err != nil {
			return nil, fmt.Errorf("session: dial unix %s: %w", host, err)
		}
		return conn, nil
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("session: host %q is not an IPv4 literal", host)
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: dial tcp %s: %w", addr, err)
	}
	return conn, nil
}

// dialChannel performs a full link handshake and RSA ticket auth against a
// freshly dialed connection, tunes a TCP socket for low latency, and
// returns the connection ready to Attach to a channel.Channel.
func dialChannel(host string, port int, connectionID uint32, kind channel.Kind, password string, commonCaps, channelCaps *wire.CapSet) (net.Conn, error) {
	conn, err := dialAddress(host, port)
	if err != nil {
		return nil, err
	}

	if err := link.WriteLink(conn, connectionID, kind.WireType(), 0, commonCaps, channelCaps); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: %s: link: %w", kind, err)
	}
	hdr, err := link.ReadHeader(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: %s: link header: %w", kind, err)
	}
	reply, err := link.ReadReply(conn, hdr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: %s: link reply: %w", kind, err)
	}

	pub, err := crypto.ParseSubjectPublicKeyInfo(reply.PubKeyDER)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: %s: parse server public key: %w", kind, err)
	}
	if err := authenticate(conn, pub, password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: %s: auth: %w", kind, err)
	}
	link.TuneTCP(conn, true)
	return conn, nil
}

func authenticate(conn net.Conn, pub *rsa.PublicKey, password string) error {
	return link.Authenticate(conn, pub, password)
}
