//go:build !linux

package link

import "net"

// TuneTCP enables TCP_NODELAY on platforms without TCP_QUICKACK (spec.md
// §4.2 treats TCP_QUICKACK as Linux-specific best-effort tuning).
func TuneTCP(conn net.Conn, noDelay bool) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetNoDelay(noDelay)
}
