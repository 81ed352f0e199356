//go:build linux

package link

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// TuneTCP enables TCP_NODELAY and, on Linux, TCP_QUICKACK on a freshly
// linked TCP channel socket (spec.md §4.2). Disabling Nagle is also used
// transiently during graceful disconnect (spec.md §4.3) to force a flush.
func TuneTCP(conn net.Conn, noDelay bool) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(noDelay); err != nil {
		return err
	}

	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
	if err != nil {
		return err
	}
	if sockErr != nil && sockErr != syscall.ENOPROTOOPT {
		return sockErr
	}
	return nil
}
