//go:build linux

// Package netio provides the platform-specific socket options sshcored's
// TCP listeners and accepted connections need that the standard library
// has no portable field for.
package netio

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ListenTCP opens a TCP listener on addr. When reusePort is set, the
// listening socket carries SO_REUSEPORT via the RawConn Control callback,
// so multiple sshcored processes — or multiple listener entries in the
// same process restarting under SIGHUP reload — can bind the same address
// for a zero-downtime handoff.
func ListenTCP(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			return setReusePort(c)
		}
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return ln, nil
}

// setReusePort sets SO_REUSEPORT on the listening socket underlying c.
func setReusePort(c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("set SO_REUSEPORT: %w", sockErr)
	}
	return nil
}

// TuneKeepAlive enables TCP keepalive on conn and sets the idle time,
// probe interval, and probe count individually via TCP_KEEPIDLE/
// TCP_KEEPINTVL/TCP_KEEPCNT, finer-grained than net.TCPConn's portable
// SetKeepAlivePeriod. A half-open peer (network partition, crashed
// client) is detected and the connection's Read returns an error within
// roughly idle+interval*count instead of waiting on the OS default
// (often two hours).
func TuneKeepAlive(conn *net.TCPConn, idle, interval time.Duration, count int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		f := int(fd) //nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		if sockErr = unix.SetsockoptInt(f, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(f, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(idle.Seconds())); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(f, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(interval.Seconds())); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(f, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, count)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("set keepalive options: %w", sockErr)
	}
	return nil
}
