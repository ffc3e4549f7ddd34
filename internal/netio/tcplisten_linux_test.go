//go:build linux

package netio

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestListenTCPBindsEphemeralPort(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP(context.Background(), "127.0.0.1:0", false)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	if ln.Addr().String() == "" {
		t.Fatal("expected a bound address")
	}
}

func TestListenTCPWithReusePortAllowsSecondBind(t *testing.T) {
	t.Parallel()

	ln1, err := ListenTCP(context.Background(), "127.0.0.1:0", true)
	if err != nil {
		t.Fatalf("first ListenTCP: %v", err)
	}
	defer ln1.Close()

	addr := ln1.Addr().String()

	ln2, err := ListenTCP(context.Background(), addr, true)
	if err != nil {
		t.Fatalf("second ListenTCP with reuse_port on %s: %v", addr, err)
	}
	defer ln2.Close()
}

func TestListenTCPInvalidAddrReturnsError(t *testing.T) {
	t.Parallel()

	_, err := ListenTCP(context.Background(), "not-an-address", false)
	if err == nil {
		t.Fatal("expected an error for an invalid address")
	}
}

func TestTuneKeepAliveSetsOptionsWithoutError(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP(context.Background(), "127.0.0.1:0", false)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	serverConn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer serverConn.Close()

	tcpConn, ok := serverConn.(*net.TCPConn)
	if !ok {
		t.Fatalf("accepted connection is %T, want *net.TCPConn", serverConn)
	}

	if err := TuneKeepAlive(tcpConn, 30*time.Second, 10*time.Second, 3); err != nil {
		t.Fatalf("TuneKeepAlive: %v", err)
	}
}
