package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLoopbackListener(t *testing.T) {
	ln, err := CreateLoopbackListener("127.0.0.1", 0, 0)
	require.NoError(t, err)
	defer ln.Close()

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.True(t, tcpAddr.IP.IsLoopback())
	assert.NotZero(t, tcpAddr.Port)
}

func TestCreateLoopbackListener_RejectsNonLoopback(t *testing.T) {
	for _, host := range []string{"0.0.0.0", "192.168.1.10", "example.com"} {
		_, err := CreateLoopbackListener(host, 0, 0)
		assert.Error(t, err, "host %s", host)
	}
}

func TestCreateLoopbackListener_AddrInUse(t *testing.T) {
	first, err := CreateLoopbackListener("127.0.0.1", 0, 0)
	require.NoError(t, err)
	defer first.Close()

	port := first.Addr().(*net.TCPAddr).Port
	_, err = CreateLoopbackListener("127.0.0.1", port, 0)
	require.Error(t, err)
	assert.True(t, IsAddrInUse(err), "expected address-in-use, got %v", err)
}

func TestCreateLoopbackListener_ConnectionLimit(t *testing.T) {
	ln, err := CreateLoopbackListener("127.0.0.1", 0, 1)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	c1, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c1.Close()
	c2, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer c2.Close()

	var first net.Conn
	select {
	case first = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("first connection was not accepted")
	}

	select {
	case <-accepted:
		t.Fatal("second connection accepted while the limit was reached")
	case <-time.After(100 * time.Millisecond):
	}

	first.Close()
	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("second connection not accepted after a slot was released")
	}
}

func TestIsLoopbackHost(t *testing.T) {
	assert.True(t, IsLoopbackHost("localhost"))
	assert.True(t, IsLoopbackHost("127.0.0.1"))
	assert.True(t, IsLoopbackHost("::1"))
	assert.False(t, IsLoopbackHost("10.0.0.1"))
	assert.False(t, IsLoopbackHost(""))
}

func TestIsAddrInUse(t *testing.T) {
	assert.False(t, IsAddrInUse(nil))
	assert.True(t, IsAddrInUse(&net.OpError{Op: "listen", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)}))
	assert.True(t, IsAddrInUse(errors.New("listen tcp 127.0.0.1:8723: bind: address already in use")))
	assert.False(t, IsAddrInUse(errors.New("permission denied")))
}

func TestIsClientDisconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"broken pipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, true},
		{"connection reset", fmt.Errorf("copy: %w", syscall.ECONNRESET), true},
		{"closed conn", net.ErrClosed, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"context canceled", fmt.Errorf("write: %w", context.Canceled), true},
		{"message only", errors.New("write tcp 127.0.0.1:8723->127.0.0.1:5000: write: broken pipe"), true},
		{"disk error", errors.New("read /srv/a.mkv: input/output error"), false},
		{"eof", io.ErrUnexpectedEOF, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsClientDisconnect(tc.err))
		})
	}
}
