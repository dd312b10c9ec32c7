package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/net/netutil"
)

// CreateLoopbackListener binds a TCP listener on host:port. host must be a
// loopback address. When maxConns is positive the listener admits at most
// that many simultaneous connections; further clients wait in the accept
// backlog until a slot frees up.
func CreateLoopbackListener(host string, port int, maxConns int) (net.Listener, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	if !IsLoopbackHost(host) {
		return nil, fmt.Errorf("refusing to bind non-loopback address %q", host)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// IsLoopbackHost reports whether host is "localhost" or a loopback IP literal.
func IsLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Go's net package often wraps these, e.g. *net.OpError
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}

// IsClientDisconnect reports whether err is the result of the peer going
// away while a response was being written: a broken pipe, a reset
// connection, a closed network connection, or a cancelled request context.
func IsClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, http.ErrHandlerTimeout),
		errors.Is(err, context.Canceled):
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return IsClientDisconnect(sysErr.Err)
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "client disconnected")
}
