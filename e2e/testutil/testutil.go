package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"example.com/streamserver/internal/config"
	"example.com/streamserver/internal/handlers/staticfileserver"
	"example.com/streamserver/internal/logger"
	"example.com/streamserver/internal/server"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string // Sent verbatim on the request line, so ".." segments survive.
	Headers http.Header
}

// HeaderMatcher maps header names to their exact expected values.
type HeaderMatcher map[string]string

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string) // Returns match status and a description of mismatch
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

// Match implements BodyMatcher for ExactBodyMatcher.
func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	if len(m.ExpectedBody) > 256 || len(body) > 256 {
		return false, fmt.Sprintf("bodies do not match exactly (expected %d bytes, got %d bytes)", len(m.ExpectedBody), len(body))
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", string(m.ExpectedBody), string(body))
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

// Match implements BodyMatcher for StringContainsBodyMatcher.
func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, string(body))
}

// ExpectedResponse models the expected outcome of an HTTP request.
type ExpectedResponse struct {
	StatusCode   int
	Headers      HeaderMatcher
	BodyMatcher  BodyMatcher
	ExpectNoBody bool
}

// ActualResponse stores the actual outcome of an HTTP request.
type ActualResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// SyncBuffer is a bytes.Buffer that tolerates concurrent writers.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance is a server running in-process on a real loopback socket.
type ServerInstance struct {
	Config    *config.Config
	Address   string // e.g. "127.0.0.1:54321"
	ErrorLog  *SyncBuffer
	AccessLog *SyncBuffer

	cancel context.CancelFunc
	done   chan error
	once   sync.Once
	err    error
}

// GetFreePort asks the kernel for a free open port that is ready to use.
func GetFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// WriteTempConfig creates a temporary configuration file in JSON or TOML format.
// It returns the path to the file and a cleanup function to remove it.
func WriteTempConfig(configData interface{}, format string) (filePath string, cleanupFunc func(), err error) {
	var data []byte
	var ext string

	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
		ext = ".json"
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
		ext = ".toml"
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal config data to %s: %w", format, err)
	}

	tmpFile, err := os.CreateTemp("", "testconfig-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp config file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to write to temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to close temp config file: %w", err)
	}

	filePath = tmpFile.Name()
	cleanupFunc = func() { os.Remove(filePath) }
	return filePath, cleanupFunc, nil
}

// StartServer validates cfg, wires the file handler into a server and runs it
// until Stop is called. It returns once the listener is bound.
func StartServer(cfg *config.Config) (*ServerInstance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inst := &ServerInstance{Config: cfg, ErrorLog: &SyncBuffer{}, AccessLog: &SyncBuffer{}, done: make(chan error, 1)}
	var accessOut io.Writer
	if cfg.Logging.AccessLog.Enabled {
		accessOut = inst.AccessLog
	}
	lg := logger.NewWithWriters(inst.ErrorLog, accessOut, cfg.Logging.LogLevel)

	handler, err := staticfileserver.New(cfg.Files, lg)
	if err != nil {
		return nil, err
	}
	srv, err := server.NewServer(cfg, lg, handler)
	if err != nil {
		return nil, err
	}
	if err := srv.Listen(); err != nil {
		return nil, err
	}
	inst.Address = srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	inst.cancel = cancel
	go func() { inst.done <- srv.Serve(ctx) }()
	return inst, nil
}

// Stop shuts the server down and waits for Serve to return.
func (s *ServerInstance) Stop() error {
	s.once.Do(func() {
		s.cancel()
		select {
		case s.err = <-s.done:
		case <-time.After(10 * time.Second):
			s.err = fmt.Errorf("server at %s did not stop within 10s", s.Address)
		}
	})
	return s.err
}

// URL returns an absolute URL for path on this server.
func (s *ServerInstance) URL(path string) string {
	return "http://" + s.Address + path
}

// Do sends request over a fresh connection and reads the whole response.
// The request line is written by hand so paths reach the server unmodified.
func Do(serverAddr string, request TestRequest) (ActualResponse, error) {
	conn, err := net.DialTimeout("tcp", serverAddr, 5*time.Second)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n", method, request.Path, serverAddr)
	for k, vs := range request.Headers {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")
	if _, err := io.WriteString(conn, b.String()); err != nil {
		return ActualResponse{}, fmt.Errorf("write request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: method})
	if err != nil {
		return ActualResponse{}, fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("read body: %w", err)
	}
	return ActualResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// AssertResponse reports every mismatch between actual and expected.
func AssertResponse(t *testing.T, actual ActualResponse, expected ExpectedResponse) {
	t.Helper()
	if actual.StatusCode != expected.StatusCode {
		t.Errorf("status code: expected %d, got %d", expected.StatusCode, actual.StatusCode)
	}
	for name, want := range expected.Headers {
		if got := actual.Headers.Get(name); got != want {
			t.Errorf("header %s: expected %q, got %q", name, want, got)
		}
	}
	if expected.ExpectNoBody {
		if len(actual.Body) != 0 {
			t.Errorf("expected no body, got %d bytes", len(actual.Body))
		}
		return
	}
	if expected.BodyMatcher != nil {
		if ok, desc := expected.BodyMatcher.Match(actual.Body); !ok {
			t.Errorf("body mismatch: %s", desc)
		}
	}
}
