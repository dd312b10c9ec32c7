package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"example.com/streamserver/internal/config"
	"example.com/streamserver/internal/logger"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a live server.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Files.Root = t.TempDir()
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = "1s"
	require.NoError(t, cfg.Validate())
	return &cfg
}

var helloHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, "hello "+r.Proto)
})

// startServer runs srv until the test ends and returns its base URL.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return "http://" + srv.Addr().String()
}

func TestNewServer_RejectsNilArguments(t *testing.T) {
	cfg := testConfig(t)
	lg := logger.NewDiscardLogger()

	_, err := NewServer(nil, lg, helloHandler)
	assert.Error(t, err)
	_, err = NewServer(cfg, nil, helloHandler)
	assert.Error(t, err)
	_, err = NewServer(cfg, lg, nil)
	assert.Error(t, err)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	errLog, accessLog := &syncBuffer{}, &syncBuffer{}
	srv, err := NewServer(cfg, logger.NewWithWriters(errLog, accessLog, config.LogLevelInfo), helloHandler)
	require.NoError(t, err)
	assert.Nil(t, srv.Addr())

	base := startServer(t, srv)

	resp, err := http.Get(base + "/some/file?x=1")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello HTTP/1.1", string(body))
	assert.Contains(t, errLog.String(), "Server running at http://127.0.0.1:")
	assert.Contains(t, errLog.String(), "serving files from "+cfg.Files.Root)

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(accessLog.String()), []byte(`"uri":"/some/file?x=1"`))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, accessLog.String(), `"status":200`)
	assert.Contains(t, accessLog.String(), `"resp_bytes":14`)
}

func TestServer_ShutdownLogsAndStopsAccepting(t *testing.T) {
	cfg := testConfig(t)
	errLog := &syncBuffer{}
	srv, err := NewServer(cfg, logger.NewWithWriters(errLog, nil, config.LogLevelInfo), helloHandler)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	addr := srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			c.Close()
		}
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Contains(t, errLog.String(), "Shutting down server...")

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err, "listener should be closed after shutdown")
}

func TestServer_ListenFailsWhenPortTaken(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Server.Port = busy.Addr().(*net.TCPAddr).Port
	errLog := &syncBuffer{}
	srv, err := NewServer(cfg, logger.NewWithWriters(errLog, nil, config.LogLevelInfo), helloHandler)
	require.NoError(t, err)

	err = srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, errLog.String(), "address already in use")
}

func TestServer_H2C(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.EnableH2C = true
	srv, err := NewServer(cfg, logger.NewDiscardLogger(), helloHandler)
	require.NoError(t, err)
	base := startServer(t, srv)

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
	resp, err := client.Get(base + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello HTTP/2.0", string(body))
}

func TestAccessLog_RecordsImplicitStatus(t *testing.T) {
	accessLog := &syncBuffer{}
	lg := logger.NewWithWriters(io.Discard, accessLog, config.LogLevelInfo)
	h := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), lg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/empty", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, accessLog.String(), `"status":200`)
	assert.Contains(t, accessLog.String(), `"resp_bytes":0`)
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	rec.WriteHeader(http.StatusPartialContent)
	rec.WriteHeader(http.StatusInternalServerError)
	n, err := rec.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, http.StatusPartialContent, rec.status)
	assert.Equal(t, int64(3), rec.bytes)
	rec.Flush()
	assert.NotNil(t, rec.Unwrap())
}
