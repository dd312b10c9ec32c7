package staticfileserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"example.com/streamserver/internal/config"
	"example.com/streamserver/internal/logger"
	"example.com/streamserver/internal/server"
	"example.com/streamserver/internal/util"
)

// StreamOutcome summarises how a file response ended.
type StreamOutcome int

const (
	// StreamComplete means every byte of the range was written.
	StreamComplete StreamOutcome = iota
	// StreamShortRead means the file ended before the range did; the body is
	// shorter than the advertised Content-Length.
	StreamShortRead
	// StreamClientDisconnect means the client went away mid-body.
	StreamClientDisconnect
	// StreamFailedBeforeBody means an I/O error occurred before any byte was
	// written and a 500 was sent instead.
	StreamFailedBeforeBody
	// StreamFailedMidBody means an I/O error occurred after the body started;
	// the response simply ends short.
	StreamFailedMidBody
)

func (o StreamOutcome) String() string {
	switch o {
	case StreamComplete:
		return "complete"
	case StreamShortRead:
		return "short_read"
	case StreamClientDisconnect:
		return "client_disconnect"
	case StreamFailedBeforeBody:
		return "failed_before_body"
	case StreamFailedMidBody:
		return "failed_mid_body"
	}
	return "unknown"
}

// StreamResult reports what Stream did.
type StreamResult struct {
	Outcome   StreamOutcome
	BytesSent int64
	Err       error
}

// fileReader is the part of *os.File the streamer needs.
type fileReader interface {
	io.ReadSeeker
	io.Closer
}

// FileStreamer writes a byte range of a file to an HTTP response in bounded
// chunks.
type FileStreamer struct {
	log         *logger.Logger
	chunkSize   int
	cacheMaxAge int
	openFile    func(name string) (fileReader, error)
}

func openOSFile(name string) (fileReader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NewFileStreamer creates a FileStreamer. A chunkSize outside (0, 1 MiB] is
// replaced by 1 MiB.
func NewFileStreamer(chunkSize, cacheMaxAge int, lg *logger.Logger) *FileStreamer {
	if chunkSize <= 0 || chunkSize > config.MaxChunkSize {
		chunkSize = config.MaxChunkSize
	}
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	return &FileStreamer{log: lg, chunkSize: chunkSize, cacheMaxAge: cacheMaxAge, openFile: openOSFile}
}

// Stream sends br of target as the response: 206 when the range was explicit,
// 200 otherwise. Headers are committed only once the first chunk has been
// read, so a failure opening, seeking or reading before that point still
// produces a clean 500. The file is closed on every path.
func (s *FileStreamer) Stream(w http.ResponseWriter, req *http.Request, target *ResolvedTarget, contentType string, br ByteRange) StreamResult {
	f, err := s.openFile(target.AbsolutePath)
	if err != nil {
		return s.failBeforeBody(w, req, target, fmt.Errorf("open: %w", err))
	}
	defer f.Close()

	if br.Start > 0 {
		if _, err := f.Seek(int64(br.Start), io.SeekStart); err != nil {
			return s.failBeforeBody(w, req, target, fmt.Errorf("seek to %d: %w", br.Start, err))
		}
	}

	status := http.StatusOK
	if br.Explicit {
		status = http.StatusPartialContent
	}
	committed := false
	commit := func() {
		h := w.Header()
		h.Set("Content-Type", contentType)
		h.Set("Accept-Ranges", "bytes")
		h.Set("Content-Length", strconv.FormatUint(br.Length(), 10))
		h.Set("Last-Modified", target.Info.ModTime().UTC().Format(http.TimeFormat))
		h.Set("Cache-Control", "max-age="+strconv.Itoa(s.cacheMaxAge))
		if br.Explicit {
			h.Set("Content-Range", br.ContentRange())
		}
		w.WriteHeader(status)
		committed = true
	}

	remaining := br.Length()
	if req.Method == http.MethodHead || remaining == 0 {
		commit()
		return StreamResult{Outcome: StreamComplete}
	}

	bufSize := uint64(s.chunkSize)
	if remaining < bufSize {
		bufSize = remaining
	}
	buf := make([]byte, bufSize)

	var sent int64
	for remaining > 0 {
		want := uint64(len(buf))
		if remaining < want {
			want = remaining
		}
		n, readErr := f.Read(buf[:want])
		if n > 0 {
			if !committed {
				commit()
			}
			written, writeErr := w.Write(buf[:n])
			sent += int64(written)
			remaining -= uint64(written)
			if writeErr != nil {
				return s.writeFailed(req, target, sent, writeErr)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if !committed {
				return s.failBeforeBody(w, req, target, fmt.Errorf("read: %w", readErr))
			}
			s.log.Error("Error reading file while streaming", logger.LogFields{
				"path":       target.AbsolutePath,
				"bytes_sent": sent,
				"error":      readErr.Error(),
			})
			return StreamResult{Outcome: StreamFailedMidBody, BytesSent: sent, Err: readErr}
		}
	}

	if !committed {
		commit()
	}
	if remaining > 0 {
		s.log.Warn("File ended before requested range was fully sent", logger.LogFields{
			"path":       target.AbsolutePath,
			"bytes_sent": sent,
			"missing":    remaining,
		})
		return StreamResult{Outcome: StreamShortRead, BytesSent: sent}
	}
	return StreamResult{Outcome: StreamComplete, BytesSent: sent}
}

func (s *FileStreamer) writeFailed(req *http.Request, target *ResolvedTarget, sent int64, err error) StreamResult {
	if util.IsClientDisconnect(err) || req.Context().Err() != nil {
		s.log.Warn("Connection error while streaming", logger.LogFields{
			"path":       target.AbsolutePath,
			"bytes_sent": sent,
			"error":      err.Error(),
		})
		return StreamResult{Outcome: StreamClientDisconnect, BytesSent: sent, Err: fmt.Errorf("%w: %v", ErrClientDisconnect, err)}
	}
	s.log.Error("Error writing response body", logger.LogFields{
		"path":       target.AbsolutePath,
		"bytes_sent": sent,
		"error":      err.Error(),
	})
	return StreamResult{Outcome: StreamFailedMidBody, BytesSent: sent, Err: err}
}

func (s *FileStreamer) failBeforeBody(w http.ResponseWriter, req *http.Request, target *ResolvedTarget, err error) StreamResult {
	s.log.Error("Error streaming file", logger.LogFields{
		"path":  target.AbsolutePath,
		"error": err.Error(),
	})
	server.SendDefaultErrorResponse(w, req, http.StatusInternalServerError, s.log)
	return StreamResult{Outcome: StreamFailedBeforeBody, Err: err}
}
