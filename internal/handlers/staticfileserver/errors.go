package staticfileserver

import (
	"errors"
	"fmt"
)

// ErrClientDisconnect marks a response that was cut short because the client
// went away mid-stream.
var ErrClientDisconnect = errors.New("client disconnected")

// TraversalError is returned when a request path resolves outside the
// document root.
type TraversalError struct {
	RequestPath  string
	ResolvedPath string
}

func (e *TraversalError) Error() string {
	if e.ResolvedPath == "" {
		return fmt.Sprintf("path %q escapes document root", e.RequestPath)
	}
	return fmt.Sprintf("path %q resolves to %q outside document root", e.RequestPath, e.ResolvedPath)
}

// NotFoundError is returned when a request path does not name an existing
// file or directory.
type NotFoundError struct {
	RequestPath string
	Err         error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path %q not found", e.RequestPath)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// RangeNotSatisfiableError is returned when a Range header parses to an
// interval that is inverted or lies beyond the end of the file.
type RangeNotSatisfiableError struct {
	Header    string
	Start     uint64
	End       uint64
	TotalSize uint64
}

func (e *RangeNotSatisfiableError) Error() string {
	return fmt.Sprintf("range %q not satisfiable (start %d, end %d, size %d)", e.Header, e.Start, e.End, e.TotalSize)
}

// ContentRange returns the Content-Range value sent with a 416 response.
func (e *RangeNotSatisfiableError) ContentRange() string {
	return fmt.Sprintf("bytes */%d", e.TotalSize)
}
