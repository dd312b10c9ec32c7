package staticfileserver

import (
	"fmt"
	"strconv"
	"strings"
)

const rangeUnitPrefix = "bytes="

// ByteRange is the inclusive interval [Start, End] of a file to send.
// For a non-empty file 0 <= Start <= End <= TotalSize-1.
type ByteRange struct {
	Start     uint64
	End       uint64
	TotalSize uint64
	// Explicit is true when the client sent a parseable Range header; the
	// response is then 206 with a Content-Range header.
	Explicit bool
}

// Length is the number of bytes covered by the range.
func (b ByteRange) Length() uint64 {
	if b.TotalSize == 0 {
		return 0
	}
	return b.End - b.Start + 1
}

// ContentRange formats the Content-Range header value.
func (b ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", b.Start, b.End, b.TotalSize)
}

func fullRange(fileSize uint64) ByteRange {
	br := ByteRange{TotalSize: fileSize}
	if fileSize > 0 {
		br.End = fileSize - 1
	}
	return br
}

// NegotiateRange turns a Range header value into the byte range to serve.
//
// A missing header, a unit other than bytes, or an unparseable start offset
// degrades to the whole file. An unparseable end offset defaults to the last
// byte. Only the first "start-end" pair is honoured; multi-range requests are
// not supported.
//
// The suffix form "bytes=-N" is NOT treated as "the last N bytes": the empty
// start defaults to 0 and N is taken as the end offset.
//
// A range that is inverted after clamping, or any explicit range on an empty
// file, yields *RangeNotSatisfiableError.
func NegotiateRange(header string, fileSize uint64) (ByteRange, error) {
	h := strings.TrimSpace(header)
	if !strings.HasPrefix(h, rangeUnitPrefix) {
		return fullRange(fileSize), nil
	}

	first, _, _ := strings.Cut(h[len(rangeUnitPrefix):], ",")
	parts := strings.Split(first, "-")

	var start uint64
	if left := strings.TrimSpace(parts[0]); left != "" {
		v, err := strconv.ParseUint(left, 10, 64)
		if err != nil {
			return fullRange(fileSize), nil
		}
		start = v
	}

	if fileSize == 0 {
		return ByteRange{Explicit: true}, &RangeNotSatisfiableError{Header: header, Start: start}
	}

	end := fileSize - 1
	if len(parts) > 1 {
		if right := strings.TrimSpace(parts[1]); right != "" {
			if v, err := strconv.ParseUint(right, 10, 64); err == nil && v < end {
				end = v
			}
		}
	}

	if start > end {
		return ByteRange{Start: start, End: end, TotalSize: fileSize, Explicit: true},
			&RangeNotSatisfiableError{Header: header, Start: start, End: end, TotalSize: fileSize}
	}
	return ByteRange{Start: start, End: end, TotalSize: fileSize, Explicit: true}, nil
}
