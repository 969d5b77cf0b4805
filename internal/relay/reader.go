package relay

import (
	"bufio"
	"errors"
	"io"
	"unicode/utf8"
)

var (
	ErrInvalidUTF8 = errors.New("line is not valid UTF-8")
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// LineReader reads newline terminated UTF-8 lines from a stream.
//
//	lr := NewLineReader(conn, 4096)
//	for lr.Scan() {
//		handle(lr.Line())
//	}
//	if err := lr.Err(); err != nil { ... }
type LineReader struct {
	scanner *bufio.Scanner
	line    string
	err     error
}

// NewLineReader reads from r, rejecting lines longer than maxLen bytes
func NewLineReader(r io.Reader, maxLen int) *LineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, min(maxLen, 4096)), maxLen)
	return &LineReader{scanner: s}
}

// Scan advances to the next line. It returns false at end of stream or
// on the first error, after which Err reports the error, if any.
func (lr *LineReader) Scan() bool {
	if lr.err != nil {
		return false
	}
	if !lr.scanner.Scan() {
		if err := lr.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = ErrLineTooLong
			}
			lr.err = err
		}
		return false
	}

	b := lr.scanner.Bytes()
	if !utf8.Valid(b) {
		lr.err = ErrInvalidUTF8
		return false
	}
	lr.line = string(b)
	return true
}

// Line returns the most recent line, without its "\n" or "\r\n"
// terminator
func (lr *LineReader) Line() string {
	return lr.line
}

// Err returns the error that ended the sequence, or nil at end of stream
func (lr *LineReader) Err() error {
	return lr.err
}
