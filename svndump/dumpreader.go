// Package svndump implements an svn.Session backed by a local SVN dump
// file (the "svnadmin dump" format).
package svndump

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// reader is a cursor over an in-memory dump file buffer: small helpers
// for consuming the dump format's line-oriented headers and
// length-prefixed property/text blocks.
type reader struct {
	buffer []byte
}

func newReader(source []byte) *reader {
	return &reader{buffer: source}
}

func (r *reader) atEOF() bool { return len(r.buffer) == 0 }

func (r *reader) newline() bool {
	if len(r.buffer) > 0 && r.buffer[0] == '\n' {
		r.buffer = r.buffer[1:]
		return true
	}
	return false
}

// lineAfter consumes prefix plus the rest of the current line (without
// its newline) if the buffer starts with prefix.
func (r *reader) lineAfter(prefix string) (string, bool) {
	if !bytes.HasPrefix(r.buffer, []byte(prefix)) {
		return "", false
	}
	rest := r.buffer[len(prefix):]
	nl := bytes.IndexByte(rest, '\n')
	if nl == -1 {
		line := string(rest)
		r.buffer = r.buffer[len(r.buffer):]
		return line, true
	}
	line := string(rest[:nl])
	r.buffer = rest[nl+1:]
	return line, true
}

func (r *reader) intAfter(prefix string) (int, bool, error) {
	str, ok := r.lineAfter(prefix + ": ")
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, true, fmt.Errorf("svndump: invalid %s: %q: %w", prefix, str, err)
	}
	return n, true, nil
}

func (r *reader) read(n int) ([]byte, error) {
	if n > len(r.buffer) {
		return nil, io.ErrUnexpectedEOF
	}
	data := r.buffer[:n]
	r.buffer = r.buffer[n:]
	return data, nil
}

// hasPrefixLine reports whether the buffer starts with prefix, without
// consuming anything.
func (r *reader) hasPrefixLine(prefix string) bool {
	return bytes.HasPrefix(r.buffer, []byte(prefix))
}
