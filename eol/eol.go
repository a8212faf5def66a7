// Package eol applies SVN's svn:eol-style property semantics to file
// bytes before they are hashed as a blob. It never applies keyword
// expansion: the normalized content is what SVN stores, not what a
// working copy's keyword-substituted view would show.
package eol

import "bytes"

// Style is one of the recognized values of svn:eol-style.
type Style string

const (
	StyleNone   Style = ""
	StyleBinary Style = "binary"
	StyleNative Style = "native"
	StyleLF     Style = "LF"
	StyleCRLF   Style = "CRLF"
	StyleCR     Style = "CR"
)

var lineEnding = map[Style][]byte{
	StyleNative: []byte("\n"),
	StyleLF:     []byte("\n"),
	StyleCRLF:   []byte("\r\n"),
	StyleCR:     []byte("\r"),
}

// Normalize converts data's line endings per the svn:eol-style value in
// style. It is total: unrecognized or empty styles, and "binary", pass
// the bytes through unchanged.
func Normalize(data []byte, style Style) []byte {
	target, recognized := lineEnding[style]
	if !recognized {
		return data
	}

	// Canonicalize to LF first: fold CRLF, then any remaining lone CR.
	out := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	out = bytes.ReplaceAll(out, []byte("\r"), []byte("\n"))

	if !bytes.Equal(target, []byte("\n")) {
		out = bytes.ReplaceAll(out, []byte("\n"), target)
	}
	return out
}
