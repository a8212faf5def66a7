package svndump

import (
	"bytes"
	"fmt"
	"strconv"
)

// properties is a parsed K/V property block, terminated by PROPS-END, as
// emitted in both revision and node headers of the dump format.
type properties map[string][]byte

const propsEnd = "PROPS-END"

func readSized(source []byte, tag byte) (value, remainder []byte, err error) {
	if len(source) == 0 || source[0] != tag {
		return nil, source, fmt.Errorf("svndump: expected %c record, got %q", tag, firstLine(source))
	}
	r := newReader(source)
	str, ok := r.lineAfter(string(tag) + " ")
	if !ok {
		return nil, source, fmt.Errorf("svndump: malformed %c record", tag)
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		return nil, source, fmt.Errorf("svndump: invalid %c length %q: %w", tag, str, err)
	}
	data, err := r.read(n)
	if err != nil {
		return nil, source, fmt.Errorf("svndump: short %c record: %w", tag, err)
	}
	r.newline()
	return data, r.buffer, nil
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i != -1 {
		return string(b[:i])
	}
	return string(b)
}

// readProperties consumes K/V pairs until PROPS-END, returning the
// unconsumed remainder.
func readProperties(source []byte) (properties, []byte, error) {
	props := properties{}
	for {
		if bytes.HasPrefix(source, []byte(propsEnd)) {
			rest := source[len(propsEnd):]
			if len(rest) > 0 && rest[0] == '\n' {
				rest = rest[1:]
			}
			return props, rest, nil
		}
		key, rest, err := readSized(source, 'K')
		if err != nil {
			return nil, source, err
		}
		value, rest, err := readSized(rest, 'V')
		if err != nil {
			return nil, source, err
		}
		props[string(key)] = value
		source = rest
	}
}
