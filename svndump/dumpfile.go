package svndump

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/edsrzf/mmap-go"
)

// DumpFile is a parsed "svnadmin dump" stream, mmap-backed so
// multi-gigabyte dumps don't need to be read into the Go heap up front.
type DumpFile struct {
	path      string
	file      *os.File
	mapping   mmap.MMap
	Format    int
	UUID      string
	Revisions []Revision
}

// OpenDumpFile mmaps path and parses its full revision/node structure.
func OpenDumpFile(path string) (*DumpFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("svndump: open: %w", err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("svndump: mmap: %w", err)
	}

	df := &DumpFile{path: path, file: f, mapping: m}
	if err := df.parse([]byte(m)); err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	return df, nil
}

// Close releases the dump file's memory mapping.
func (d *DumpFile) Close() error {
	if err := d.mapping.Unmap(); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}

func readHeaderBlock(source []byte) (map[string]string, []byte, error) {
	headers := map[string]string{}
	for {
		if len(source) == 0 {
			return headers, source, nil
		}
		if source[0] == '\n' {
			return headers, source[1:], nil
		}
		nl := bytes.IndexByte(source, '\n')
		var line []byte
		if nl == -1 {
			line, source = source, nil
		} else {
			line, source = source[:nl], source[nl+1:]
		}
		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			return headers, source, fmt.Errorf("svndump: malformed header line %q", line)
		}
		key := string(bytes.TrimSpace(line[:colon]))
		val := string(bytes.TrimSpace(line[colon+1:]))
		headers[key] = val
	}
}

func headerInt(h map[string]string, key string) (int, bool, error) {
	str, ok := h[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, true, fmt.Errorf("svndump: invalid %s: %q", key, str)
	}
	return n, true, nil
}

func (d *DumpFile) parse(source []byte) error {
	headers, rest, err := readHeaderBlock(source)
	if err != nil {
		return err
	}
	verStr, ok := headers["SVN-fs-dump-format-version"]
	if !ok {
		return fmt.Errorf("svndump: missing SVN-fs-dump-format-version header")
	}
	ver, err := strconv.Atoi(verStr)
	if err != nil {
		return fmt.Errorf("svndump: invalid format version %q", verStr)
	}
	d.Format = ver
	source = rest

	// Optional UUID block, delimited the same way as a header block.
	if bytes.HasPrefix(bytes.TrimLeft(source, "\n"), []byte("UUID:")) {
		source = bytes.TrimLeft(source, "\n")
		uuidHeaders, rest, err := readHeaderBlock(source)
		if err != nil {
			return err
		}
		d.UUID = uuidHeaders["UUID"]
		source = rest
	}

	var cur *Revision
	for len(source) > 0 {
		source = bytes.TrimLeft(source, "\n")
		if len(source) == 0 {
			break
		}
		headers, rest, err := readHeaderBlock(source)
		if err != nil {
			return err
		}
		source = rest

		if numStr, ok := headers["Revision-number"]; ok {
			num, err := strconv.Atoi(numStr)
			if err != nil {
				return fmt.Errorf("svndump: invalid Revision-number %q", numStr)
			}
			if cur != nil {
				d.Revisions = append(d.Revisions, *cur)
			}
			cur = &Revision{Number: num}

			propLen, hasProp, err := headerInt(headers, "Prop-content-length")
			if err != nil {
				return err
			}
			if hasProp {
				payload, remainder, err := readPayload(headers, source)
				if err != nil {
					return err
				}
				source = remainder
				props, _, err := readProperties(payload[:propLen])
				if err != nil {
					return fmt.Errorf("svndump: r%d properties: %w", num, err)
				}
				cur.Props = props
			}
			continue
		}

		path, ok := headers["Node-path"]
		if !ok {
			return fmt.Errorf("svndump: unexpected header block %v", headers)
		}
		if cur == nil {
			return fmt.Errorf("svndump: node %q before any revision", path)
		}

		node := Node{Path: path}
		if kindStr, ok := headers["Node-kind"]; ok {
			kind, ok := parseNodeKind(kindStr)
			if !ok {
				return fmt.Errorf("svndump: unknown Node-kind %q", kindStr)
			}
			node.Kind, node.HasKind = kind, true
		}
		actionStr, ok := headers["Node-action"]
		if !ok {
			return fmt.Errorf("svndump: node %q missing Node-action", path)
		}
		action, ok := parseNodeAction(actionStr)
		if !ok {
			return fmt.Errorf("svndump: unknown Node-action %q", actionStr)
		}
		node.Action = action

		if rev, ok := headers["Node-copyfrom-rev"]; ok {
			n, err := strconv.Atoi(rev)
			if err != nil {
				return fmt.Errorf("svndump: invalid Node-copyfrom-rev %q", rev)
			}
			node.CopyFromRev = n
		}
		node.CopyFromPath = headers["Node-copyfrom-path"]
		node.TextDelta = headers["Text-delta"] == "true"

		propLen, hasProp := 0, false
		textLen, hasText := 0, false
		if _, ok := headers["Content-length"]; ok {
			var err error
			propLen, hasProp, err = headerInt(headers, "Prop-content-length")
			if err != nil {
				return err
			}
			textLen, hasText, err = headerInt(headers, "Text-content-length")
			if err != nil {
				return err
			}
			payload, remainder, err := readPayload(headers, source)
			if err != nil {
				return err
			}
			source = remainder
			offset := 0
			if hasProp {
				props, _, err := readProperties(payload[:propLen])
				if err != nil {
					return fmt.Errorf("svndump: %s properties: %w", path, err)
				}
				node.Props, node.HasProps = props, true
				offset = propLen
			}
			if hasText {
				node.Text, node.HasText = payload[offset:offset+textLen], true
			}
		}

		cur.Nodes = append(cur.Nodes, node)
	}
	if cur != nil {
		d.Revisions = append(d.Revisions, *cur)
	}
	return nil
}

// readPayload reads the Content-length bytes following a header block.
func readPayload(headers map[string]string, source []byte) (payload, remainder []byte, err error) {
	n, ok, err := headerInt(headers, "Content-length")
	if err != nil {
		return nil, source, err
	}
	if !ok {
		return nil, source, nil
	}
	if n > len(source) {
		return nil, source, bufio.ErrBufferFull
	}
	return source[:n], source[n:], nil
}
