// Package svndiff decodes SVN's svndiff1 binary delta format, the wire
// format carried by apply_textdelta. It is a small state machine over
// the three instruction kinds -- source-copy, target-copy and literal
// ("new data"). Each window's output is written to the destination as
// soon as it is decoded, but memory is not bounded per window: Apply
// takes the whole source and the whole diff as in-memory buffers and
// keeps every byte produced by earlier windows for the length of the
// call.
package svndiff

import (
	"bytes"
	"fmt"
	"io"
)

var magic = []byte{'S', 'V', 'N', 0}

// op is an svndiff1 instruction kind.
type op byte

const (
	opSourceCopy op = 0
	opTargetCopy op = 1
	opNewData    op = 2
)

// Apply decodes the full svndiff stream in diff, applying it against
// source (the prior content of the file being patched -- empty for a
// brand new file) and writes the resulting bytes to out. Source is
// addressed by absolute offset per the source-copy instruction, so it
// must support random access; svndiff's own windows keep each access
// bounded to a source view of realistic file-sized sections.
func Apply(source []byte, diff []byte, out io.Writer) error {
	r := bytes.NewReader(diff)

	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fmt.Errorf("svndiff: reading header: %w", err)
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] || hdr[2] != magic[2] {
		return fmt.Errorf("svndiff: bad magic %v", hdr[:3])
	}
	if hdr[3] > 2 {
		return fmt.Errorf("svndiff: unsupported version %d", hdr[3])
	}

	// produced accumulates every byte emitted by every window of this
	// diff, in order: target-copy instructions may address data from
	// earlier windows of the same file, not just the current one.
	var produced []byte
	for r.Len() > 0 {
		chunk, err := applyWindow(source, r, produced)
		if err != nil {
			return err
		}
		produced = append(produced, chunk...)
		if _, err := out.Write(chunk); err != nil {
			return fmt.Errorf("svndiff: writing target window: %w", err)
		}
	}
	return nil
}

// EncodeFulltext wraps data in a minimal svndiff1 stream: one window
// with a single new-data instruction carrying data verbatim. Used when
// a text's source is fulltext rather than an actual svndiff1 delta --
// the common case for a dump file recorded without `svnadmin dump
// --deltas`, which Apply would otherwise reject for lacking the magic
// header.
func EncodeFulltext(data []byte) []byte {
	var instr bytes.Buffer
	instr.WriteByte(byte(opNewData) << 6) // length 0 inline signals "varint follows"
	putVarint(&instr, uint64(len(data)))

	var win bytes.Buffer
	putVarint(&win, 0) // source view offset
	putVarint(&win, 0) // source view length
	putVarint(&win, uint64(len(data)))
	putVarint(&win, uint64(instr.Len()))
	putVarint(&win, uint64(len(data)))
	win.Write(instr.Bytes())
	win.Write(data)

	out := make([]byte, 0, 4+win.Len())
	out = append(out, magic[0], magic[1], magic[2], 0)
	out = append(out, win.Bytes()...)
	return out
}

func putVarint(b *bytes.Buffer, v uint64) {
	var stack []byte
	stack = append(stack, byte(v&0x7f))
	v >>= 7
	for v > 0 {
		stack = append(stack, byte(v&0x7f)|0x80)
		v >>= 7
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
}

func readVarint(r *bytes.Reader) (uint64, error) {
	var v uint64
	for i := 0; ; i++ {
		if i >= 10 {
			return 0, fmt.Errorf("svndiff: varint too long")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("svndiff: reading varint: %w", err)
		}
		v = (v << 7) | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

// applyWindow decodes one svndiff window and returns the bytes it
// produces. priorTarget is every byte produced by earlier windows of
// the same diff, which target-copy instructions may address.
func applyWindow(source []byte, r *bytes.Reader, priorTarget []byte) ([]byte, error) {
	sourceOffset, err := readVarint(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: source view offset: %w", err)
	}
	sourceLen, err := readVarint(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: source view length: %w", err)
	}
	targetLen, err := readVarint(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: target view length: %w", err)
	}
	instrLen, err := readVarint(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: instructions length: %w", err)
	}
	newDataLen, err := readVarint(r)
	if err != nil {
		return nil, fmt.Errorf("svndiff: new data length: %w", err)
	}

	if sourceOffset+sourceLen > uint64(len(source)) {
		return nil, fmt.Errorf("svndiff: source view [%d,%d) out of bounds (len %d)",
			sourceOffset, sourceOffset+sourceLen, len(source))
	}
	sourceView := source[sourceOffset : sourceOffset+sourceLen]

	instrBytes := make([]byte, instrLen)
	if _, err := io.ReadFull(r, instrBytes); err != nil {
		return nil, fmt.Errorf("svndiff: reading instructions: %w", err)
	}
	newData := make([]byte, newDataLen)
	if _, err := io.ReadFull(r, newData); err != nil {
		return nil, fmt.Errorf("svndiff: reading new data: %w", err)
	}

	target := make([]byte, 0, targetLen)
	instrR := bytes.NewReader(instrBytes)
	newDataOff := 0

	for instrR.Len() > 0 {
		b, err := instrR.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("svndiff: reading instruction byte: %w", err)
		}
		code := op(b >> 6)
		length := uint64(b & 0x3f)
		if length == 0 {
			length, err = readVarint(instrR)
			if err != nil {
				return nil, fmt.Errorf("svndiff: instruction length: %w", err)
			}
		}

		switch code {
		case opSourceCopy:
			offset, err := readVarint(instrR)
			if err != nil {
				return nil, fmt.Errorf("svndiff: source-copy offset: %w", err)
			}
			if offset+length > uint64(len(sourceView)) {
				return nil, fmt.Errorf("svndiff: source-copy [%d,%d) out of bounds (view len %d)",
					offset, offset+length, len(sourceView))
			}
			target = append(target, sourceView[offset:offset+length]...)

		case opTargetCopy:
			// Offset addresses the logical target stream produced so
			// far across the whole file: earlier windows' output
			// (priorTarget), then this window's own output-so-far.
			offset, err := readVarint(instrR)
			if err != nil {
				return nil, fmt.Errorf("svndiff: target-copy offset: %w", err)
			}
			total := uint64(len(priorTarget) + len(target))
			if offset >= total {
				return nil, fmt.Errorf("svndiff: target-copy offset %d out of bounds (produced so far %d)",
					offset, total)
			}
			// Copy byte by byte: a target-copy may read bytes it is
			// itself still producing (a run-length expansion), so the
			// source and destination ranges can alias.
			for i := uint64(0); i < length; i++ {
				pos := offset + i
				var b byte
				if pos < uint64(len(priorTarget)) {
					b = priorTarget[pos]
				} else {
					b = target[pos-uint64(len(priorTarget))]
				}
				target = append(target, b)
			}

		case opNewData:
			if newDataOff+int(length) > len(newData) {
				return nil, fmt.Errorf("svndiff: new-data instruction overruns new data section")
			}
			target = append(target, newData[newDataOff:newDataOff+int(length)]...)
			newDataOff += int(length)

		default:
			return nil, fmt.Errorf("svndiff: reserved instruction code %d", code)
		}
	}

	if uint64(len(target)) != targetLen {
		return nil, fmt.Errorf("svndiff: window produced %d bytes, expected %d", len(target), targetLen)
	}
	return target, nil
}
