package svndiff_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivefeed/svnloader/svndiff"
)

// window builds one svndiff1 window from raw field values, instructions
// and new-data bytes, for use as a test fixture.
func window(sourceOff, sourceLen, targetLen uint64, instructions, newData []byte) []byte {
	var b bytes.Buffer
	putVarint(&b, sourceOff)
	putVarint(&b, sourceLen)
	putVarint(&b, targetLen)
	putVarint(&b, uint64(len(instructions)))
	putVarint(&b, uint64(len(newData)))
	b.Write(instructions)
	b.Write(newData)
	return b.Bytes()
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

// instrByte packs an instruction's (code, length) into one byte when
// length fits in 6 bits, as the tests only need small lengths.
func instrByte(code byte, length byte) byte {
	return (code << 6) | (length & 0x3f)
}

func TestApplyNewDataOnly(t *testing.T) {
	instructions := []byte{instrByte(2, 5)} // new-data, length 5
	w := window(0, 0, 5, instructions, []byte("hello"))
	diff := append([]byte{'S', 'V', 'N', 0}, w...)

	var out bytes.Buffer
	require.NoError(t, svndiff.Apply(nil, diff, &out))
	assert.Equal(t, "hello", out.String())
}

func TestApplySourceCopy(t *testing.T) {
	source := []byte("ABCDEFGH")
	// copy source[2:6] ("CDEF")
	instructions := []byte{instrByte(0, 4), 2}
	w := window(0, uint64(len(source)), 4, instructions, nil)
	diff := append([]byte{'S', 'V', 'N', 0}, w...)

	var out bytes.Buffer
	require.NoError(t, svndiff.Apply(source, diff, &out))
	assert.Equal(t, "CDEF", out.String())
}

func TestApplyMixedSourceAndNewData(t *testing.T) {
	source := []byte("A\nB\n")
	// source-copy source[0:2] ("A\n"), new-data "X\n", source-copy source[2:4] ("B\n")
	instructions := []byte{
		instrByte(0, 2), 0,
		instrByte(2, 2),
		instrByte(0, 2), 2,
	}
	w := window(0, uint64(len(source)), 6, instructions, []byte("X\n"))
	diff := append([]byte{'S', 'V', 'N', 0}, w...)

	var out bytes.Buffer
	require.NoError(t, svndiff.Apply(source, diff, &out))
	assert.Equal(t, "A\nX\nB\n", out.String())
}

func TestApplyTargetCopyRunLengthExpansion(t *testing.T) {
	// new-data "A", then target-copy offset 0 length 4 -> run-length "AAAAA"
	instructions := []byte{
		instrByte(2, 1),
		instrByte(1, 4), 0,
	}
	w := window(0, 0, 5, instructions, []byte("A"))
	diff := append([]byte{'S', 'V', 'N', 0}, w...)

	var out bytes.Buffer
	require.NoError(t, svndiff.Apply(nil, diff, &out))
	assert.Equal(t, "AAAAA", out.String())
}

func TestApplyAppliesEncodedFulltext(t *testing.T) {
	diff := svndiff.EncodeFulltext([]byte("hello world\n"))

	var out bytes.Buffer
	require.NoError(t, svndiff.Apply(nil, diff, &out))
	assert.Equal(t, "hello world\n", out.String())
}

func TestApplyAppliesEncodedEmptyFulltext(t *testing.T) {
	diff := svndiff.EncodeFulltext(nil)

	var out bytes.Buffer
	require.NoError(t, svndiff.Apply(nil, diff, &out))
	assert.Equal(t, "", out.String())
}

func TestApplyRejectsBadMagic(t *testing.T) {
	var out bytes.Buffer
	err := svndiff.Apply(nil, []byte("nope"), &out)
	assert.Error(t, err)
}

func TestApplyRejectsOutOfBoundsSourceCopy(t *testing.T) {
	source := []byte("AB")
	instructions := []byte{instrByte(0, 4), 0}
	w := window(0, uint64(len(source)), 4, instructions, nil)
	diff := append([]byte{'S', 'V', 'N', 0}, w...)

	var out bytes.Buffer
	err := svndiff.Apply(source, diff, &out)
	assert.Error(t, err)
}
