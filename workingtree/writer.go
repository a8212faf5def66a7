package workingtree

import (
	"bufio"
	"os"
)

// bufferedWriteCloser wraps a file in a bufio.Writer so small svndiff
// target-window writes don't each become a syscall: batch up small
// writes, flush on close, as a synchronous bufio.Writer since the
// Replay Editor writes to one file at a time and has no need for a
// background-goroutine sink.
type bufferedWriteCloser struct {
	f *os.File
	w *bufio.Writer
}

func newBufferedWriteCloser(f *os.File) *bufferedWriteCloser {
	return &bufferedWriteCloser{f: f, w: bufio.NewWriterSize(f, 4*1024)}
}

func (b *bufferedWriteCloser) Write(p []byte) (int, error) {
	return b.w.Write(p)
}

func (b *bufferedWriteCloser) Close() error {
	if err := b.w.Flush(); err != nil {
		b.f.Close()
		return err
	}
	return b.f.Close()
}
