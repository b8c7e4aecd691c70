// Package bufutil provides the bounded message-body buffer the filter
// accumulates chunks into before a transformation runs.
package bufutil

import "bytes"

// Buffer accumulates body chunks for one message phase. The zero value
// is ready to use. Not safe for concurrent use; a phase runs on a
// single stream thread.
type Buffer struct {
	buf bytes.Buffer
}

// Append adds a chunk to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.buf.Write(p)
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// String materializes the buffered body as a string.
func (b *Buffer) String() string {
	return b.buf.String()
}

// Bytes returns the buffered body. The slice is only valid until the
// next mutation.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Drain discards all buffered content.
func (b *Buffer) Drain() {
	b.buf.Reset()
}

// Replace swaps the buffered content for p.
func (b *Buffer) Replace(p []byte) {
	b.buf.Reset()
	b.buf.Write(p)
}
