// Package ringbuf provides a bounded byte buffer decoupling the network
// fetcher from the decoder. Single producer, single consumer: Write blocks
// while the buffer is full, Read blocks while it is empty and the producer
// has not signalled end of stream.
package ringbuf

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Write after the buffer has been closed, and by
// Read once closed and drained.
var ErrClosed = errors.New("ringbuf: buffer closed")

// Buffer is a fixed-capacity FIFO of bytes. Bytes come out in the exact
// order they went in; the stored count never exceeds the capacity.
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf  []byte
	head int // read position
	n    int // bytes stored

	eof    bool  // producer finished, drain remaining bytes
	closed bool  // consumer aborted, both ends unblocked
	err    error // producer error delivered to the consumer after drain
}

// New creates a buffer holding up to capacity bytes.
func New(capacity int) *Buffer {
	b := &Buffer{buf: make([]byte, capacity)}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Write appends p to the buffer, blocking while it is full. It returns
// ErrClosed if Close was called, or io.ErrClosedPipe after CloseWrite.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for len(p) > 0 {
		for b.n == len(b.buf) && !b.closed && !b.eof {
			b.notFull.Wait()
		}
		if b.closed {
			return written, ErrClosed
		}
		if b.eof {
			return written, io.ErrClosedPipe
		}

		chunk := len(b.buf) - b.n
		if chunk > len(p) {
			chunk = len(p)
		}

		end := (b.head + b.n) % len(b.buf)
		right := len(b.buf) - end
		if right > chunk {
			right = chunk
		}
		copy(b.buf[end:end+right], p[:right])
		if right < chunk {
			copy(b.buf[0:chunk-right], p[right:chunk])
		}

		b.n += chunk
		p = p[chunk:]
		written += chunk
		b.notEmpty.Broadcast()
	}
	return written, nil
}

// Read fills p with buffered bytes, blocking while the buffer is empty and
// the producer is still active. Once the producer has finished and the
// buffer is drained it returns io.EOF, or the error passed to
// CloseWithError.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.n == 0 && !b.eof && !b.closed {
		b.notEmpty.Wait()
	}
	if b.closed {
		return 0, ErrClosed
	}
	if b.n == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}

	chunk := b.n
	if chunk > len(p) {
		chunk = len(p)
	}

	right := len(b.buf) - b.head
	if right > chunk {
		right = chunk
	}
	copy(p[:right], b.buf[b.head:b.head+right])
	if right < chunk {
		copy(p[right:chunk], b.buf[:chunk-right])
	}

	b.head = (b.head + chunk) % len(b.buf)
	b.n -= chunk
	b.notFull.Broadcast()
	return chunk, nil
}

// CloseWrite marks the end of the stream. The consumer drains the remaining
// bytes, then receives io.EOF.
func (b *Buffer) CloseWrite() {
	b.closeWrite(nil)
}

// CloseWithError marks the end of the stream with an error. The consumer
// drains the remaining bytes, then receives err instead of io.EOF.
func (b *Buffer) CloseWithError(err error) {
	b.closeWrite(err)
}

func (b *Buffer) closeWrite(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.eof || b.closed {
		return
	}
	b.eof = true
	b.err = err
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Close aborts the buffer from the consumer side, discarding buffered data
// and unblocking both ends. Used when a pipeline is torn down.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.n = 0
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
	return nil
}

// Buffered returns the number of unread bytes currently stored.
func (b *Buffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// EOF reports whether the producer has signalled end of stream.
func (b *Buffer) EOF() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eof
}
