package ringbuf

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestReadWriteRoundTrip(t *testing.T) {
	b := New(16)

	if _, err := b.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	out := make([]byte, 5)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if n != 5 || string(out) != "hello" {
		t.Errorf("Read() = %q (%d bytes), want %q", out[:n], n, "hello")
	}
}

func TestOrderPreservedAcrossGoroutines(t *testing.T) {
	// Push random data through a small buffer from a producer goroutine
	// and verify the consumer sees identical bytes in identical order.
	input := make([]byte, 64*1024)
	if _, err := rand.Read(input); err != nil {
		t.Fatal(err)
	}

	b := New(777) // deliberately odd capacity to exercise wrap-around

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		src := input
		for len(src) > 0 {
			chunk := 313
			if chunk > len(src) {
				chunk = len(src)
			}
			if _, err := b.Write(src[:chunk]); err != nil {
				t.Errorf("Write() error: %v", err)
				return
			}
			src = src[chunk:]
		}
		b.CloseWrite()
	}()

	got, err := io.ReadAll(b)
	wg.Wait()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if !bytes.Equal(got, input) {
		t.Error("consumer bytes differ from producer bytes")
	}
}

func TestCapacityInvariant(t *testing.T) {
	b := New(8)

	if _, err := b.Write(make([]byte, 8)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if b.Buffered() != 8 {
		t.Errorf("Buffered() = %d, want 8", b.Buffered())
	}

	// A further write must block until the consumer makes room.
	wrote := make(chan struct{})
	go func() {
		b.Write([]byte{0xFF}) //nolint:errcheck
		close(wrote)
	}()

	select {
	case <-wrote:
		t.Fatal("Write() completed on a full buffer")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := b.Read(make([]byte, 4)); err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	select {
	case <-wrote:
	case <-time.After(time.Second):
		t.Fatal("Write() still blocked after space was freed")
	}

	if got := b.Buffered(); got > b.Cap() {
		t.Errorf("Buffered() = %d exceeds Cap() = %d", got, b.Cap())
	}
}

func TestReadBlocksUntilData(t *testing.T) {
	b := New(16)

	got := make(chan []byte, 1)
	go func() {
		out := make([]byte, 4)
		n, err := b.Read(out)
		if err != nil {
			t.Errorf("Read() error: %v", err)
		}
		got <- out[:n]
	}()

	select {
	case <-got:
		t.Fatal("Read() returned before any data was written")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := b.Write([]byte("data")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	select {
	case out := <-got:
		if string(out) != "data" {
			t.Errorf("Read() = %q, want %q", out, "data")
		}
	case <-time.After(time.Second):
		t.Fatal("Read() did not unblock after write")
	}
}

func TestCloseWriteDrainsThenEOF(t *testing.T) {
	b := New(16)
	b.Write([]byte("tail")) //nolint:errcheck
	b.CloseWrite()

	out := make([]byte, 16)
	n, err := b.Read(out)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(out[:n]) != "tail" {
		t.Errorf("Read() = %q, want %q", out[:n], "tail")
	}

	if _, err := b.Read(out); err != io.EOF {
		t.Errorf("Read() after drain = %v, want io.EOF", err)
	}
}

func TestCloseWithErrorSurfacesAfterDrain(t *testing.T) {
	streamErr := errors.New("connection reset")

	b := New(16)
	b.Write([]byte("ab")) //nolint:errcheck
	b.CloseWithError(streamErr)

	out := make([]byte, 2)
	if _, err := b.Read(out); err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if _, err := b.Read(out); !errors.Is(err, streamErr) {
		t.Errorf("Read() after drain = %v, want %v", err, streamErr)
	}
}

func TestCloseUnblocksBothEnds(t *testing.T) {
	b := New(4)
	b.Write(make([]byte, 4)) //nolint:errcheck

	done := make(chan error, 1)
	go func() {
		_, err := b.Write([]byte{1}) // blocks: full
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, ErrClosed) {
			t.Errorf("unblocked with %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close() did not unblock the writer")
	}

	if _, err := b.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() after Close = %v, want ErrClosed", err)
	}
}

func TestWriteAfterCloseWrite(t *testing.T) {
	b := New(4)
	b.CloseWrite()
	if _, err := b.Write([]byte{1}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Write() after CloseWrite = %v, want io.ErrClosedPipe", err)
	}
}
