// Package termio moves terminal writes onto a background goroutine so a slow
// terminal never stalls the transfer loop. Log records and progress lines
// sharing one Writer keep their relative order.
package termio

import (
	"io"
	"os"
	"sync"
)

// Writer queues writes and flushes them in order to the underlying writer.
type Writer struct {
	out io.Writer
	ch  chan chunk

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// chunk is one queued write, or a flush marker when ack is set.
type chunk struct {
	buf []byte
	ack chan struct{}
}

// New starts a Writer that forwards to out.
func New(out io.Writer) *Writer {
	w := &Writer{
		out:  out,
		ch:   make(chan chunk, 1024),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for c := range w.ch {
		if c.ack != nil {
			close(c.ack)
			continue
		}
		_, _ = w.out.Write(c.buf)
	}
}

// Write copies p into the queue. It only blocks when the queue is full.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- chunk{buf: buf}
	return len(p), nil
}

// Flush blocks until every write queued before it has reached the
// underlying writer. It is a no-op after Close.
func (w *Writer) Flush() error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	ack := make(chan struct{})
	w.ch <- chunk{ack: ack}
	w.mu.RUnlock()
	<-ack
	return nil
}

// File returns the underlying file, or nil when out is not one. Terminal
// detection uses it.
func (w *Writer) File() *os.File {
	f, _ := w.out.(*os.File)
	return f
}

// Close flushes everything queued and stops the goroutine. Later writes
// fail with os.ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}
