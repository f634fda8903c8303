package resume

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var errFault = errors.New("injected fault")

// memEndpoint keeps files in memory and can inject faults.
type memEndpoint struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	probeErr error
	// readFaultAfter makes readers fail once that many bytes were served.
	// Negative disables the fault.
	readFaultAfter int64
	// dropWrites makes sinks accept writes without storing them.
	dropWrites bool
	opened     int
	closed     int
}

func newMemEndpoint() *memEndpoint {
	return &memEndpoint{
		files:          make(map[string][]byte),
		dirs:           make(map[string]bool),
		readFaultAfter: -1,
	}
}

func (m *memEndpoint) put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
}

func (m *memEndpoint) get(path string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.files[path]...)
}

func (m *memEndpoint) Probe(_ context.Context, path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeErr != nil {
		return FileInfo{}, m.probeErr
	}
	if m.dirs[path] {
		return FileInfo{Exists: true, Size: 4096}, nil
	}
	data, ok := m.files[path]
	if !ok {
		return FileInfo{}, nil
	}
	return FileInfo{Exists: true, Regular: true, Size: int64(len(data))}, nil
}

func (m *memEndpoint) OpenReadAt(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	m.opened++
	var r io.Reader = bytes.NewReader(append([]byte(nil), data[offset:]...))
	if m.readFaultAfter >= 0 {
		r = &faultReader{r: r, left: m.readFaultAfter}
	}
	return &trackedCloser{Reader: r, ep: m}, nil
}

func (m *memEndpoint) OpenResume(_ context.Context, path string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[path] {
		return nil, errors.New("is a directory")
	}
	if _, ok := m.files[path]; !ok {
		m.files[path] = nil
	}
	m.opened++
	return &memSink{ep: m, path: path}, nil
}

type faultReader struct {
	r    io.Reader
	left int64
}

func (f *faultReader) Read(p []byte) (int, error) {
	if f.left <= 0 {
		return 0, errFault
	}
	if int64(len(p)) > f.left {
		p = p[:f.left]
	}
	n, err := f.r.Read(p)
	f.left -= int64(n)
	return n, err
}

type trackedCloser struct {
	io.Reader
	ep *memEndpoint
}

func (t *trackedCloser) Close() error {
	t.ep.mu.Lock()
	t.ep.closed++
	t.ep.mu.Unlock()
	return nil
}

type memSink struct {
	ep   *memEndpoint
	path string
}

func (s *memSink) Write(p []byte) (int, error) {
	s.ep.mu.Lock()
	defer s.ep.mu.Unlock()
	if !s.ep.dropWrites {
		s.ep.files[s.path] = append(s.ep.files[s.path], p...)
	}
	return len(p), nil
}

func (s *memSink) Close() error {
	s.ep.mu.Lock()
	s.ep.closed++
	s.ep.mu.Unlock()
	return nil
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
