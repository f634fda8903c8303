// Package localfs exposes a go-billy filesystem as a transfer endpoint.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/sheerbytes/sftpresume/internal/resume"
)

const filePerm = 0o644

// FS implements resume.Endpoint on top of a billy.Filesystem.
type FS struct {
	fs billy.Filesystem
}

// New wraps fs.
func New(fs billy.Filesystem) *FS {
	return &FS{fs: fs}
}

// OS returns an FS rooted at "/". Paths handed to it must be absolute.
func OS() *FS {
	return New(osfs.New("/"))
}

// Memory returns an FS backed by memory.
func Memory() *FS {
	return New(memfs.New())
}

// Filesystem returns the underlying billy filesystem.
func (l *FS) Filesystem() billy.Filesystem {
	return l.fs
}

// Probe implements resume.Endpoint.
func (l *FS) Probe(_ context.Context, path string) (resume.FileInfo, error) {
	fi, err := l.fs.Stat(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return resume.FileInfo{}, nil
	default:
		return resume.FileInfo{}, fmt.Errorf("localfs: stat %q: %w", path, err)
	}
	return resume.FileInfo{
		Exists:  true,
		Regular: fi.Mode().IsRegular(),
		Size:    fi.Size(),
	}, nil
}

// OpenReadAt implements resume.Endpoint.
func (l *FS) OpenReadAt(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("localfs: open %q: %w", path, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("localfs: seek %q to %d: %w", path, offset, err)
		}
	}
	return f, nil
}

// OpenResume implements resume.Endpoint. Writes are appended after the
// bytes already in the file.
func (l *FS) OpenResume(_ context.Context, path string) (io.WriteCloser, error) {
	f, err := l.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("localfs: openfile %q: %w", path, err)
	}
	return f, nil
}

var _ resume.Endpoint = (*FS)(nil)
