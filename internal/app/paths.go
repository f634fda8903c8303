package app

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/sheerbytes/sftpresume/internal/resume"
)

// NewRequest builds a request from command arguments. src is the remote
// path for a download and the local path for an upload; an empty dst
// defaults to the base name of src. The local path is made absolute.
func NewRequest(dir resume.Direction, src, dst string) (Request, error) {
	if strings.TrimSpace(src) == "" {
		return Request{}, fmt.Errorf("source path is required")
	}
	req := Request{Direction: dir}
	switch dir {
	case resume.Download:
		req.RemotePath = src
		req.LocalPath = dst
		if req.LocalPath == "" {
			req.LocalPath = remoteBase(src)
		}
	case resume.Upload:
		req.LocalPath = src
		req.RemotePath = dst
		if req.RemotePath == "" {
			req.RemotePath = filepath.Base(src)
		}
	default:
		return Request{}, fmt.Errorf("unknown direction %v", dir)
	}
	if req.LocalPath == "" || req.RemotePath == "" || req.RemotePath == "/" {
		return Request{}, fmt.Errorf("cannot derive destination from %q", src)
	}

	abs, err := filepath.Abs(req.LocalPath)
	if err != nil {
		return Request{}, fmt.Errorf("local path %q: %w", req.LocalPath, err)
	}
	req.LocalPath = abs
	return req, nil
}

// Remote paths are always slash separated.
func remoteBase(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
