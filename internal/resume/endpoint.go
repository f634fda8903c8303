// Package resume moves a single file between a local and a remote endpoint,
// continuing from the bytes the destination already holds.
package resume

import (
	"context"
	"fmt"
	"io"
)

// Direction selects which side of a session is the source.
type Direction int

const (
	// Download copies the remote file into the local path.
	Download Direction = iota
	// Upload copies the local file into the remote path.
	Upload
)

func (d Direction) String() string {
	switch d {
	case Download:
		return "download"
	case Upload:
		return "upload"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// FileInfo is the result of probing a path. A missing path is reported
// with Exists=false and Size=0, not as an error.
type FileInfo struct {
	Exists  bool
	Regular bool
	Size    int64
}

// Endpoint is one side of a transfer: either the local filesystem or the
// remote file service.
type Endpoint interface {
	// Probe returns existence, type and size of path.
	Probe(ctx context.Context, path string) (FileInfo, error)

	// OpenReadAt opens path for reading starting at offset.
	OpenReadAt(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// OpenResume opens path for writing after its existing bytes,
	// creating it when absent.
	OpenResume(ctx context.Context, path string) (io.WriteCloser, error)
}
