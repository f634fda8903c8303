package resume

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultBufferSize is the chunk size used when no buffer is supplied.
const DefaultBufferSize = 1024 * 1024

// maxEmptyReads bounds consecutive (0, nil) reads before Copy gives up.
const maxEmptyReads = 100

// ProgressFunc is called after each chunk is written. done counts bytes
// moved by this copy, total is the number of bytes the copy expects to move.
type ProgressFunc func(done, total int64)

// Copy streams at most remaining bytes from src to dst, one chunk at a time.
// It returns the number of bytes written to dst. A read or write fault
// returns an error wrapping ErrIO, a done ctx returns one wrapping
// ErrCancelled; in both cases the count covers every byte written so far.
// A source that ends before remaining bytes is not an error here; that is
// caught by verification.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, remaining int64, buf []byte, onProgress ProgressFunc) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, DefaultBufferSize)
	}
	var written int64
	empty := 0
	for written < remaining {
		select {
		case <-ctx.Done():
			return written, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		default:
		}

		chunk := int64(len(buf))
		if left := remaining - written; chunk > left {
			chunk = left
		}
		n, rerr := src.Read(buf[:chunk])
		if n == 0 && rerr == nil {
			empty++
			if empty >= maxEmptyReads {
				return written, fmt.Errorf("%w: read: %w", ErrIO, io.ErrNoProgress)
			}
			continue
		}
		empty = 0
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			if wn > 0 {
				written += int64(wn)
			}
			if werr == nil && wn < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, fmt.Errorf("%w: write: %w", ErrIO, werr)
			}
			if onProgress != nil {
				onProgress(written, remaining)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("%w: read: %w", ErrIO, rerr)
		}
	}
	return written, nil
}
