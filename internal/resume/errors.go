package resume

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport indicates the remote collaborator failed outside of streaming.
	ErrTransport = errors.New("transport error")
	// ErrRemoteNotFound indicates a download source that does not exist.
	ErrRemoteNotFound = errors.New("remote file does not exist")
	// ErrRemoteNotRegular indicates a remote path that is not a regular file.
	ErrRemoteNotRegular = errors.New("remote path is not a regular file")
	// ErrLocalNotFound indicates an upload source that does not exist.
	ErrLocalNotFound = errors.New("local file does not exist")
	// ErrLocalNotRegular indicates a local path that is not a regular file.
	ErrLocalNotRegular = errors.New("local path is not a regular file")
	// ErrAlreadyComplete indicates the destination is already as large as the source, or larger.
	ErrAlreadyComplete = errors.New("destination already complete or oversized")
	// ErrIO indicates a read or write fault while streaming or opening local files.
	ErrIO = errors.New("transfer i/o error")
	// ErrCancelled indicates the session context ended mid-stream.
	ErrCancelled = errors.New("transfer cancelled")
	// ErrVerificationFailed indicates the destination size does not match the source after copying.
	ErrVerificationFailed = errors.New("destination size verification failed")
)

// Error describes a failed session with enough context for the caller to
// decide whether to run it again.
type Error struct {
	Kind        error
	Direction   Direction
	LocalPath   string
	RemotePath  string
	LocalSize   int64
	RemoteSize  int64
	StartOffset int64
	Expected    int64
	Transferred int64
	FinalSize   int64
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Direction, e.Kind)
	switch {
	case errors.Is(e.Kind, ErrAlreadyComplete):
		if e.Oversized() {
			fmt.Fprintf(&b, " (destination larger than source: local=%d remote=%d)", e.LocalSize, e.RemoteSize)
		} else {
			fmt.Fprintf(&b, " (local=%d remote=%d)", e.LocalSize, e.RemoteSize)
		}
	case errors.Is(e.Kind, ErrVerificationFailed):
		fmt.Fprintf(&b, " (final=%d expected=%d)", e.FinalSize, e.Expected)
	case errors.Is(e.Kind, ErrIO), errors.Is(e.Kind, ErrCancelled):
		fmt.Fprintf(&b, " after %d of %d bytes from offset %d", e.Transferred, e.Expected-e.StartOffset, e.StartOffset)
	}
	fmt.Fprintf(&b, ": local=%q remote=%q", e.LocalPath, e.RemotePath)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Oversized reports an ErrAlreadyComplete where the destination is strictly
// larger than the source. Such a destination is not a prefix of the source
// and needs operator attention.
func (e *Error) Oversized() bool {
	if !errors.Is(e.Kind, ErrAlreadyComplete) {
		return false
	}
	if e.Direction == Download {
		return e.LocalSize > e.RemoteSize
	}
	return e.RemoteSize > e.LocalSize
}

// Retryable reports whether running a new session for the same paths may
// make further progress.
func Retryable(err error) bool {
	return errors.Is(err, ErrIO) || errors.Is(err, ErrTransport)
}

// Done reports whether err means the destination already holds the whole
// source, which callers may treat as success.
func Done(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return errors.Is(e.Kind, ErrAlreadyComplete) && !e.Oversized()
}
