package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// State is the lifecycle position of a Session.
type State int

const (
	Resolving State = iota
	Streaming
	Verifying
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Streaming:
		return "streaming"
	case Verifying:
		return "verifying"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tune a Session. The zero value is usable.
type Options struct {
	// ID is attached to every log record of the session.
	ID string
	// Buffer is the chunk buffer. A DefaultBufferSize buffer is allocated when empty.
	Buffer []byte
	// Resolved is called once the offset is known, before streaming.
	Resolved func(Plan)
	// Progress receives per-chunk updates.
	Progress ProgressFunc
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Result is what a session observed. Fields past the failing step are zero.
type Result struct {
	State         State
	LocalSize     int64
	RemoteSize    int64
	StartOffset   int64
	ExpectedTotal int64
	Transferred   int64
	FinalSize     int64
}

// Session performs one resumable transfer between a local and a remote path.
// A Session runs once; resuming after a failure means creating a new one,
// which re-probes both sides.
type Session struct {
	dir        Direction
	local      Endpoint
	remote     Endpoint
	localPath  string
	remotePath string
	opts       Options
	log        *slog.Logger

	res Result
	ran bool
}

// NewSession creates a session that has not touched either endpoint yet.
func NewSession(dir Direction, local Endpoint, localPath string, remote Endpoint, remotePath string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("direction", dir.String()),
		slog.String("local", localPath),
		slog.String("remote", remotePath),
	)
	if opts.ID != "" {
		logger = logger.With(slog.String("session", opts.ID))
	}
	return &Session{
		dir:        dir,
		local:      local,
		remote:     remote,
		localPath:  localPath,
		remotePath: remotePath,
		opts:       opts,
		log:        logger,
		res:        Result{State: Resolving},
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.res.State
}

// Direction returns the session direction.
func (s *Session) Direction() Direction {
	return s.dir
}

// Run drives the session to Completed or Failed. On failure the returned
// error is an *Error.
func (s *Session) Run(ctx context.Context) (Result, error) {
	if s.ran {
		return s.res, errors.New("resume: session already ran")
	}
	s.ran = true

	plan, err := s.resolve(ctx)
	if err != nil {
		return s.res, err
	}
	if err := s.stream(ctx, plan); err != nil {
		return s.res, err
	}
	if err := s.verify(ctx); err != nil {
		return s.res, err
	}
	s.res.State = Completed
	s.log.Info("transfer completed",
		slog.Int64("offset", s.res.StartOffset),
		slog.Int64("transferred", s.res.Transferred),
		slog.Int64("size", s.res.FinalSize),
	)
	return s.res, nil
}

func (s *Session) resolve(ctx context.Context) (Plan, error) {
	local, err := s.local.Probe(ctx, s.localPath)
	if err != nil {
		return Plan{}, s.fail(ErrIO, fmt.Errorf("probe local: %w", err))
	}
	remote, err := s.remote.Probe(ctx, s.remotePath)
	if err != nil {
		return Plan{}, s.fail(ErrTransport, fmt.Errorf("probe remote: %w", err))
	}
	s.res.LocalSize = sizeOf(local)
	s.res.RemoteSize = sizeOf(remote)

	plan, err := Resolve(s.dir, local, remote)
	if err != nil {
		failure := s.fail(err, nil)
		switch {
		case Done(failure):
			s.log.Info("destination already complete, nothing to transfer",
				slog.Int64("local_size", s.res.LocalSize),
				slog.Int64("remote_size", s.res.RemoteSize))
		case failure.Oversized():
			s.log.Warn("destination larger than source, check the file",
				slog.Int64("local_size", s.res.LocalSize),
				slog.Int64("remote_size", s.res.RemoteSize))
		}
		return Plan{}, failure
	}
	s.res.StartOffset = plan.StartOffset
	s.res.ExpectedTotal = plan.ExpectedTotal
	s.log.Info("resolved resume offset",
		slog.Int64("offset", plan.StartOffset),
		slog.Int64("total", plan.ExpectedTotal),
	)
	if s.opts.Resolved != nil {
		s.opts.Resolved(plan)
	}
	return plan, nil
}

func (s *Session) stream(ctx context.Context, plan Plan) error {
	s.res.State = Streaming
	src, srcPath, srcKind, dst, dstPath, dstKind := s.sides()

	r, err := src.OpenReadAt(ctx, srcPath, plan.StartOffset)
	if err != nil {
		return s.fail(srcKind, fmt.Errorf("open source: %w", err))
	}
	defer r.Close()

	w, err := dst.OpenResume(ctx, dstPath)
	if err != nil {
		return s.fail(dstKind, fmt.Errorf("open destination: %w", err))
	}

	var progress ProgressFunc
	if s.opts.Progress != nil {
		progress = func(done, total int64) {
			s.res.Transferred = done
			s.opts.Progress(done, total)
		}
	}
	n, copyErr := Copy(ctx, w, r, plan.Remaining(), s.opts.Buffer, progress)
	s.res.Transferred = n
	closeErr := w.Close()

	if copyErr != nil {
		kind := ErrIO
		if errors.Is(copyErr, ErrCancelled) {
			kind = ErrCancelled
		}
		s.log.Warn("transfer interrupted",
			slog.Int64("transferred", n),
			slog.Int64("remaining", plan.Remaining()-n),
			slog.Any("err", copyErr))
		return s.fail(kind, copyErr)
	}
	if closeErr != nil {
		return s.fail(ErrIO, fmt.Errorf("close destination: %w", closeErr))
	}
	return nil
}

func (s *Session) verify(ctx context.Context) error {
	s.res.State = Verifying
	_, _, _, dst, dstPath, dstKind := s.sides()
	fi, err := dst.Probe(ctx, dstPath)
	if err != nil {
		return s.fail(dstKind, fmt.Errorf("probe destination: %w", err))
	}
	s.res.FinalSize = sizeOf(fi)
	if err := Verify(s.res.FinalSize, s.res.ExpectedTotal); err != nil {
		s.log.Error("size verification failed",
			slog.Int64("final", s.res.FinalSize),
			slog.Int64("expected", s.res.ExpectedTotal))
		return s.fail(ErrVerificationFailed, nil)
	}
	return nil
}

func (s *Session) sides() (src Endpoint, srcPath string, srcKind error, dst Endpoint, dstPath string, dstKind error) {
	if s.dir == Upload {
		return s.local, s.localPath, ErrIO, s.remote, s.remotePath, ErrTransport
	}
	return s.remote, s.remotePath, ErrTransport, s.local, s.localPath, ErrIO
}

func (s *Session) fail(kind, cause error) *Error {
	s.res.State = Failed
	return &Error{
		Kind:        kind,
		Direction:   s.dir,
		LocalPath:   s.localPath,
		RemotePath:  s.remotePath,
		LocalSize:   s.res.LocalSize,
		RemoteSize:  s.res.RemoteSize,
		StartOffset: s.res.StartOffset,
		Expected:    s.res.ExpectedTotal,
		Transferred: s.res.Transferred,
		FinalSize:   s.res.FinalSize,
		Err:         cause,
	}
}
