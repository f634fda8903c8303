// Package app drives resumable transfers: it dials the server, runs one
// resume session per attempt and retries the ones that can make progress.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/google/uuid"

	"github.com/sheerbytes/sftpresume/internal/bufpool"
	"github.com/sheerbytes/sftpresume/internal/progress"
	"github.com/sheerbytes/sftpresume/internal/resume"
	"github.com/sheerbytes/sftpresume/internal/stats"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
)

// Endpoint is a remote side that owns its connection.
type Endpoint interface {
	resume.Endpoint
	io.Closer
}

// ErrConnect indicates a dial failure that another attempt cannot fix.
var ErrConnect = errors.New("cannot connect")

// Dialer opens a new remote endpoint. It is called once per attempt. Dial
// errors are retried unless wrapped with backoff.Permanent.
type Dialer func(ctx context.Context) (Endpoint, error)

// Request names one transfer.
type Request struct {
	Direction  resume.Direction
	LocalPath  string
	RemotePath string
}

// Options tune a Runner.
type Options struct {
	// Retries is the number of extra attempts after a retryable failure.
	Retries         int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	BufferSize      int
	// Progress receives rendered progress lines. Nil disables them.
	Progress         io.Writer
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

// Runner executes transfer requests against one local endpoint.
type Runner struct {
	dial    Dialer
	local   resume.Endpoint
	opts    Options
	pool    *bufpool.Pool
	metrics *stats.Metrics
	log     *slog.Logger
	newID   func() string
}

// NewRunner creates a runner. Zero options take their defaults.
func NewRunner(dial Dialer, local resume.Endpoint, opts Options) *Runner {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = defaultMaxInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = resume.DefaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		dial:    dial,
		local:   local,
		opts:    opts,
		pool:    bufpool.New(opts.BufferSize),
		metrics: stats.New(),
		log:     logger,
		newID:   uuid.NewString,
	}
}

// Metrics returns the counters accumulated by Run.
func (r *Runner) Metrics() *stats.Metrics {
	return r.metrics
}

// Close releases the metrics ticker.
func (r *Runner) Close() {
	r.metrics.Close()
}

// Run performs req, retrying with exponential backoff while the failure is
// retryable. Every attempt re-probes both sides, so a retry continues from
// whatever the previous attempt managed to write. The result and error are
// those of the last attempt.
func (r *Runner) Run(ctx context.Context, req Request) (resume.Result, error) {
	var (
		res     resume.Result
		lastErr error
		attempt int
	)
	op := func() error {
		attempt++
		res, lastErr = r.attempt(ctx, req, attempt)
		if lastErr == nil {
			return nil
		}
		if !resume.Retryable(lastErr) || ctx.Err() != nil {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn("transfer attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("err", err))
	}
	b := backoff.WithContext(backoff.WithMaxRetries(r.backOff(), uint64(r.opts.Retries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil && lastErr == nil {
		lastErr = err
	}
	return res, lastErr
}

func (r *Runner) backOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.opts.InitialInterval,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         r.opts.MaxInterval,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (r *Runner) attempt(ctx context.Context, req Request, attempt int) (resume.Result, error) {
	r.metrics.Attempts.Inc(1)
	id := r.newID()
	logger := r.log.With(slog.String("session", id), slog.Int("attempt", attempt))

	remote, err := r.dial(ctx)
	if err != nil {
		r.metrics.Failed.Inc(1)
		kind := resume.ErrTransport
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			kind, err = ErrConnect, perm.Err
		}
		return resume.Result{State: resume.Failed}, &resume.Error{
			Kind:       kind,
			Direction:  req.Direction,
			LocalPath:  req.LocalPath,
			RemotePath: req.RemotePath,
			Err:        fmt.Errorf("dial: %w", err),
		}
	}
	defer func() {
		if cerr := remote.Close(); cerr != nil {
			logger.Debug("close remote", slog.Any("err", cerr))
		}
	}()

	buf := r.pool.Get()
	defer r.pool.Put(buf)

	var reporter *progress.Reporter
	if r.opts.Progress != nil {
		reporter = progress.NewReporter(r.opts.Progress).WithInterval(r.opts.ProgressInterval)
	}
	src, dst := req.RemotePath, req.LocalPath
	if req.Direction == resume.Upload {
		src, dst = req.LocalPath, req.RemotePath
	}

	var prev int64
	session := resume.NewSession(req.Direction, r.local, req.LocalPath, remote, req.RemotePath, resume.Options{
		Buffer: buf,
		Logger: logger,
		Resolved: func(p resume.Plan) {
			if reporter != nil {
				reporter.Begin(src, dst, p.StartOffset, p.ExpectedTotal)
			}
		},
		Progress: func(done, total int64) {
			r.metrics.AddBytes(done - prev)
			prev = done
			if reporter != nil {
				reporter.Update(done, total)
			}
		},
	})
	res, err := session.Run(ctx)
	r.metrics.AddBytes(res.Transferred - prev)
	if reporter != nil {
		reporter.End(err)
	}

	switch {
	case err == nil:
		r.metrics.Completed.Inc(1)
	case resume.Done(err):
		r.metrics.AlreadyComplete.Inc(1)
	default:
		r.metrics.Failed.Inc(1)
	}
	return res, err
}

// ExitCode maps a Run outcome to a process exit status. A destination that
// already matches the source counts as success.
func ExitCode(err error) int {
	if err == nil || resume.Done(err) {
		return 0
	}
	return 1
}
