// Package remote implements the SFTP side of a transfer.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/sheerbytes/sftpresume/internal/resume"
)

var (
	// ErrConfig marks connection settings that cannot work, whatever the
	// network does: missing host or user, unreadable keys or known_hosts.
	ErrConfig = errors.New("remote: invalid connection settings")
	// ErrRejected marks a server whose host key failed verification or that
	// refused every credential offered.
	ErrRejected = errors.New("remote: connection rejected")
)

// Permanent reports whether a Dial error will recur on every attempt.
func Permanent(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrRejected)
}

// Config describes how to reach and authenticate against an SFTP server.
type Config struct {
	Host string
	Port int
	User string

	Password     string
	IdentityFile string
	Passphrase   string
	UseAgent     bool
	// Prompt asks for secrets that are not configured. Nil disables prompting.
	Prompt func(question string) (string, error)

	KnownHosts            string
	InsecureIgnoreHostKey bool

	// Algorithm overrides. Empty means the x/crypto defaults.
	Ciphers      []string
	KeyExchanges []string
	MACs         []string

	Timeout   time.Duration
	MaxPacket int
}

// Addr returns host:port.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Client is an SFTP session implementing resume.Endpoint.
type Client struct {
	sftp    *sftp.Client
	closers []io.Closer
}

// NewClient wraps an established SFTP client. Closing the returned Client
// closes sc and then closers in order.
func NewClient(sc *sftp.Client, closers ...io.Closer) *Client {
	return &Client{sftp: sc, closers: closers}
}

// Dial connects to the server described by cfg and opens an SFTP subsystem.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrConfig)
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("%w: user is required", ErrConfig)
	}

	auth, authClosers, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg, logger)
	if err != nil {
		closeAll(authClosers)
		return nil, err
	}
	var hostKeyErr error
	clientConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: auth,
		HostKeyCallback: func(hostname string, raddr net.Addr, key ssh.PublicKey) error {
			hostKeyErr = hostKey(hostname, raddr, key)
			return hostKeyErr
		},
		Timeout:         cfg.Timeout,
		Config: ssh.Config{
			Ciphers:      cfg.Ciphers,
			KeyExchanges: cfg.KeyExchanges,
			MACs:         cfg.MACs,
		},
	}

	addr := cfg.Addr()
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAll(authClosers)
		return nil, fmt.Errorf("remote: dial %s: %w", addr, err)
	}
	if deadline, ok := handshakeDeadline(ctx, cfg.Timeout); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		closeAll(authClosers)
		return nil, fmt.Errorf("remote: ssh handshake with %s: %w", addr, handshakeError(err, hostKeyErr))
	}
	_ = conn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	var opts []sftp.ClientOption
	if cfg.MaxPacket > 0 {
		opts = append(opts, sftp.MaxPacket(cfg.MaxPacket))
	}
	sc, err := sftp.NewClient(sshClient, opts...)
	if err != nil {
		_ = sshClient.Close()
		closeAll(authClosers)
		return nil, fmt.Errorf("remote: start sftp subsystem: %w", err)
	}
	logger.Debug("sftp session established", slog.String("addr", addr), slog.String("user", cfg.User))
	return NewClient(sc, append([]io.Closer{sshClient}, authClosers...)...), nil
}

// handshakeError marks host key and authentication failures as rejections.
// x/crypto reports exhausted auth methods only as text.
func handshakeError(err, hostKeyErr error) error {
	switch {
	case hostKeyErr != nil && !errors.Is(err, ErrRejected):
		return fmt.Errorf("%w (%w)", hostKeyErr, err)
	case strings.Contains(err.Error(), "unable to authenticate"):
		return fmt.Errorf("%w: %w", ErrRejected, err)
	default:
		return err
	}
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		t := time.Now().Add(timeout)
		if !ok || t.Before(deadline) {
			return t, true
		}
	}
	return deadline, ok
}

// Probe implements resume.Endpoint using lstat, so symlinks are not
// regular files.
func (c *Client) Probe(_ context.Context, path string) (resume.FileInfo, error) {
	fi, err := c.sftp.Lstat(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return resume.FileInfo{}, nil
	default:
		return resume.FileInfo{}, fmt.Errorf("remote: lstat %q: %w", path, err)
	}
	return resume.FileInfo{
		Exists:  true,
		Regular: fi.Mode().IsRegular(),
		Size:    fi.Size(),
	}, nil
}

// OpenReadAt implements resume.Endpoint.
func (c *Client) OpenReadAt(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := c.sftp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("remote: open %q: %w", path, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("remote: seek %q to %d: %w", path, offset, err)
		}
	}
	return f, nil
}

// OpenResume implements resume.Endpoint. The file is opened without
// truncation and positioned at its current size, so writes land after the
// bytes already on the server.
func (c *Client) OpenResume(_ context.Context, path string) (io.WriteCloser, error) {
	f, err := c.sftp.OpenFile(path, os.O_WRONLY|os.O_CREATE)
	if err != nil {
		return nil, fmt.Errorf("remote: open %q for writing: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("remote: fstat %q: %w", path, err)
	}
	if _, err := f.Seek(fi.Size(), io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("remote: seek %q to %d: %w", path, fi.Size(), err)
	}
	return f, nil
}

// Close ends the SFTP session and the underlying connection.
func (c *Client) Close() error {
	err := c.sftp.Close()
	for _, cl := range c.closers {
		if cerr := cl.Close(); cerr != nil && err == nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	return err
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

var _ resume.Endpoint = (*Client)(nil)
