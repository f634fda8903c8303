package remote

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// authMethods builds the auth chain in the order agent, key file,
// password. Returned closers release the agent connection.
func authMethods(cfg Config) ([]ssh.AuthMethod, []io.Closer, error) {
	var methods []ssh.AuthMethod
	var closers []io.Closer

	if cfg.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: connect to ssh agent: %w", ErrConfig, err)
			}
			closers = append(closers, conn)
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if cfg.IdentityFile != "" {
		signer, err := loadSigner(cfg)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	switch {
	case cfg.Password != "":
		methods = append(methods, ssh.Password(cfg.Password))
	case cfg.Prompt != nil:
		prompt := cfg.Prompt
		question := fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host)
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return prompt(question)
		}))
	}

	if len(methods) == 0 {
		return nil, nil, fmt.Errorf("%w: no authentication method configured", ErrConfig)
	}
	return methods, closers, nil
}

func loadSigner(cfg Config) (ssh.Signer, error) {
	pem, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read identity file: %w", ErrConfig, err)
	}
	return parseSigner(pem, cfg.Passphrase, cfg.Prompt, cfg.IdentityFile)
}

func parseSigner(pem []byte, passphrase string, prompt func(string) (string, error), name string) (ssh.Signer, error) {
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%w: parse identity file %s: %w", ErrConfig, name, err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && prompt != nil {
		answer, perr := prompt(fmt.Sprintf("Enter passphrase for key '%s': ", name))
		if perr != nil {
			return nil, fmt.Errorf("%w: read passphrase: %w", ErrConfig, perr)
		}
		return parseSigner(pem, answer, nil, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse identity file %s: %w", ErrConfig, name, err)
	}
	return signer, nil
}

func hostKeyCallback(cfg Config, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		logger.Warn("host key verification disabled", slog.String("host", cfg.Host))
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if cfg.KnownHosts == "" {
		return nil, fmt.Errorf("%w: known_hosts file is required unless host key checking is disabled", ErrConfig)
	}
	cb, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("%w: load known_hosts: %w", ErrConfig, err)
	}
	return func(hostname string, addr net.Addr, key ssh.PublicKey) error {
		if err := cb(hostname, addr, key); err != nil {
			return fmt.Errorf("%w: host key: %w", ErrRejected, err)
		}
		return nil
	}, nil
}

var (
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

// TerminalPrompt returns a Prompt that reads a secret from the controlling
// terminal without echo, asking the question on w. When w can be flushed it
// is flushed first so queued output does not land after the question. The
// prompt fails when stdin is not a terminal.
func TerminalPrompt(w io.Writer) func(string) (string, error) {
	return func(question string) (string, error) {
		fd := int(os.Stdin.Fd())
		if !isTerminal(fd) {
			return "", errors.New("stdin is not a terminal")
		}
		fmt.Fprint(w, question)
		if f, ok := w.(interface{ Flush() error }); ok {
			_ = f.Flush()
		}
		secret, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
}
