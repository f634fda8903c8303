package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v3"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/sheerbytes/sftpresume/internal/app"
	"github.com/sheerbytes/sftpresume/internal/config"
	"github.com/sheerbytes/sftpresume/internal/localfs"
	"github.com/sheerbytes/sftpresume/internal/logging"
	"github.com/sheerbytes/sftpresume/internal/remote"
	"github.com/sheerbytes/sftpresume/internal/resume"
	"github.com/sheerbytes/sftpresume/internal/termio"
)

const version = "v0.1.0"

func main() {
	stderr := termio.New(os.Stderr)
	code := run(os.Args, stderr, os.LookupEnv)
	_ = stderr.Close()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(args []string, stderr io.Writer, lookupEnv func(string) (string, bool)) int {
	code := 0
	a := newApp(stderr, lookupEnv, &code)
	if err := a.Run(args); err != nil {
		fmt.Fprintf(stderr, "sftpresume: %v\n", err)
		return 1
	}
	return code
}

func newApp(stderr io.Writer, lookupEnv func(string) (string, bool), code *int) *cli.App {
	a := cli.NewApp()
	a.Name = "sftpresume"
	a.Usage = "resumable SFTP downloads and uploads"
	a.Version = version
	a.Writer = stderr
	a.ErrWriter = stderr
	a.Commands = []cli.Command{
		{
			Name:      "get",
			Usage:     "download a remote file, continuing a partial local copy",
			ArgsUsage: "<remote-path> [local-path]",
			Flags:     flags(),
			Action:    transfer(resume.Download, stderr, lookupEnv, code),
		},
		{
			Name:      "put",
			Usage:     "upload a local file, continuing a partial remote copy",
			ArgsUsage: "<local-path> [remote-path]",
			Flags:     flags(),
			Action:    transfer(resume.Upload, stderr, lookupEnv, code),
		},
	}
	return a
}

func flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "config file", Value: config.DefaultPath},
		cli.StringFlag{Name: "host, H", Usage: "SFTP server host"},
		cli.IntFlag{Name: "port, p", Usage: "SFTP server port", Value: 22},
		cli.StringFlag{Name: "user, u", Usage: "login user"},
		cli.StringFlag{Name: "password", Usage: "login password (prefer SFTPRESUME_PASSWORD)"},
		cli.StringFlag{Name: "identity, i", Usage: "private key file"},
		cli.BoolFlag{Name: "no-agent", Usage: "do not use ssh-agent"},
		cli.StringFlag{Name: "known-hosts", Usage: "known_hosts file"},
		cli.BoolFlag{Name: "insecure", Usage: "skip host key verification"},
		cli.DurationFlag{Name: "timeout", Usage: "connect timeout"},
		cli.IntFlag{Name: "retries, r", Usage: "extra attempts after a retryable failure"},
		cli.DurationFlag{Name: "retry-initial-interval", Usage: "wait before the first retry"},
		cli.DurationFlag{Name: "retry-max-interval", Usage: "upper bound on the wait between retries"},
		cli.IntFlag{Name: "buffer-size", Usage: "chunk size in bytes"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		cli.BoolFlag{Name: "no-progress", Usage: "disable the progress line"},
	}
}

// loadConfig layers the config file, the environment and the flags, in
// that order.
func loadConfig(c *cli.Context, lookupEnv func(string) (string, bool)) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return cfg, err
	}
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("user") {
		cfg.User = c.String("user")
	}
	if c.IsSet("password") {
		cfg.Password = c.String("password")
	}
	if c.IsSet("identity") {
		cfg.IdentityFile = c.String("identity")
	}
	if c.Bool("no-agent") {
		cfg.UseAgent = false
	}
	if c.IsSet("known-hosts") {
		cfg.KnownHosts = c.String("known-hosts")
	}
	if c.Bool("insecure") {
		cfg.InsecureIgnoreHostKey = true
	}
	if c.IsSet("timeout") {
		cfg.ConnectTimeout = c.Duration("timeout")
	}
	if c.IsSet("retries") {
		cfg.Retries = c.Int("retries")
	}
	if c.IsSet("retry-initial-interval") {
		cfg.RetryInitialInterval = c.Duration("retry-initial-interval")
	}
	if c.IsSet("retry-max-interval") {
		cfg.RetryMaxInterval = c.Duration("retry-max-interval")
	}
	if c.IsSet("buffer-size") {
		cfg.BufferSize = c.Int("buffer-size")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.Bool("no-progress") {
		cfg.Progress = false
	}
	return cfg, cfg.Validate()
}

func transfer(dir resume.Direction, stderr io.Writer, lookupEnv func(string) (string, bool), code *int) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < 1 || c.NArg() > 2 {
			return fmt.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage)
		}
		cfg, err := loadConfig(c, lookupEnv)
		if err != nil {
			return err
		}
		req, err := app.NewRequest(dir, c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return err
		}
		rcfg, err := cfg.Remote()
		if err != nil {
			return err
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			rcfg.Prompt = remote.TerminalPrompt(stderr)
		}

		logger := logging.New("sftpresume", cfg.LogLevel, stderr)
		dial := func(ctx context.Context) (app.Endpoint, error) {
			cl, err := remote.Dial(ctx, rcfg, logger)
			if err != nil {
				if remote.Permanent(err) {
					return nil, backoff.Permanent(err)
				}
				return nil, err
			}
			return cl, nil
		}
		opts := app.Options{
			Retries:         cfg.Retries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			BufferSize:      cfg.BufferSize,
			Logger:          logger,
		}
		if cfg.Progress {
			opts.Progress = stderr
		}
		runner := app.NewRunner(dial, localfs.OS(), opts)
		defer runner.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = runner.Run(ctx, req)
		runner.Metrics().Summary().Log(logger)
		*code = app.ExitCode(err)
		if *code != 0 {
			logger.Error("transfer failed", slog.Any("err", err))
		}
		return nil
	}
}
