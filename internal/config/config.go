package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"

	"github.com/sheerbytes/sftpresume/internal/logging"
	"github.com/sheerbytes/sftpresume/internal/remote"
)

// DefaultPath is where the config file is looked up when none is given.
const DefaultPath = "~/.sftpresume.yaml"

const envPrefix = "SFTPRESUME_"

// Config holds everything needed to run a transfer.
type Config struct {
	Host                  string   `yaml:"host"`
	Port                  int      `yaml:"port"`
	User                  string   `yaml:"user"`
	Password              string   `yaml:"password"`
	IdentityFile          string   `yaml:"identity_file"`
	Passphrase            string   `yaml:"passphrase"`
	UseAgent              bool     `yaml:"use_agent"`
	KnownHosts            string   `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool     `yaml:"insecure_ignore_host_key"`
	Ciphers               []string `yaml:"ciphers"`
	KeyExchanges          []string `yaml:"key_exchanges"`
	MACs                  []string `yaml:"macs"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxPacket      int           `yaml:"max_packet"`
	BufferSize     int           `yaml:"buffer_size"` // Chunk size in bytes (default: 1 MiB)

	Retries              int           `yaml:"retries"` // Extra sessions after a retryable failure
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`

	LogLevel string `yaml:"log_level"`
	Progress bool   `yaml:"progress"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Port:                 22,
		UseAgent:             true,
		KnownHosts:           "~/.ssh/known_hosts",
		ConnectTimeout:       15 * time.Second,
		MaxPacket:            32768,
		BufferSize:           1024 * 1024,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     30 * time.Second,
		LogLevel:             "info",
		Progress:             true,
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("config: expand %q: %w", path, err)
	}
	b, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", expanded, err)
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", expanded, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SFTPRESUME_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, name, err)
		}
		*dst = b
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("HOST", &c.Host)
	str("USER", &c.User)
	str("PASSWORD", &c.Password)
	str("IDENTITY_FILE", &c.IdentityFile)
	str("PASSPHRASE", &c.Passphrase)
	str("KNOWN_HOSTS", &c.KnownHosts)
	str("LOG_LEVEL", &c.LogLevel)
	if err := num("PORT", &c.Port); err != nil {
		return err
	}
	if err := num("BUFFER_SIZE", &c.BufferSize); err != nil {
		return err
	}
	if err := num("RETRIES", &c.Retries); err != nil {
		return err
	}
	if err := dur("CONNECT_TIMEOUT", &c.ConnectTimeout); err != nil {
		return err
	}
	if err := dur("RETRY_INITIAL_INTERVAL", &c.RetryInitialInterval); err != nil {
		return err
	}
	if err := dur("RETRY_MAX_INTERVAL", &c.RetryMaxInterval); err != nil {
		return err
	}
	if err := flag("INSECURE_IGNORE_HOST_KEY", &c.InsecureIgnoreHostKey); err != nil {
		return err
	}
	return flag("USE_AGENT", &c.UseAgent)
}

// Validate checks the fields a transfer cannot run without.
func (c Config) Validate() error {
	var problems []string
	if c.Host == "" {
		problems = append(problems, "host is required")
	}
	if c.User == "" {
		problems = append(problems, "user is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d", c.Port))
	}
	if c.BufferSize <= 0 {
		problems = append(problems, "buffer_size must be > 0")
	}
	if c.MaxPacket < 0 {
		problems = append(problems, "max_packet must be >= 0")
	}
	if c.Retries < 0 {
		problems = append(problems, "retries must be >= 0")
	}
	if c.ConnectTimeout < 0 {
		problems = append(problems, "connect_timeout must be >= 0")
	}
	if c.RetryInitialInterval <= 0 {
		problems = append(problems, "retry_initial_interval must be > 0")
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		problems = append(problems, "retry_max_interval must be >= retry_initial_interval")
	}
	if !logging.ValidLevel(c.LogLevel) {
		problems = append(problems, fmt.Sprintf("invalid log level %q", c.LogLevel))
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Remote converts the connection fields, expanding ~ in file paths.
func (c Config) Remote() (remote.Config, error) {
	identity, err := expand(c.IdentityFile)
	if err != nil {
		return remote.Config{}, err
	}
	knownHosts, err := expand(c.KnownHosts)
	if err != nil {
		return remote.Config{}, err
	}
	return remote.Config{
		Host:                  c.Host,
		Port:                  c.Port,
		User:                  c.User,
		Password:              c.Password,
		IdentityFile:          identity,
		Passphrase:            c.Passphrase,
		UseAgent:              c.UseAgent,
		KnownHosts:            knownHosts,
		InsecureIgnoreHostKey: c.InsecureIgnoreHostKey,
		Ciphers:               c.Ciphers,
		KeyExchanges:          c.KeyExchanges,
		MACs:                  c.MACs,
		Timeout:               c.ConnectTimeout,
		MaxPacket:             c.MaxPacket,
	}, nil
}

func expand(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	out, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("config: expand %q: %w", path, err)
	}
	return out, nil
}
