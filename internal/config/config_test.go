package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 22, cfg.Port)
	assert.Equal(t, 1024*1024, cfg.BufferSize)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := `host: files.example.com
port: 2222
user: evan
identity_file: ~/.ssh/id_ed25519
connect_timeout: 5s
retries: 3
ciphers: [aes128-ctr]
log_level: debug
progress: false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "files.example.com", cfg.Host)
	assert.Equal(t, 2222, cfg.Port)
	assert.Equal(t, "evan", cfg.User)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, []string{"aes128-ctr"}, cfg.Ciphers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Progress)
	assert.Equal(t, 1024*1024, cfg.BufferSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hostname: x\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg := Default()
	cfg.Host = "from-file"
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SFTPRESUME_HOST":                     "from-env",
		"SFTPRESUME_PORT":                     "2200",
		"SFTPRESUME_INSECURE_IGNORE_HOST_KEY": "true",
		"SFTPRESUME_RETRIES":                  "2",
		"SFTPRESUME_USER":                     "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Host)
	assert.Equal(t, 2200, cfg.Port)
	assert.True(t, cfg.InsecureIgnoreHostKey)
	assert.Equal(t, 2, cfg.Retries)
	assert.Empty(t, cfg.User)
}

func TestApplyEnvDurations(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SFTPRESUME_CONNECT_TIMEOUT":        "3s",
		"SFTPRESUME_RETRY_INITIAL_INTERVAL": "250ms",
		"SFTPRESUME_RETRY_MAX_INTERVAL":     "1m",
	}))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInitialInterval)
	assert.Equal(t, time.Minute, cfg.RetryMaxInterval)

	err = cfg.ApplyEnv(envMap(map[string]string{"SFTPRESUME_RETRY_MAX_INTERVAL": "30"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SFTPRESUME_RETRY_MAX_INTERVAL")
	assert.Equal(t, time.Minute, cfg.RetryMaxInterval)
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.ApplyEnv(envMap(map[string]string{"SFTPRESUME_PORT": "twenty"})))
	require.Error(t, cfg.ApplyEnv(envMap(map[string]string{"SFTPRESUME_USE_AGENT": "maybe"})))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
	assert.Contains(t, err.Error(), "user is required")

	cfg.Host, cfg.User = "h", "u"
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Port = 70000
	require.Error(t, bad.Validate())

	bad = cfg
	bad.BufferSize = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.LogLevel = "verbose"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.RetryInitialInterval = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.RetryInitialInterval, bad.RetryMaxInterval = time.Minute, time.Second
	require.Error(t, bad.Validate())
}

func TestRemoteExpandsHome(t *testing.T) {
	cfg := Default()
	cfg.Host, cfg.User = "h", "u"
	cfg.IdentityFile = "/keys/id"
	rc, err := cfg.Remote()
	require.NoError(t, err)
	assert.Equal(t, "/keys/id", rc.IdentityFile)
	assert.NotContains(t, rc.KnownHosts, "~")
	assert.Equal(t, 15*time.Second, rc.Timeout)
	assert.Equal(t, "h:22", rc.Addr())
}
