package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/sftpresume/internal/resume"
)

func TestProbe(t *testing.T) {
	l := Memory()
	ctx := context.Background()

	fi, err := l.Probe(ctx, "/missing.bin")
	require.NoError(t, err)
	assert.Equal(t, resume.FileInfo{}, fi)

	require.NoError(t, util.WriteFile(l.Filesystem(), "/data.bin", []byte("hello"), 0o644))
	fi, err = l.Probe(ctx, "/data.bin")
	require.NoError(t, err)
	assert.Equal(t, resume.FileInfo{Exists: true, Regular: true, Size: 5}, fi)

	require.NoError(t, l.Filesystem().MkdirAll("/dir", 0o755))
	fi, err = l.Probe(ctx, "/dir")
	require.NoError(t, err)
	assert.True(t, fi.Exists)
	assert.False(t, fi.Regular)
}

func TestOpenReadAt(t *testing.T) {
	l := Memory()
	require.NoError(t, util.WriteFile(l.Filesystem(), "/data.bin", []byte("0123456789"), 0o644))

	r, err := l.OpenReadAt(context.Background(), "/data.bin", 4)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(got))
}

func TestOpenReadAtMissing(t *testing.T) {
	_, err := Memory().OpenReadAt(context.Background(), "/nope", 0)
	require.Error(t, err)
}

func TestOpenResumeAppends(t *testing.T) {
	l := Memory()
	require.NoError(t, util.WriteFile(l.Filesystem(), "/data.bin", []byte("0123"), 0o644))

	w, err := l.OpenResume(context.Background(), "/data.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("4567"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := util.ReadFile(l.Filesystem(), "/data.bin")
	require.NoError(t, err)
	assert.Equal(t, "01234567", string(got))
}

func TestOSResumeCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	l := OS()
	ctx := context.Background()

	w, err := l.OpenResume(ctx, path)
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = l.OpenResume(ctx, path)
	require.NoError(t, err)
	_, err = w.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))

	fi, err := l.Probe(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(6), fi.Size)
}
