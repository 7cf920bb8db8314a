package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	opts := Default()
	assert.Equal(t, 8, opts.Threads)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, 10*time.Second, time.Duration(opts.FetchTimeout))
	assert.Equal(t, 500*time.Millisecond, time.Duration(opts.BackoffBase))
	assert.Equal(t, 8*time.Second, time.Duration(opts.BackoffCap))
	assert.Equal(t, "ffmpeg", opts.FFmpegPath)
	assert.False(t, opts.KeepSegments)
	assert.NotEmpty(t, opts.Headers["User-Agent"])
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	opts := Default()
	require.NoError(t, Load(filepath.Join(t.TempDir(), "nope.json"), &opts))
	assert.Equal(t, Default().Threads, opts.Threads)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"threads": 4,
		"max_retries": 5,
		"fetch_timeout": "2s",
		"headers": {"Referer": "http://example.com/"}
	}`), 0644))

	opts := Default()
	require.NoError(t, Load(path, &opts))
	assert.Equal(t, 4, opts.Threads)
	assert.Equal(t, 5, opts.MaxRetries)
	assert.Equal(t, 2*time.Second, time.Duration(opts.FetchTimeout))
	assert.Equal(t, "http://example.com/", opts.Headers["Referer"])
	// Untouched fields keep their defaults.
	assert.Equal(t, "ffmpeg", opts.FFmpegPath)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fetch_timeout": "soon"}`), 0644))

	opts := Default()
	assert.Error(t, Load(path, &opts))
}
