// Package cache lays out the per-run working directory for downloaded
// segments.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
)

// RunID returns the identifier used to name a run's working directory:
// the token derived from the playlist when available, otherwise a hash of
// the playlist path.
func RunID(playlistPath, derived string) string {
	if derived != "" {
		return derived
	}
	hash := md5.Sum([]byte(playlistPath))
	return hex.EncodeToString(hash[:])
}

// RunDir returns the absolute path of the run's segment directory.
func RunDir(baseDir, runID string) string {
	path, _ := filepath.Abs(filepath.Join(baseDir, "m3u8_segments_"+runID))
	return path
}

// EnsureRunDir creates the run directory if it doesn't exist.
func EnsureRunDir(baseDir, runID string) (string, error) {
	path := RunDir(baseDir, runID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}

// FileExists checks if a regular file exists in the run directory.
func FileExists(dir, filename string) bool {
	info, err := os.Stat(filepath.Join(dir, filename))
	if err != nil {
		return false
	}
	return !info.IsDir()
}
