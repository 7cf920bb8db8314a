package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"m3u8grab/internal/assemble"
	"m3u8grab/internal/merge"
	"m3u8grab/internal/playlist"
)

func TestExitCodeClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"malformed playlist", fmt.Errorf("parse: %w", playlist.ErrMalformedPlaylist), exitParse},
		{"incomplete download", &assemble.IncompleteError{Missing: []int{3}}, exitDownload},
		{"merge failure", &merge.Error{ExitCode: 1, Stderr: "boom"}, exitMerge},
		{"wrapped merge failure", fmt.Errorf("merge: %w", &merge.Error{ExitCode: 1}), exitMerge},
		{"anything else", errors.New("disk full"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
