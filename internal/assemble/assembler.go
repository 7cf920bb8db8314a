// Package assemble writes fetched segment bytes to disk in playlist order.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"

	"m3u8grab/internal/download"
	"m3u8grab/internal/playlist"
)

// IncompleteError rejects assembly of a run that did not fetch every
// segment. Missing lists the unfetched indices in ascending order.
type IncompleteError struct {
	Missing []int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete download: %d segment(s) missing: %v", len(e.Missing), e.Missing)
}

// Assemble writes one file per segment into dir, named by ascending index,
// and returns the ordered file paths. The write order is strictly ascending
// by index no matter in which order the results were produced. A not fully
// successful outcome yields an *IncompleteError and nothing is written.
func Assemble(outcome *download.Outcome, segments []playlist.SegmentDescriptor, dir string) ([]string, error) {
	if missing := outcome.Missing(); len(missing) > 0 {
		return nil, &IncompleteError{Missing: missing}
	}

	paths := make([]string, 0, len(segments))
	for _, d := range segments {
		r, ok := outcome.Result(d.Index)
		if !ok {
			return nil, &IncompleteError{Missing: []int{d.Index}}
		}

		path := filepath.Join(dir, SegmentFilename(d.Index, d.Ext()))
		if err := os.WriteFile(path, r.Data, 0644); err != nil {
			return nil, fmt.Errorf("write segment %d: %w", d.Index, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SegmentFilename names the on-disk file for a segment index.
func SegmentFilename(index int, ext string) string {
	return fmt.Sprintf("segment_%05d%s", index, ext)
}
