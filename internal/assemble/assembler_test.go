package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m3u8grab/internal/download"
	"m3u8grab/internal/fetch"
	"m3u8grab/internal/playlist"
)

// scriptedFetcher returns canned bytes with a per-index delay so tests can
// force arbitrary completion orders.
type scriptedFetcher struct {
	delays map[int]time.Duration
	fail   map[int]bool
}

func (f *scriptedFetcher) Fetch(ctx context.Context, d playlist.SegmentDescriptor, timeout time.Duration) ([]byte, error) {
	if delay := f.delays[d.Index]; delay > 0 {
		time.Sleep(delay)
	}
	if f.fail[d.Index] {
		return nil, &fetch.Error{URL: d.URL, StatusCode: 404, Retryable: false}
	}
	return []byte(fmt.Sprintf("<segment %d>", d.Index)), nil
}

func makeSegments(n int) []playlist.SegmentDescriptor {
	segments := make([]playlist.SegmentDescriptor, n)
	for i := range segments {
		segments[i] = playlist.SegmentDescriptor{
			Index: i,
			URL:   fmt.Sprintf("http://example.com/seg%d.ts", i),
		}
	}
	return segments
}

func runJob(t *testing.T, f download.Fetcher, segments []playlist.SegmentDescriptor, concurrency int) *download.Outcome {
	t.Helper()
	outcome, err := download.New(f).Run(context.Background(), download.Job{
		Segments:    segments,
		Concurrency: concurrency,
	})
	require.NoError(t, err)
	return outcome
}

func concatFiles(t *testing.T, paths []string) []byte {
	t.Helper()
	var all []byte
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		all = append(all, data...)
	}
	return all
}

func TestAssembleOrderIndependentOfCompletionOrder(t *testing.T) {
	const n = 5
	segments := makeSegments(n)

	// Forward: sequential completion in index order.
	forward := runJob(t, &scriptedFetcher{}, segments, 1)

	// Reverse: all in flight at once, higher indices finish first.
	delays := make(map[int]time.Duration)
	for i := 0; i < n; i++ {
		delays[i] = time.Duration(n-i) * 15 * time.Millisecond
	}
	reverse := runJob(t, &scriptedFetcher{delays: delays}, segments, n)

	forwardPaths, err := Assemble(forward, segments, t.TempDir())
	require.NoError(t, err)
	reversePaths, err := Assemble(reverse, segments, t.TempDir())
	require.NoError(t, err)

	require.Len(t, forwardPaths, n)
	require.Len(t, reversePaths, n)
	assert.Equal(t, concatFiles(t, forwardPaths), concatFiles(t, reversePaths))

	// Ascending index order on disk.
	for i, p := range forwardPaths {
		assert.Equal(t, SegmentFilename(i, ".ts"), filepath.Base(p))
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, []byte(fmt.Sprintf("<segment %d>", i)), data)
	}
}

func TestAssembleRejectsIncompleteOutcome(t *testing.T) {
	segments := makeSegments(3)
	outcome := runJob(t, &scriptedFetcher{fail: map[int]bool{2: true}}, segments, 2)
	require.False(t, outcome.OK())

	dir := t.TempDir()
	paths, err := Assemble(outcome, segments, dir)
	require.Error(t, err)
	assert.Nil(t, paths)

	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []int{2}, incomplete.Missing)

	// Nothing is written for an incomplete run.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSegmentFilename(t *testing.T) {
	assert.Equal(t, "segment_00000.ts", SegmentFilename(0, ".ts"))
	assert.Equal(t, "segment_00042.m4s", SegmentFilename(42, ".m4s"))
}
