// Package merge invokes the external multiplexer over assembled segments.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"m3u8grab/internal/log"
)

// Error is a failed multiplexer invocation.
type Error struct {
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Invoker runs ffmpeg's concat demuxer over an ordered segment file list.
type Invoker struct {
	FFmpegPath string
	// ExtraOptions are appended verbatim to the ffmpeg invocation.
	ExtraOptions []string
}

// Merge concatenates the ordered segment files into outputFile. On a
// non-zero ffmpeg exit it returns *Error and removes any partial output.
func (m *Invoker) Merge(ctx context.Context, segmentPaths []string, outputFile string) error {
	logger := log.WithComponent("merge")

	ffmpeg := m.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	listFile := filepath.Join(filepath.Dir(outputFile), "concat_list.txt")
	if err := WriteConcatList(listFile, segmentPaths); err != nil {
		return err
	}
	defer os.Remove(listFile)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-movflags", "+faststart",
		outputFile,
	}
	args = append(args, m.ExtraOptions...)

	logger.Debug().Str("ffmpeg", ffmpeg).Strs("args", args).Msg("invoking multiplexer")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// No partial output is left behind on a failed merge.
		os.Remove(outputFile)

		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &Error{ExitCode: exitCode, Stderr: stderr.String()}
	}

	logger.Info().Str("output", outputFile).Msg("merge complete")
	return nil
}

// WriteConcatList writes the ffmpeg concat-demuxer input list, one
// `file '<path>'` line per segment, in the given order.
func WriteConcatList(path string, segmentPaths []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer f.Close()

	for _, seg := range segmentPaths {
		abs, err := filepath.Abs(seg)
		if err != nil {
			abs = seg
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", abs); err != nil {
			return fmt.Errorf("write concat list: %w", err)
		}
	}
	return nil
}
