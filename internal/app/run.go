// Package app wires the pipeline together and drives one conversion end to
// end: parse, download, record, assemble, merge, clean up.
package app

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"m3u8grab/internal/assemble"
	"m3u8grab/internal/cache"
	"m3u8grab/internal/config"
	"m3u8grab/internal/database"
	"m3u8grab/internal/download"
	"m3u8grab/internal/fetch"
	"m3u8grab/internal/log"
	"m3u8grab/internal/merge"
	"m3u8grab/internal/playlist"
	"m3u8grab/internal/task"
)

// App owns the ledger database and run configuration.
type App struct {
	opts   config.Options
	db     *sql.DB
	ledger *task.Ledger

	// OnProgress, if set, receives one event per terminal segment result.
	OnProgress func(download.Progress)
}

// New opens the ledger under the configured work dir.
func New(opts config.Options) (*App, error) {
	db, err := database.Init(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("init ledger db: %w", err)
	}
	ledger, err := task.NewLedger(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	return &App{opts: opts, db: db, ledger: ledger}, nil
}

// Close releases the ledger database.
func (a *App) Close() error {
	return a.db.Close()
}

// Run converts one playlist to the output file. output may be empty, in
// which case the name is derived from the playlist content.
func (a *App) Run(ctx context.Context, playlistPath, output string) error {
	logger := log.WithComponent("app")

	content, err := os.ReadFile(playlistPath)
	if err != nil {
		return fmt.Errorf("read playlist: %w", err)
	}

	segments, err := playlist.Parse(bytes.NewReader(content), baseFor(playlistPath))
	if err != nil {
		return err
	}
	logger.Info().Int("segments", len(segments)).Str("playlist", playlistPath).Msg("playlist parsed")

	id := cache.RunID(playlistPath, playlist.DeriveID(string(content)))
	if output == "" {
		output = id + ".mp4"
	}

	dir, err := cache.EnsureRunDir(a.opts.WorkDir, id)
	if err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}

	runID := uuid.NewString()
	meta := task.RunMetadata{
		ID:            runID,
		Playlist:      playlistPath,
		Output:        output,
		SegmentDir:    dir,
		TotalSegments: len(segments),
		CreatedTime:   time.Now(),
		Status:        task.StatusDownloading,
	}
	if err := a.ledger.CreateRun(meta); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	coord := download.New(fetch.New(a.opts.Headers))
	coord.OnProgress = a.OnProgress

	outcome, runErr := coord.Run(ctx, download.Job{
		Segments:    segments,
		Concurrency: a.opts.Threads,
		MaxRetries:  a.opts.MaxRetries,
		Timeout:     time.Duration(a.opts.FetchTimeout),
		BackoffBase: time.Duration(a.opts.BackoffBase),
		BackoffCap:  time.Duration(a.opts.BackoffCap),
	})
	a.recordOutcome(runID, segments, outcome)

	if runErr != nil {
		a.finish(runID, task.StatusCancelled, dir)
		return fmt.Errorf("download cancelled: %w", runErr)
	}

	paths, err := assemble.Assemble(outcome, segments, dir)
	if err != nil {
		a.finish(runID, task.StatusFailed, dir)
		return err
	}

	merger := &merge.Invoker{
		FFmpegPath:   a.opts.FFmpegPath,
		ExtraOptions: a.opts.FFmpegOptions,
	}
	if err := merger.Merge(ctx, paths, output); err != nil {
		a.finish(runID, task.StatusFailed, dir)
		return err
	}

	a.finish(runID, task.StatusCompleted, dir)
	logger.Info().Str("output", output).Msg("conversion complete")
	return nil
}

// recordOutcome writes every terminal segment result to the ledger.
func (a *App) recordOutcome(runID string, segments []playlist.SegmentDescriptor, outcome *download.Outcome) {
	logger := log.WithComponent("app")
	for _, d := range segments {
		r, ok := outcome.Result(d.Index)
		if !ok {
			continue
		}
		rec := task.SegmentRecord{
			Index:     d.Index,
			URL:       d.URL,
			Filename:  assemble.SegmentFilename(d.Index, d.Ext()),
			Succeeded: r.OK(),
			Attempts:  r.Attempts,
		}
		if r.Err != nil {
			rec.LastError = r.Err.Error()
		}
		if err := a.ledger.RecordSegment(runID, rec); err != nil {
			logger.Warn().Err(err).Int("segment", d.Index).Msg("failed to record segment in ledger")
		}
	}
}

// finish sets the run's final status and removes the segment dir unless the
// run is configured to keep it.
func (a *App) finish(runID string, status task.RunStatus, dir string) {
	logger := log.WithComponent("app")
	if err := a.ledger.UpdateRunStatus(runID, status); err != nil {
		logger.Warn().Err(err).Str("run", runID).Msg("failed to update run status")
	}
	if a.opts.KeepSegments {
		logger.Info().Str("dir", dir).Msg("segments kept")
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove segment dir")
	}
}

// ListRuns returns every recorded run, newest first.
func (a *App) ListRuns() ([]task.RunMetadata, error) {
	return a.ledger.ListRuns()
}

// SucceededSegments counts a run's successfully fetched segments.
func (a *App) SucceededSegments(runID string) (int, error) {
	return a.ledger.CountSucceeded(runID)
}

// RunDetail loads one run and its per-segment records.
func (a *App) RunDetail(runID string) (*task.RunMetadata, []task.SegmentRecord, error) {
	meta, err := a.ledger.GetRun(runID)
	if err != nil {
		return nil, nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	records, err := a.ledger.Segments(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, records, nil
}

// RemoveRun deletes a run from the ledger along with any kept segment
// directory.
func (a *App) RemoveRun(runID string) error {
	meta, err := a.ledger.GetRun(runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if meta.SegmentDir != "" {
		if err := os.RemoveAll(meta.SegmentDir); err != nil {
			return fmt.Errorf("remove segment dir: %w", err)
		}
	}
	return a.ledger.DeleteRun(runID)
}

// baseFor builds the base URL that relative segment URIs resolve against:
// the playlist file's own directory.
func baseFor(playlistPath string) *url.URL {
	dir := filepath.Dir(playlistPath)
	return &url.URL{Path: filepath.ToSlash(dir) + "/"}
}
