package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"m3u8grab/internal/app"
	"m3u8grab/internal/assemble"
	"m3u8grab/internal/cache"
	"m3u8grab/internal/config"
	"m3u8grab/internal/download"
	"m3u8grab/internal/log"
	"m3u8grab/internal/merge"
	"m3u8grab/internal/playlist"
)

// Exit codes distinguish the failure classes a caller can react to.
const (
	exitFailure  = 1
	exitParse    = 2
	exitDownload = 3
	exitMerge    = 4
)

var (
	output        string
	threads       int
	logLevel      string
	keepSegments  bool
	ffmpegOptions string
	ffmpegPath    string
	workDir       string
	configFile    string
)

// buildOptions merges defaults, the optional config file and flag overrides.
func buildOptions(cmd *cobra.Command) (config.Options, error) {
	opts := config.Default()
	if configFile != "" {
		if err := config.Load(configFile, &opts); err != nil {
			return opts, fmt.Errorf("load config: %w", err)
		}
	}
	if cmd.Flags().Changed("workdir") {
		opts.WorkDir = workDir
	}
	return opts, nil
}

func runE(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("cli")

	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	// Flags override the config file.
	if cmd.Flags().Changed("threads") || opts.Threads <= 0 {
		opts.Threads = threads
	}
	if cmd.Flags().Changed("ffmpeg_path") {
		opts.FFmpegPath = ffmpegPath
	}
	if keepSegments {
		opts.KeepSegments = true
	}
	if ffmpegOptions != "" {
		opts.FFmpegOptions = strings.Fields(ffmpegOptions)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	a.OnProgress = func(p download.Progress) {
		fmt.Fprintf(os.Stderr, "\rsegments %d/%d", p.Completed, p.Total)
		if p.Completed == p.Total {
			fmt.Fprintln(os.Stderr)
		}
	}

	if err := a.Run(ctx, args[0], output); err != nil {
		logger.Error().Err(err).Msg("run failed")
		return err
	}
	return nil
}

// withApp opens the ledger app for the run bookkeeping subcommands.
func withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runsListE(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		runs, err := a.ListRuns()
		if err != nil {
			return err
		}
		for _, meta := range runs {
			ok, err := a.SucceededSegments(meta.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-11s  %d/%d  %s  %s\n",
				meta.ID, meta.Status, ok, meta.TotalSegments,
				meta.CreatedTime.Format("2006-01-02 15:04:05"), meta.Output)
		}
		return nil
	})
}

func runsShowE(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		meta, records, err := a.RunDetail(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "run %s (%s)\nplaylist: %s\noutput: %s\n", meta.ID, meta.Status, meta.Playlist, meta.Output)
		if meta.SegmentDir != "" {
			fmt.Fprintf(out, "segments: %s\n", meta.SegmentDir)
		}
		for _, rec := range records {
			state := "failed"
			if rec.Succeeded {
				state = "ok"
			}
			line := fmt.Sprintf("  %5d  %-6s  attempts=%d  %s", rec.Index, state, rec.Attempts, rec.Filename)
			if meta.SegmentDir != "" && cache.FileExists(meta.SegmentDir, rec.Filename) {
				line += "  [on disk]"
			}
			if rec.LastError != "" {
				line += "  " + rec.LastError
			}
			fmt.Fprintln(out, line)
		}
		return nil
	})
}

func runsRmE(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		return a.RemoveRun(args[0])
	})
}

// exitCode maps the structural error classes onto distinct exit codes.
func exitCode(err error) int {
	var incomplete *assemble.IncompleteError
	var mergeErr *merge.Error
	switch {
	case errors.Is(err, playlist.ErrMalformedPlaylist):
		return exitParse
	case errors.As(err, &incomplete):
		return exitDownload
	case errors.As(err, &mergeErr):
		return exitMerge
	default:
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "m3u8grab <playlist.m3u8>",
		Short: "Download M3U8 segments and merge them into a single file",
		Args:  cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Configure(log.Config{Level: logLevel})
		},
		RunE:          runE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pflags := rootCmd.PersistentFlags()
	pflags.StringVar(&logLevel, "log_level", "WARNING", "Log level: DEBUG, INFO, WARNING or ERROR")
	pflags.StringVar(&workDir, "workdir", "./tmp", "Working directory for segments and the run ledger")
	pflags.StringVar(&configFile, "config", "", "Optional JSON config file (headers, retry tuning)")

	flags := rootCmd.Flags()
	flags.StringVar(&output, "output", "", "Output file path (default: derived from the playlist)")
	flags.IntVar(&threads, "threads", 8, "Number of concurrent download workers")
	flags.BoolVar(&keepSegments, "keep_segments", false, "Keep downloaded segments after merging")
	flags.StringVar(&ffmpegOptions, "ffmpeg_options", "", "Additional space-separated ffmpeg options")
	flags.StringVar(&ffmpegPath, "ffmpeg_path", "ffmpeg", "Path to the ffmpeg binary")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded conversion runs",
		Args:  cobra.NoArgs,
		RunE:  runsListE,
	}
	runsCmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its per-segment results",
		Args:  cobra.ExactArgs(1),
		RunE:  runsShowE,
	})
	runsCmd.AddCommand(&cobra.Command{
		Use:   "rm <run-id>",
		Short: "Delete a run from the ledger and remove its kept segments",
		Args:  cobra.ExactArgs(1),
		RunE:  runsRmE,
	})
	rootCmd.AddCommand(runsCmd)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger := log.WithComponent("cli")
		logger.Error().Err(err).Msg("fatal")
		os.Exit(exitCode(err))
	}
}
