// Package download runs the concurrent segment-fetch pipeline: a bounded
// worker pool drains the segment queue in index order, retries transient
// failures with capped exponential backoff, and aggregates every terminal
// result into a run outcome.
package download

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"m3u8grab/internal/fetch"
	"m3u8grab/internal/log"
	"m3u8grab/internal/playlist"
)

const (
	defaultConcurrency = 8
	defaultMaxRetries  = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 8 * time.Second
)

// Fetcher fetches one segment's bytes. Implemented by fetch.Fetcher;
// abstracted so tests can instrument the pool.
type Fetcher interface {
	Fetch(ctx context.Context, d playlist.SegmentDescriptor, timeout time.Duration) ([]byte, error)
}

// Job is the immutable configuration for one run. Zero values fall back to
// the defaults above.
type Job struct {
	Segments    []playlist.SegmentDescriptor
	Concurrency int
	MaxRetries  int
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Result is the terminal outcome for one segment. Data is set iff Err is
// nil. Attempts counts every fetch attempt including the successful or
// final failing one.
type Result struct {
	Index    int
	Data     []byte
	Attempts int
	Err      error
}

// OK reports whether the segment was fetched.
func (r Result) OK() bool { return r.Err == nil }

// Progress is emitted after each terminal result.
type Progress struct {
	Completed int
	Total     int
}

// Outcome aggregates the terminal results of a run, indexed by segment.
type Outcome struct {
	results []Result
	done    []bool
}

func newOutcome(total int) *Outcome {
	return &Outcome{
		results: make([]Result, total),
		done:    make([]bool, total),
	}
}

func (o *Outcome) record(r Result) {
	o.results[r.Index] = r
	o.done[r.Index] = true
}

// Total returns the number of segments in the run.
func (o *Outcome) Total() int { return len(o.results) }

// Result returns the terminal result for index i and whether one exists.
func (o *Outcome) Result(i int) (Result, bool) {
	if i < 0 || i >= len(o.results) {
		return Result{}, false
	}
	return o.results[i], o.done[i]
}

// Missing lists indices without a successful result, ascending: permanently
// failed segments plus any never resolved before cancellation.
func (o *Outcome) Missing() []int {
	var missing []int
	for i := range o.results {
		if !o.done[i] || !o.results[i].OK() {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing
}

// OK reports the run verdict: success iff every segment succeeded.
func (o *Outcome) OK() bool { return len(o.Missing()) == 0 }

// Coordinator fans a job out over a worker pool and collects the results.
type Coordinator struct {
	Fetcher Fetcher

	// OnProgress, if set, is called after each terminal result from the
	// collecting goroutine only.
	OnProgress func(Progress)
}

// New returns a coordinator using the given fetcher.
func New(f Fetcher) *Coordinator {
	return &Coordinator{Fetcher: f}
}

// Run executes the job and returns the outcome. A permanently failed
// segment does not abort the run; the verdict surfaces all failures at
// once. The returned error is non-nil only when ctx was cancelled before
// every segment resolved.
func (c *Coordinator) Run(ctx context.Context, job Job) (*Outcome, error) {
	logger := log.WithComponent("download")

	workers := job.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > len(job.Segments) {
		workers = len(job.Segments)
	}

	outcome := newOutcome(len(job.Segments))
	if len(job.Segments) == 0 {
		return outcome, nil
	}

	// FIFO by index: the queue is filled in descriptor order and workers
	// claim from it one at a time.
	queue := make(chan playlist.SegmentDescriptor, len(job.Segments))
	for _, d := range job.Segments {
		queue <- d
	}
	close(queue)

	results := make(chan Result, len(job.Segments))

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for d := range queue {
				// Cancellation stops claiming new work; the in-flight
				// fetch below still sees ctx and times out on its own.
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				results <- c.fetchWithRetry(ctx, job, d, logger)
			}
			return nil
		})
	}

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		completed := 0
		for r := range results {
			outcome.record(r)
			completed++
			if c.OnProgress != nil {
				c.OnProgress(Progress{Completed: completed, Total: len(job.Segments)})
			}
		}
	}()

	err := g.Wait()
	close(results)
	<-collected

	logger.Info().
		Int("total", len(job.Segments)).
		Int("failed", len(outcome.Missing())).
		Int("workers", workers).
		Msg("download finished")

	return outcome, err
}

// fetchWithRetry attempts one segment up to MaxRetries+1 times, sleeping a
// capped exponential backoff between attempts.
func (c *Coordinator) fetchWithRetry(ctx context.Context, job Job, d playlist.SegmentDescriptor, logger zerolog.Logger) Result {
	maxRetries := job.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(job, attempt)):
			case <-ctx.Done():
				return Result{Index: d.Index, Attempts: attempt, Err: ctx.Err()}
			}
		}

		data, err := c.Fetcher.Fetch(ctx, d, job.Timeout)
		if err == nil {
			return Result{Index: d.Index, Data: data, Attempts: attempt + 1}
		}
		lastErr = err

		if !fetch.Retryable(err) {
			logger.Error().Err(err).
				Int("segment", d.Index).
				Str("url", d.URL).
				Int("attempts", attempt+1).
				Msg("segment failed permanently")
			return Result{Index: d.Index, Attempts: attempt + 1, Err: err}
		}
		logger.Debug().Err(err).
			Int("segment", d.Index).
			Int("attempt", attempt+1).
			Msg("segment fetch attempt failed, will retry")
	}

	logger.Error().Err(lastErr).
		Int("segment", d.Index).
		Str("url", d.URL).
		Int("attempts", maxRetries+1).
		Msg("segment failed permanently, retries exhausted")
	return Result{Index: d.Index, Attempts: maxRetries + 1, Err: lastErr}
}

// backoffDelay returns base doubled per prior attempt, capped.
func backoffDelay(job Job, attempt int) time.Duration {
	base := job.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	ceiling := job.BackoffCap
	if ceiling <= 0 {
		ceiling = defaultBackoffCap
	}

	delay := base << (attempt - 1)
	if delay > ceiling || delay <= 0 {
		delay = ceiling
	}
	return delay
}
