package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"frontier/internal/config"
	"frontier/internal/discovery"
	"frontier/internal/lease"
	"frontier/internal/logging"
	"frontier/internal/metrics"
	"frontier/internal/progress"
)

// Processor fetches one item. The returned Result decides whether the item
// is recorded completed or failed.
type Processor interface {
	Process(ctx context.Context, entry discovery.Entry) lease.Result
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, entry discovery.Entry) lease.Result

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, entry discovery.Entry) lease.Result {
	return f(ctx, entry)
}

// Frontier is the node surface the runner depends on.
type Frontier interface {
	Items(ctx context.Context) ([]discovery.Entry, error)
	TryClaim(ctx context.Context, identifier string) (lease.ClaimResult, error)
	ReportOutcome(ctx context.Context, result lease.Result) error
	Progress(ctx context.Context) (progress.Summary, error)
}

// Settings controls pacing of a run.
type Settings struct {
	ItemDelay     time.Duration
	MaxItems      int
	ProgressEvery int
}

// SettingsFromConfig extracts worker pacing from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ItemDelay:     cfg.ItemDelay(),
		MaxItems:      cfg.Worker.MaxItems,
		ProgressEvery: cfg.Worker.ProgressEvery,
	}
}

// RunSummary is the end-of-run report.
type RunSummary struct {
	Discovered int `json:"discovered"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Attempted is the number of items this run fetched.
func (s RunSummary) Attempted() int {
	return s.Processed + s.Failed
}

// Runner processes a node's session list.
type Runner struct {
	frontier  Frontier
	processor Processor
	settings  Settings
	logger    *slog.Logger
	metrics   *metrics.Collectors
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(c *metrics.Collectors) Option {
	return func(r *Runner) { r.metrics = c }
}

// NewRunner builds a Runner.
func NewRunner(frontier Frontier, processor Processor, settings Settings, opts ...Option) *Runner {
	r := &Runner{frontier: frontier, processor: processor, settings: settings}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "worker")
	return r
}

// Run processes the session list once. It stops early when MaxItems items
// have been attempted or ctx is cancelled, in which case the summary so far
// is returned along with ctx.Err().
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	entries, err := r.frontier.Items(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{Discovered: len(entries)}
	r.logger.Info("worker run started",
		logging.Int("discovered", summary.Discovered),
		logging.Int("max_items", r.settings.MaxItems),
		logging.Duration("item_delay", r.settings.ItemDelay),
	)

	fetchedBefore := false
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if r.settings.MaxItems > 0 && summary.Attempted() >= r.settings.MaxItems {
			r.logger.Info("item limit reached", logging.Int("max_items", r.settings.MaxItems))
			break
		}

		res, err := r.frontier.TryClaim(ctx, entry.Identifier)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			logging.ErrorWithContext(r.logger, "claim failed", "claim_failed",
				logging.Identifier(entry.Identifier),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the store path is reachable and writable"),
			)
			summary.Skipped++
			continue
		}
		if res != lease.Claimed {
			r.logger.Debug("item skipped", logging.Identifier(entry.Identifier), logging.String("result", res.String()))
			summary.Skipped++
			continue
		}

		// Pace fetches, not entries: skipped entries cost no delay.
		if fetchedBefore {
			if err := sleep(ctx, r.settings.ItemDelay); err != nil {
				return summary, err
			}
		}
		fetchedBefore = true

		start := time.Now()
		result := r.processor.Process(ctx, entry)
		if ctx.Err() != nil {
			// Leave the claim; peers recover it once the lease lapses.
			return summary, ctx.Err()
		}
		result.Identifier = entry.Identifier
		r.metrics.ObserveItemDuration(result.Outcome().String(), time.Since(start))

		if result.Success {
			summary.Processed++
		} else {
			summary.Failed++
		}
		if err := r.frontier.ReportOutcome(ctx, result); err != nil {
			logging.ErrorWithContext(r.logger, "failed to record outcome", "outcome_persist_failed",
				logging.Identifier(entry.Identifier),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the store path is reachable and writable"),
				logging.String(logging.FieldImpact, "item will be fetched again after its lease expires"),
			)
		}

		if every := r.settings.ProgressEvery; every > 0 && summary.Attempted()%every == 0 {
			r.logProgress(ctx)
		}
	}

	r.logger.Info("worker run finished",
		logging.Int("discovered", summary.Discovered),
		logging.Int("processed", summary.Processed),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (r *Runner) logProgress(ctx context.Context) {
	s, err := r.frontier.Progress(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn("progress unavailable", logging.Error(err))
		}
		return
	}
	r.logger.Info(progress.Line(s),
		logging.Float64("percent", s.Percent()),
		logging.Int("completed", s.Completed),
		logging.Int("failed", s.Failed),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
