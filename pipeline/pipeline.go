package pipeline

import (
	"context"
	"fmt"
	"time"

	"auction-scraper/config"
	"auction-scraper/models"
	"auction-scraper/utils"
)

// Adapter is the contract every source scraper satisfies. Discover returns
// source-native listing keys (URLs or ids); FetchDetail resolves one key to
// a canonical record; Fallback produces the minimal record used when every
// fetch attempt for a key failed.
type Adapter interface {
	Source() string
	Discover(ctx context.Context) ([]string, error)
	FetchDetail(ctx context.Context, key string) (*models.Property, error)
	Fallback(key string) *models.Property
}

// BatchResult is the outcome of one source run. Items always has one entry
// per discovered listing: a full record or a fallback.
type BatchResult struct {
	Source    string
	Items     []*models.Property
	Errors    []string
	Attempted int
	Succeeded int
	Failed    int
	Started   time.Time
	Finished  time.Time
}

// SuccessRate reports succeeded/attempted as a percentage. A run that
// attempted nothing is vacuously 100% so dashboards don't flag empty
// sources as broken.
func (r *BatchResult) SuccessRate() float64 {
	if r.Attempted == 0 {
		return 100
	}
	return float64(r.Succeeded) / float64(r.Attempted) * 100
}

// Runner drives one adapter through a full discover-then-fetch batch.
type Runner struct {
	cfg    *config.Config
	logger *utils.Logger
	retry  utils.RetryConfig

	// delay between listing fetches, injectable so tests run fast
	pause func()
}

// NewRunner creates a batch runner with the shared retry policy.
func NewRunner(cfg *config.Config, logger *utils.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger,
		retry: utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     utils.ExponentialBackoff(cfg.RetryDelay()),
			Logger:      logger,
		},
		pause: func() { time.Sleep(cfg.RequestDelay()) },
	}
}

// Run executes a full batch for one source: discovery, then a sequential
// fetch of every discovered listing. Discovery failure aborts the batch;
// individual listing failures are absorbed as fallback records so one bad
// page never sinks the run.
func (r *Runner) Run(ctx context.Context, adapter Adapter) (*BatchResult, error) {
	result := &BatchResult{
		Source:  adapter.Source(),
		Started: time.Now(),
	}

	r.logger.Info("[pipeline] %s: starting discovery", result.Source)
	var keys []string
	err := r.retry.DoContext(ctx, result.Source+" discovery", func() error {
		var derr error
		keys, derr = adapter.Discover(ctx)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s discovery: %w", result.Source, err)
	}

	keys = dedupe(keys)
	result.Attempted = len(keys)
	r.logger.Info("[pipeline] %s: %d listings to fetch", result.Source, len(keys))

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			result.Finished = time.Now()
			return result, fmt.Errorf("pipeline: %s canceled at listing %d/%d: %w",
				result.Source, i+1, len(keys), err)
		}

		var p *models.Property
		err := r.retry.DoContext(ctx, fmt.Sprintf("%s listing %s", result.Source, key), func() error {
			var ferr error
			p, ferr = adapter.FetchDetail(ctx, key)
			return ferr
		})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			p = adapter.Fallback(key)
			r.logger.Warn("[pipeline] %s: listing %s failed, emitting fallback: %v",
				result.Source, key, err)
		} else {
			result.Succeeded++
		}
		result.Items = append(result.Items, p)

		if i < len(keys)-1 {
			r.pause()
		}
	}

	result.Finished = time.Now()
	r.logger.Info("[pipeline] %s: done, %d/%d succeeded (%.1f%%) in %s",
		result.Source, result.Succeeded, result.Attempted, result.SuccessRate(),
		result.Finished.Sub(result.Started).Round(time.Second))
	return result, nil
}

func dedupe(keys []string) []string {
	set := utils.NewURLSet()
	out := keys[:0]
	for _, k := range keys {
		if k == "" {
			continue
		}
		if set.Add(k) {
			out = append(out, k)
		}
	}
	return out
}
