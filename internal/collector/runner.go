package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zerotwo/ine-collector/internal/db"
	"github.com/zerotwo/ine-collector/internal/ine"
	"github.com/zerotwo/ine-collector/internal/models"
	"github.com/zerotwo/ine-collector/internal/normalize"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("collection already running")

// Fetcher retrieves the raw series list of one remote table.
type Fetcher interface {
	Fetch(ctx context.Context, externalID string) (models.SeriesList, error)
	Ping(ctx context.Context) error
}

// Store is the persistence surface a run needs.
type Store interface {
	ListActiveDatasets(ctx context.Context) ([]models.Dataset, error)
	SaveDataset(ctx context.Context, dataset models.Dataset, series []models.NormalizedSeries, collectedAtMs int64) (models.SaveResult, error)
}

type Options struct {
	// Pause between consecutive datasets.
	Pause time.Duration
	// PersistTimeout bounds each dataset's transaction.
	PersistTimeout time.Duration
	// DryRun fetches and normalizes without writing.
	DryRun bool
}

// Runner executes collection runs one dataset at a time.
type Runner struct {
	fetcher Fetcher
	store   Store
	opts    Options
	log     *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

func NewRunner(fetcher Fetcher, store Store, opts Options, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Minute
	}
	return &Runner{
		fetcher: fetcher,
		store:   store,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// TestConnection reports whether the remote API answers.
func (r *Runner) TestConnection(ctx context.Context) bool {
	if err := r.fetcher.Ping(ctx); err != nil {
		r.log.Warn("remote api unreachable", zap.Error(err))
		return false
	}
	return true
}

// Run processes every active dataset. Individual dataset failures are
// recorded in the summary; only failing to list datasets aborts the run.
// When ctx ends, datasets not yet started are reported as cancelled.
func (r *Runner) Run(ctx context.Context) (models.RunSummary, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return models.RunSummary{}, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	summary := models.RunSummary{
		RunID:        uuid.NewString(),
		StartedAt:    r.now().UTC(),
		StatusCounts: make(map[models.DatasetStatus]int),
		Results:      make([]models.DatasetResult, 0),
	}
	log := r.log.With(zap.String("run_id", summary.RunID))

	datasets, err := r.store.ListActiveDatasets(ctx)
	if err != nil {
		return summary, err
	}
	summary.TotalDatasets = len(datasets)
	log.Info("collection started", zap.Int("datasets", len(datasets)), zap.Bool("dry_run", r.opts.DryRun))

	cancelled := false
	for i, ds := range datasets {
		if !cancelled && (ctx.Err() != nil || (i > 0 && !r.sleep(ctx))) {
			log.Warn("collection cancelled", zap.Int("processed", i), zap.Int("remaining", len(datasets)-i))
			cancelled = true
		}

		var res models.DatasetResult
		if cancelled {
			res = models.DatasetResult{
				DatasetID:  ds.ID,
				Code:       ds.Code,
				Name:       ds.Name,
				ExternalID: ds.ExternalID,
				Status:     models.StatusCancelled,
			}
		} else {
			res = r.processDataset(ctx, ds, log)
		}
		summary.Results = append(summary.Results, res)
		summary.StatusCounts[res.Status]++
		if res.Status == models.StatusSuccess {
			summary.TotalRecords += res.RecordCount
		}
	}

	summary.FinishedAt = r.now().UTC()
	log.Info("collection finished",
		zap.Int("records", summary.TotalRecords),
		zap.Int("success", summary.StatusCounts[models.StatusSuccess]),
		zap.Int("failed", len(summary.Results)-summary.StatusCounts[models.StatusSuccess]-summary.StatusCounts[models.StatusCancelled]),
		zap.Int("cancelled", summary.StatusCounts[models.StatusCancelled]),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

func (r *Runner) processDataset(ctx context.Context, ds models.Dataset, log *zap.Logger) models.DatasetResult {
	res := models.DatasetResult{
		DatasetID:  ds.ID,
		Code:       ds.Code,
		Name:       ds.Name,
		ExternalID: ds.ExternalID,
	}
	log = log.With(zap.String("code", ds.Code), zap.String("external_id", ds.ExternalID))

	// Once started a dataset runs to completion or its own timeout; run
	// cancellation is only observed between datasets.
	ctx = context.WithoutCancel(ctx)

	raw, err := r.fetcher.Fetch(ctx, ds.ExternalID)
	if err != nil {
		res.Error = err.Error()
		if ine.IsTimeout(err) {
			res.Status = models.StatusTimeout
		} else {
			res.Status = models.StatusError
		}
		log.Warn("fetch failed", zap.String("status", string(res.Status)), zap.Error(err))
		return res
	}

	series := normalize.Series(raw, log)
	res.SeriesCount = len(series)
	res.RecordCount = models.ObservationCount(series)
	if len(series) == 0 {
		res.Status = models.StatusNoData
		log.Info("no usable series")
		return res
	}

	if r.opts.DryRun {
		res.Status = models.StatusSuccess
		for _, s := range series {
			var first *float64
			if len(s.Observations) > 0 {
				first = s.Observations[0].Value
			}
			log.Debug("dry-run: would replace series",
				zap.String("series", s.Metadata.Code),
				zap.Int("observations", len(s.Observations)),
				zap.String("first_value", normalize.ValuePtrString(first)),
			)
		}
		log.Info("dry-run: skipping persistence",
			zap.Int("series", res.SeriesCount),
			zap.Int("records", res.RecordCount),
		)
		return res
	}

	persistCtx, cancel := context.WithTimeout(ctx, r.opts.PersistTimeout)
	defer cancel()

	saved, err := r.store.SaveDataset(persistCtx, ds, series, r.now().UnixMilli())
	if err != nil {
		res.Error = err.Error()
		res.RecordCount = 0
		if errors.Is(persistCtx.Err(), context.DeadlineExceeded) || db.IsTimeout(err) {
			res.Status = models.StatusTimeoutError
		} else {
			res.Status = models.StatusError
		}
		log.Error("persist failed", zap.String("status", string(res.Status)), zap.Error(err))
		return res
	}

	res.Status = models.StatusSuccess
	res.SeriesCount = saved.SeriesUpserted
	res.RecordCount = saved.ObservationsInserted
	log.Info("dataset collected",
		zap.Int("series", saved.SeriesUpserted),
		zap.Int("records", saved.ObservationsInserted),
	)
	return res
}

// sleep waits for the configured pause and reports false when ctx ends first.
func (r *Runner) sleep(ctx context.Context) bool {
	if r.opts.Pause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.opts.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
