package jobregistry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/3leaps/protsearch/pkg/jobid"
)

const (
	DefaultRetention    = 14 * 24 * time.Hour
	DefaultPollInterval = 3 * time.Second
)

// Searcher runs the external search for one job. Implementations must
// produce resultFile on success; the executor never inspects anything but
// the file's presence.
type Searcher interface {
	Search(ctx context.Context, queryFile, resultFile string) error
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, queryFile, resultFile string) error

func (f SearcherFunc) Search(ctx context.Context, queryFile, resultFile string) error {
	return f(ctx, queryFile, resultFile)
}

var errStillProcessing = errors.New("job still processing")

// ExecutorConfig configures an Executor. Zero values select defaults.
type ExecutorConfig struct {
	Retention    time.Duration
	PollInterval time.Duration
	IDs          *jobid.Generator
	Logger       *zap.Logger
	Now          func() time.Time
}

// Executor accepts search submissions and runs them.
//
// Submit writes the query file and returns; the search and an expiry sweep
// run on background goroutines that outlive the caller's context. Failures
// in background work are logged and, for searches, recorded as a failure
// marker next to the result file. Nothing is reported back to the submitter.
type Executor struct {
	store        *Store
	search       Searcher
	ids          *jobid.Generator
	retention    time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
	now          func() time.Time

	wg       sync.WaitGroup
	sweeping atomic.Bool
}

func NewExecutor(store *Store, search Searcher, cfg ExecutorConfig) *Executor {
	e := &Executor{
		store:        store,
		search:       search,
		ids:          cfg.IDs,
		retention:    cfg.Retention,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	if e.ids == nil {
		e.ids = jobid.NewGenerator(jobid.GeneratorConfig{})
	}
	if e.retention <= 0 {
		e.retention = DefaultRetention
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Executor) Store() *Store {
	return e.store
}

func (e *Executor) Retention() time.Duration {
	return e.retention
}

// Submit validates seq, persists the query and schedules the search. It
// returns as soon as the query file is written.
func (e *Executor) Submit(ctx context.Context, seq string) (jobid.ID, error) {
	id, err := e.prepare(seq)
	if err != nil {
		return jobid.Nil, err
	}

	bg := context.WithoutCancel(ctx)
	e.goBackground("search", id, func() {
		_ = e.runSearch(bg, id)
	})
	e.scheduleSweep()
	return id, nil
}

// SubmitAndWait validates seq, persists the query, runs the search and
// polls the job status until it is completed or failed. Only ctx bounds the
// wait; the search itself keeps running to completion if ctx ends first.
func (e *Executor) SubmitAndWait(ctx context.Context, seq string) (*JobResult, error) {
	id, err := e.prepare(seq)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	e.goBackground("search", id, func() {
		_ = e.runSearch(bg, id)
	})
	e.scheduleSweep()

	if err := e.waitForTerminal(ctx, id); err != nil {
		return nil, fmt.Errorf("wait for job %s: %w", id, err)
	}
	return e.store.Results(id)
}

func (e *Executor) prepare(seq string) (jobid.ID, error) {
	seq, err := ValidateSequence(seq)
	if err != nil {
		return jobid.Nil, err
	}
	id, err := e.ids.Mint()
	if err != nil {
		return jobid.Nil, fmt.Errorf("mint job id: %w", err)
	}
	if err := e.store.WriteQuery(id, seq); err != nil {
		return jobid.Nil, err
	}
	e.logger.Info("Job submitted",
		zap.String("job_id", id.String()),
		zap.Int("sequence_length", len(seq)))
	return id, nil
}

// runSearch invokes the search tool for id. A failed run, or a run that
// leaves no result file behind, gets a failure marker.
func (e *Executor) runSearch(ctx context.Context, id jobid.ID) error {
	started := e.now()
	logger := e.logger.With(zap.String("job_id", id.String()))

	err := e.search.Search(ctx, e.store.QueryPath(id), e.store.ResultPath(id))
	if err == nil {
		ok, statErr := fileExists(e.store.ResultPath(id))
		switch {
		case statErr != nil:
			err = statErr
		case !ok:
			err = fmt.Errorf("search exited without writing %s", e.store.ResultPath(id))
		}
	}
	if err != nil {
		logger.Error("Search failed", zap.Error(err))
		if markErr := e.store.MarkFailed(id, err.Error()); markErr != nil {
			logger.Error("Failed to record search failure", zap.Error(markErr))
		}
		return err
	}

	logger.Info("Search completed", zap.Duration("duration", e.now().Sub(started)))
	return nil
}

func (e *Executor) waitForTerminal(ctx context.Context, id jobid.ID) error {
	backoff := retry.NewConstant(e.pollInterval)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, err := e.store.Status(id)
		if err != nil {
			return err
		}
		if status == JobStatusProcessing {
			return retry.RetryableError(errStillProcessing)
		}
		return nil
	})
}

// Sweep removes jobs older than the retention period. If a sweep is already
// running the call returns immediately with Skipped set.
func (e *Executor) Sweep() (SweepResult, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return SweepResult{Skipped: true}, nil
	}
	defer e.sweeping.Store(false)
	return e.store.Sweep(e.now(), e.retention)
}

func (e *Executor) scheduleSweep() {
	e.goBackground("sweep", jobid.Nil, func() {
		res, err := e.Sweep()
		if err != nil {
			e.logger.Error("Sweep failed", zap.Int("deleted", res.Deleted), zap.Error(err))
			return
		}
		if res.Deleted > 0 {
			e.logger.Info("Sweep removed expired jobs",
				zap.Int("scanned", res.Scanned),
				zap.Int("deleted", res.Deleted))
		}
	})
}

// RunSweeper sweeps every interval until ctx is done.
func (e *Executor) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scheduleSweep()
		}
	}
}

// Wait blocks until all background searches and sweeps have returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) goBackground(task string, id jobid.ID, fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				fields := []zap.Field{zap.String("task", task), zap.Any("panic", r)}
				if !id.IsZero() {
					fields = append(fields, zap.String("job_id", id.String()))
				}
				e.logger.Error("Background task panicked", fields...)
			}
		}()
		fn()
	}()
}
