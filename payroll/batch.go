/*
batch.go - Parallel payroll runs

PURPOSE:
  Runs Calculate across many subjects' periods with a bounded worker
  pool. Different subjects, and different periods of the same subject,
  share no state and run fully in parallel; the per-period lock inside
  Lifecycle.Calculate covers the one case that must serialize.

ERROR ISOLATION:
  A fatal rounding-invariant violation halts only the affected period.
  Unrelated subjects and periods complete normally; the run result
  carries per-period outcomes for the caller to inspect.
*/
package payroll

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// =============================================================================
// BATCH RUNNER
// =============================================================================

type BatchResult struct {
	PeriodID PeriodID
	Subject  SubjectID
	Period   *PayrollPeriod
	Err      error
}

type BatchRunner struct {
	lifecycle *Lifecycle
	workers   int
	log       zerolog.Logger
}

func NewBatchRunner(lifecycle *Lifecycle, workers int, log zerolog.Logger) *BatchRunner {
	if workers < 1 {
		workers = 1
	}
	return &BatchRunner{lifecycle: lifecycle, workers: workers, log: log}
}

// Run calculates every given period, sharded across the worker pool with
// no ordering requirement between subjects. Results come back in input
// order; each carries its own error, fatal ones included.
func (r *BatchRunner) Run(ctx context.Context, ids []PeriodID) []BatchResult {
	results := make([]BatchResult, len(ids))
	work := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				id := ids[i]
				p, err := r.lifecycle.Calculate(ctx, id)

				result := BatchResult{PeriodID: id, Period: p, Err: err}
				if p != nil {
					result.Subject = p.SubjectID
				}
				results[i] = result

				if err != nil {
					event := r.log.Warn()
					if IsFatal(err) {
						event = r.log.Error()
					}
					event.Err(err).Str("period", string(id)).Msg("batch calculation failed")
				}
			}
		}()
	}

	for i := range ids {
		select {
		case work <- i:
		case <-ctx.Done():
			results[i] = BatchResult{PeriodID: ids[i], Err: ctx.Err()}
		}
	}
	close(work)
	wg.Wait()

	return results
}

// Failed returns the subset of results that errored.
func Failed(results []BatchResult) []BatchResult {
	var failed []BatchResult
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}
