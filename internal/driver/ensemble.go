package driver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/rflf/internal/dynamo"
)

// Job is one independent run of an Ensemble.
type Job struct {
	Name   string
	System dynamo.System
	Config Config
	// Options are applied after the ensemble's shared options.
	Options []Option
}

// Ensemble runs independent jobs in parallel. Every job gets its own driver
// and history, so shared options must be safe for concurrent use.
type Ensemble struct {
	workers int
	opts    []Option
}

// NewEnsemble returns an ensemble running at most workers jobs at a time.
// workers <= 0 means no limit.
func NewEnsemble(workers int, opts ...Option) *Ensemble {
	return &Ensemble{workers: workers, opts: opts}
}

// Run executes every job to completion and returns results in job order. A
// failed job does not stop the others; the first failure is returned after
// all jobs finish.
func (e *Ensemble) Run(ctx context.Context, jobs []Job) ([]*Result, error) {
	results := make([]*Result, len(jobs))

	var g errgroup.Group
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}

	for i, job := range jobs {
		g.Go(func() error {
			opts := append(append([]Option(nil), e.opts...), job.Options...)
			res, err := New(job.System, opts...).Integrate(ctx, job.Config)
			results[i] = res
			if err != nil {
				return fmt.Errorf("job %q: %w", job.Name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
