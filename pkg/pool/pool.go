// Package pool fans analysis out over a bounded set of goroutines and joins
// the results in dispatch order.
package pool

import (
	"context"
	"fmt"
	"runtime"

	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
	"github.com/sourcegraph/conc/pool"
)

// Task analyses one candidate. It reports failure in the proposal.
type Task func(ctx context.Context, file types.CandidateFile) types.ChangeProposal

// Resolve picks the pool size: requested, or the CPU count when requested is
// not positive, clamped to [1, ceiling]. A ceiling of zero means no ceiling.
func Resolve(requested, ceiling int) int {
	n := requested
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool runs one task per candidate with at most Size tasks in flight
type Pool struct {
	logger *log.Logger
	size   int
}

// New creates a pool of size workers
func New(logger *log.Logger, size int) *Pool {
	if logger == nil {
		logger = log.Discard()
	}
	if size < 1 {
		size = 1
	}
	return &Pool{logger: logger, size: size}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// Run dispatches task for every candidate and returns after all of them are
// done. The i-th proposal belongs to the i-th candidate. A panicking or failing
// task only affects its own slot. Candidates not started when ctx is done, or
// after a task reported a fatal failure, get a Canceled proposal.
func (p *Pool) Run(ctx context.Context, candidates []types.CandidateFile, task Task) []types.ChangeProposal {
	results := make([]types.ChangeProposal, len(candidates))
	if len(candidates) == 0 {
		return results
	}

	dispatch, stop := context.WithCancel(ctx)
	defer stop()

	p.logger.Step("Analyzing %d files with %d workers", len(candidates), p.size)
	workers := pool.New().WithMaxGoroutines(p.size)
	for i, c := range candidates {
		if dispatch.Err() != nil {
			results[i] = notStarted(ctx, c)
			continue
		}
		i, c := i, c
		workers.Go(func() {
			if dispatch.Err() != nil {
				results[i] = notStarted(ctx, c)
				return
			}
			results[i] = p.runTask(ctx, c, task)
			if results[i].Fatal {
				p.logger.Error("Stopping dispatch: %s", results[i].Rationale)
				stop()
			}
		})
	}
	workers.Wait()

	return results
}

func (p *Pool) runTask(ctx context.Context, c types.CandidateFile, task Task) (res types.ChangeProposal) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task for %s panicked: %v", c.Path, r)
			res = types.ChangeProposal{
				File:      c,
				Outcome:   types.OutcomeFailed,
				ErrorKind: string(api.KindUnknown),
				Rationale: fmt.Sprintf("task panicked: %v", r),
			}
		}
	}()
	return task(ctx, c)
}

func notStarted(ctx context.Context, c types.CandidateFile) types.ChangeProposal {
	reason := "not started: run aborted after a fatal error"
	if ctx.Err() != nil {
		reason = "not started: run cancelled"
	}
	return types.ChangeProposal{
		File:      c,
		Outcome:   types.OutcomeFailed,
		ErrorKind: string(api.KindCanceled),
		Rationale: reason,
	}
}
