package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(n int) []types.CandidateFile {
	out := make([]types.CandidateFile, n)
	for i := range out {
		out[i] = types.NewCandidate(fmt.Sprintf("file%02d.go", i), i)
	}
	return out
}

func succeed(_ context.Context, f types.CandidateFile) types.ChangeProposal {
	return types.ChangeProposal{File: f, Outcome: types.OutcomeSucceeded}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		ceiling   int
		want      int
	}{
		{"explicit", 3, 8, 3},
		{"clamped to ceiling", 16, 4, 4},
		{"no ceiling", 16, 0, 16},
		{"negative uses cpus", -1, 0, runtime.NumCPU()},
		{"zero uses cpus clamped", 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.requested, tt.ceiling))
		})
	}
}

func TestRunPreservesCardinalityAndOrder(t *testing.T) {
	for _, n := range []int{0, 1, 7, 50} {
		for _, size := range []int{1, 3, 16} {
			files := candidates(n)
			got := New(log.Discard(), size).Run(context.Background(), files, succeed)

			require.Len(t, got, n)
			for i := range files {
				assert.Equal(t, files[i].Path, got[i].File.Path)
			}
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	task := func(ctx context.Context, f types.CandidateFile) types.ChangeProposal {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return succeed(ctx, f)
	}

	New(log.Discard(), 3).Run(context.Background(), candidates(30), task)

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunIsolatesPanics(t *testing.T) {
	task := func(ctx context.Context, f types.CandidateFile) types.ChangeProposal {
		if f.Path == "file02.go" {
			panic("worker exploded")
		}
		return succeed(ctx, f)
	}

	got := New(log.Discard(), 2).Run(context.Background(), candidates(5), task)

	require.Len(t, got, 5)
	for i, p := range got {
		if i == 2 {
			assert.Equal(t, types.OutcomeFailed, p.Outcome)
			assert.Equal(t, string(api.KindUnknown), p.ErrorKind)
			assert.Contains(t, p.Rationale, "worker exploded")
			assert.Equal(t, "file02.go", p.File.Path)
			continue
		}
		assert.Equal(t, types.OutcomeSucceeded, p.Outcome)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	task := func(ctx context.Context, f types.CandidateFile) types.ChangeProposal {
		calls.Add(1)
		return succeed(ctx, f)
	}

	got := New(log.Discard(), 2).Run(ctx, candidates(4), task)

	require.Len(t, got, 4)
	assert.Zero(t, calls.Load())
	for _, p := range got {
		assert.Equal(t, types.OutcomeFailed, p.Outcome)
		assert.Equal(t, string(api.KindCanceled), p.ErrorKind)
		assert.Contains(t, p.Rationale, "cancelled")
	}
}

func TestRunStopsDispatchAfterFatal(t *testing.T) {
	var calls atomic.Int32
	task := func(ctx context.Context, f types.CandidateFile) types.ChangeProposal {
		calls.Add(1)
		return types.ChangeProposal{
			File:      f,
			Outcome:   types.OutcomeFailed,
			ErrorKind: string(api.KindAuth),
			Fatal:     true,
		}
	}

	got := New(log.Discard(), 1).Run(context.Background(), candidates(4), task)

	require.Len(t, got, 4)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, got[0].Fatal)
	for _, p := range got[1:] {
		assert.Equal(t, string(api.KindCanceled), p.ErrorKind)
		assert.Contains(t, p.Rationale, "fatal")
	}
}
