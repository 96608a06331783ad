package snapshot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/solidex/internal/fixture"
	"github.com/jward/solidex/internal/model"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// Assemble
// =============================================================================

func TestAssemble_Sample(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	extra := model.Finding{Detector: "recursion", Severity: model.SeverityLow, Message: "Mid2.fact calls itself"}

	s := Assemble(7, m, []model.Finding{extra}, 4)
	assert.Equal(t, uint64(7), s.Generation)
	assert.Same(t, m, s.Model)
	assert.Equal(t, 4, s.Calls.MaxDepth())
	assert.Equal(t, 4, s.Findings.Len())
	assert.Len(t, m.Findings(), 3, "model findings untouched")
	assert.Equal(t, []string{"incorrect-equality", "missing-zero-check", "naming-convention", "recursion"}, s.Findings.Detectors())
	assert.NotEqual(t, s.ID, Assemble(7, m, nil, 4).ID)
}

func TestEmpty(t *testing.T) {
	t.Parallel()
	s := Empty()
	assert.Zero(t, s.Generation)
	assert.Zero(t, s.Model.Len())
	assert.Zero(t, s.Findings.Len())
}

// =============================================================================
// Manager
// =============================================================================

func TestManager_PublishesRequestedGeneration(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	mgr := NewManager(func(ctx context.Context, gen uint64) (*Snapshot, error) {
		return Assemble(gen, m, nil, 16), nil
	})
	t.Cleanup(mgr.Stop)

	assert.Zero(t, mgr.Current().Generation)

	snap, err := mgr.Rebuild(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Same(t, snap, mgr.Current())
	assert.Nil(t, mgr.LastFailure())
}

func TestManager_StaleRebuildDiscarded(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var stale atomic.Pointer[Snapshot]

	mgr := NewManager(func(ctx context.Context, gen uint64) (*Snapshot, error) {
		s := Assemble(gen, m, nil, 16)
		if gen == 1 {
			// Ignores cancellation, like an analyzer without a cancel hook.
			close(started)
			<-release
			stale.Store(s)
		}
		return s, nil
	})
	t.Cleanup(mgr.Stop)

	g1 := mgr.RequestNow()
	<-started
	g2 := mgr.RequestNow()
	close(release)

	snap, err := mgr.Wait(waitCtx(t), g2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), g1)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.NotSame(t, stale.Load(), mgr.Current())
	assert.Equal(t, uint64(2), mgr.Current().Generation)
}

func TestManager_CancelsInFlightBuild(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	started := make(chan struct{})
	var cancelled atomic.Bool

	mgr := NewManager(func(ctx context.Context, gen uint64) (*Snapshot, error) {
		if gen == 1 {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return nil, ctx.Err()
		}
		return Assemble(gen, m, nil, 16), nil
	})
	t.Cleanup(mgr.Stop)

	mgr.RequestNow()
	<-started
	snap, err := mgr.Rebuild(waitCtx(t))
	require.NoError(t, err)
	assert.True(t, cancelled.Load())
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Nil(t, mgr.LastFailure(), "a cancelled build is not a failure")
}

func TestManager_FailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	boom := errors.New("analyzer exploded")

	mgr := NewManager(func(ctx context.Context, gen uint64) (*Snapshot, error) {
		if gen == 2 {
			return nil, boom
		}
		return Assemble(gen, m, nil, 16), nil
	})
	t.Cleanup(mgr.Stop)
	ctx := waitCtx(t)

	good, err := mgr.Rebuild(ctx)
	require.NoError(t, err)

	served, err := mgr.Rebuild(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, uint64(2), failure.Generation)
	assert.Same(t, good, served)
	assert.Same(t, good, mgr.Current())
	assert.Equal(t, uint64(2), mgr.LastFailure().Generation)

	recovered, err := mgr.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), recovered.Generation)
	assert.Nil(t, mgr.LastFailure())
}

func TestManager_DebounceCoalesces(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	var builds atomic.Int32

	mgr := NewManager(func(ctx context.Context, gen uint64) (*Snapshot, error) {
		builds.Add(1)
		return Assemble(gen, m, nil, 16), nil
	}, WithDebounce(100*time.Millisecond))
	t.Cleanup(mgr.Stop)

	var last uint64
	for range 5 {
		last = mgr.Request()
	}
	snap, err := mgr.Wait(waitCtx(t), last)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Generation)
	assert.Equal(t, int32(1), builds.Load())
}

func TestManager_StopAbandonsInFlightBuild(t *testing.T) {
	t.Parallel()
	m := fixture.Sample().Model(t)
	started := make(chan struct{})

	mgr := NewManager(func(ctx context.Context, gen uint64) (*Snapshot, error) {
		if gen == 2 {
			close(started)
			<-ctx.Done()
			return Assemble(gen, m, nil, 16), nil
		}
		return Assemble(gen, m, nil, 16), nil
	})
	ctx := waitCtx(t)

	first, err := mgr.Rebuild(ctx)
	require.NoError(t, err)

	g := mgr.RequestNow()
	<-started
	mgr.Stop()
	mgr.Stop()

	assert.Same(t, first, mgr.Current())
	_, err = mgr.Wait(ctx, g)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, g, mgr.RequestNow(), "no new generations after stop")
}

func TestManager_WaitHonoursContext(t *testing.T) {
	t.Parallel()
	mgr := NewManager(func(ctx context.Context, gen uint64) (*Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	t.Cleanup(mgr.Stop)

	g := mgr.RequestNow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := mgr.Wait(ctx, g)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
