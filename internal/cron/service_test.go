package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

type fakeLock struct {
	held       bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	runs  int
	panic bool
	seen  time.Time
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.seen, _ = ctx.Deadline()
	if t.panic {
		panic("nil map")
	}
	return t.err
}

type runLog struct {
	results map[string]error
}

func (r *runLog) ObserveRun(job string, _ time.Duration, err error) {
	r.results[job] = err
}

func TestRunCycleRunsEveryJobEvenOnFailure(t *testing.T) {
	ok, failing := &testJob{name: "ok"}, &testJob{name: "failing", err: errors.New("boom")}
	lock := &fakeLock{}
	rec := &runLog{results: map[string]error{}}
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: mustRegistry(t, ok, failing),
		Lock:     lock,
		Metrics:  rec,
	})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, lock.releases)
	assert.NoError(t, rec.results["ok"])
	assert.EqualError(t, rec.results["failing"], "boom")
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "ok"}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: mustRegistry(t, job), Lock: &fakeLock{held: true}})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)

	svc.lock = &fakeLock{acquireErr: errors.New("redis down")}
	assert.ErrorContains(t, svc.runCycle(context.Background()), "lock acquire")
}

func TestRunReturnsOnCancel(t *testing.T) {
	job := &testJob{name: "ok"}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: mustRegistry(t, job), Lock: &fakeLock{}})
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, svc.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
	assert.Zero(t, job.runs, "jobs are skipped once shutdown started")
}

func TestRunCycleRecoversPanickingJob(t *testing.T) {
	bad, after := &testJob{name: "bad", panic: true}, &testJob{name: "after"}
	lock := &fakeLock{}
	rec := &runLog{results: map[string]error{}}
	svc, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   mustRegistry(t, bad, after),
		Lock:       lock,
		Metrics:    rec,
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.ErrorContains(t, rec.results["bad"], "panicked")
	assert.Equal(t, 1, after.runs)
	assert.Equal(t, 1, lock.releases)
	assert.WithinDuration(t, time.Now().Add(time.Minute), after.seen, 5*time.Second)
}

func TestRunCycleReleasesLockAfterCancel(t *testing.T) {
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: mustRegistry(t, &testJob{name: "ok"}), Lock: lock})
	require.NoError(t, err)
	assert.Equal(t, defaultJobTimeout, svc.jobTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.runCycle(ctx))
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	return registry
}
