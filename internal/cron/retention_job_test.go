package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

type inlineTx struct{}

func (inlineTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakePurger struct {
	cutoffs []time.Time
	err     error
}

func (f *fakePurger) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakePurger) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return f.DeletePublishedBefore(ctx, tx, cutoff)
}

func TestOutboxRetentionUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	purger := &fakePurger{}
	job, err := NewOutboxRetentionJob(logger.Nop(), inlineTx{}, purger, 7)
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "outbox-retention", job.Name())
	assert.Equal(t, []time.Time{now.Add(-7 * 24 * time.Hour)}, purger.cutoffs)
}

func TestDLQRetentionDefaultsWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	purger := &fakePurger{}
	job, err := NewDLQRetentionJob(logger.Nop(), inlineTx{}, purger, 0)
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "dlq-retention", job.Name())
	assert.Equal(t, []time.Time{now.Add(-defaultDLQRetentionDays * 24 * time.Hour)}, purger.cutoffs)
}

func TestRetentionJobWrapsPurgeError(t *testing.T) {
	job, err := NewOutboxRetentionJob(logger.Nop(), inlineTx{}, &fakePurger{err: errors.New("locked")}, 1)
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox-retention: locked")
}

func TestRetentionJobRequiresDependencies(t *testing.T) {
	_, err := NewOutboxRetentionJob(logger.Nop(), inlineTx{}, nil, 1)
	assert.Error(t, err)
	_, err = NewRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: inlineTx{}, Name: "x", Purge: (&fakePurger{}).DeletePublishedBefore})
	assert.EqualError(t, err, "x: retention days must be positive")
}
