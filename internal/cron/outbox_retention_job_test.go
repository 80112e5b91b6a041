package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/logger"
)

var retentionNow = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

func TestOutboxRetentionJobUsesDefaultWindow(t *testing.T) {
	pruner := &recordingPruner{}
	job := newOutboxRetentionJob(t, pruner, 0)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, pruner.calls)
	assert.True(t, pruner.cutoff.Equal(retentionNow.Add(-outboxRetentionDays*day)), "cutoff %s", pruner.cutoff)
	assert.Equal(t, outboxRetentionJobName, job.Name())
}

func TestOutboxRetentionJobHonorsConfiguredRetention(t *testing.T) {
	pruner := &recordingPruner{}
	job := newOutboxRetentionJob(t, pruner, 7)

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, pruner.cutoff.Equal(retentionNow.Add(-7*day)), "cutoff %s", pruner.cutoff)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &recordingPruner{err: errors.New("boom")}, 0)
	require.ErrorContains(t, job.Run(context.Background()), "boom")
}

func TestNewOutboxRetentionJobRequiresDependencies(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{})
	require.Error(t, err)
}

func newOutboxRetentionJob(t *testing.T, pruner *recordingPruner, retentionDays int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         passthroughTxRunner{},
		Repository: pruner,
		Retention:  retentionDays,
	})
	require.NoError(t, err)
	concrete, ok := job.(*outboxRetentionJob)
	require.True(t, ok, "got %T", job)
	concrete.now = func() time.Time { return retentionNow }
	return concrete
}

type recordingPruner struct {
	cutoff time.Time
	calls  int
	err    error
}

func (r *recordingPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	r.calls++
	r.cutoff = cutoff
	return 7, r.err
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
