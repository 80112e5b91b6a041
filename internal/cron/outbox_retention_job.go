package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/logger"
)

const (
	outboxRetentionJobName = "outbox-retention"
	outboxRetentionDays    = 30
	day                    = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedOutboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedOutboxPruner
	// Retention is in days; delivered rows older than this are pruned.
	Retention int
}

// outboxRetentionJob keeps the outbox table small. Rows the relay has not
// delivered yet, parked ones included, are never touched.
type outboxRetentionJob struct {
	logg   *logger.Logger
	db     txRunner
	pruner publishedOutboxPruner
	keep   time.Duration
	now    func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = outboxRetentionDays
	}
	return &outboxRetentionJob{
		logg:   params.Logger,
		db:     params.DB,
		pruner: params.Repository,
		keep:   time.Duration(days) * day,
		now:    time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return outboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)

	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		pruned, err = j.pruner.DeletePublishedBefore(ctx, tx, cutoff)
		return err
	}); err != nil {
		return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":      cutoff,
		"retention":   j.keep.String(),
		"rowsDeleted": pruned,
	}), "outbox retention cleanup complete")
	return nil
}
