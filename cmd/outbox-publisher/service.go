package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/events"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/metrics"
	"github.com/identitywear/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// outcome is what happened to a single row during a drain.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

type RelayParams struct {
	Outbox    config.OutboxConfig
	Logger    *logger.Logger
	DB        txRunner
	Store     outboxStore
	Resolver  eventResolver
	Publisher events.Publisher
	Metrics   *metrics.RelayMetrics
}

// Relay drains committed outbox rows to the broker. A row is published at
// least once; consumers dedupe on the event_id header.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       outboxStore
	resolver    eventResolver
	publisher   events.Publisher
	metrics     *metrics.RelayMetrics
	batchSize   int
	maxAttempts int
	idle        time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Store == nil:
		return nil, errors.New("outbox repository is required")
	case params.Resolver == nil:
		return nil, errors.New("event registry is required")
	case params.Publisher == nil:
		return nil, errors.New("publisher is required")
	}

	relay := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		store:       params.Store,
		resolver:    params.Resolver,
		publisher:   params.Publisher,
		metrics:     params.Metrics,
		batchSize:   positiveOr(params.Outbox.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(params.Outbox.MaxAttempts, defaultMaxAttempts),
		idle:        defaultPollInterval,
	}
	if params.Outbox.PollIntervalMS > 0 {
		relay.idle = time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond
	}
	return relay, nil
}

// Run polls until ctx is canceled. Full batches are followed immediately by
// another drain; empty batches wait one poll interval and failing batches back
// off exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	wait := r.idle
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox drain failed", err)
			wait = nextBackoff(wait, r.idle, maxBackoff)
		case n > 0:
			wait = r.idle
			continue
		default:
			wait = r.idle
		}

		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// drain handles one batch inside a single transaction and reports how many
// rows it touched.
func (r *Relay) drain(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() { r.metrics.ObserveBatch(time.Since(started)) }()

	touched := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, row := range rows {
			if err := r.handle(ctx, tx, row); err != nil {
				return err
			}
			touched++
		}
		return nil
	})
	return touched, err
}

// handle delivers one row and records the outcome. Only bookkeeping errors
// are returned; a failed publish is stored on the row.
func (r *Relay) handle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	ctx = r.logg.WithFields(ctx, rowFields(row))

	result, reason, publishErr := r.deliver(ctx, row)
	switch result {
	case outcomePublished:
		if err := r.store.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.metrics.IncPublished(string(row.EventType))
		r.logg.Info(ctx, "outbox event published")
	case outcomeRetry:
		r.metrics.IncFailed(reason)
		r.logg.Warn(r.logg.WithField(ctx, "error", publishErr.Error()), "outbox publish failed, will retry")
		if err := r.store.MarkFailedTx(tx, row.ID, publishErr); err != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
	case outcomeParked:
		r.metrics.IncFailed(reason)
		parkedCtx := r.logg.WithFields(ctx, map[string]any{"terminal_reason": reason, "error": publishErr.Error()})
		r.logg.Warn(parkedCtx, "outbox event parked")
		if err := r.store.MarkTerminalTx(tx, row.ID, publishErr, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) (outcome, string, error) {
	resolved, err := r.resolver.Resolve(row)
	if err != nil {
		return outcomeParked, "non_retryable", err
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	err = r.publisher.Publish(publishCtx, messageFor(row, resolved))
	if err == nil {
		return outcomePublished, "", nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeParked, "non_retryable", err
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		return outcomeParked, "max_attempts", fmt.Errorf("max publish attempts reached: %w", err)
	}
	return outcomeRetry, "transient", err
}

// messageFor keys by aggregate id so all events of one order land on the same
// partition in commit order.
func messageFor(row models.OutboxEvent, resolved *registry.ResolvedEvent) events.Message {
	aggregateID := row.AggregateID.String()
	return events.Message{
		Topic: resolved.Descriptor.Topic,
		Key:   aggregateID,
		Value: row.Payload,
		Time:  resolved.Envelope.OccurredAt,
		Headers: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   aggregateID,
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outboxId":      row.ID.String(),
		"eventType":     row.EventType,
		"aggregateType": row.AggregateType,
		"aggregateId":   row.AggregateID.String(),
		"attemptCount":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["lastError"] = *row.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current < base {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
