package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
)

const outboxTable = `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`

func newOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(outboxTable).Error)
	return db
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{Email: "a@b.no"},
			Data:          map[string]any{"order_id": orderID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	assert.Equal(t, 1, env.Version)
	assert.NotEmpty(t, env.EventID)
	assert.False(t, env.OccurredAt.IsZero())
	require.NotNil(t, env.Actor)
	assert.Equal(t, "a@b.no", env.Actor.Email)
	assert.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(env.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]any{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	db := newOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	require.ErrorIs(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPaid}), ErrNoTransaction)
	require.Error(t, svc.Emit(context.Background(), db, DomainEvent{EventType: "bogus"}))
}

func TestSealStampsClockAndVersion(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	svc := NewService(nil, nil)
	svc.now = func() time.Time { return fixed }

	row, env, err := svc.seal(DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          map[string]int{"total": 100},
	})
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(fixed))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())

	decoded, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.JSONEq(t, `{"total":100}`, string(decoded.Data))
}

func TestDecodeEnvelopeRejectsBrokenPayloads(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"version":1,"data":{}}`))
	require.Error(t, err)
}

func TestRepositoryFetchSkipsPublishedAndExhausted(t *testing.T) {
	db := newOutboxTestDB(t)
	repo := NewRepository(db)

	fresh := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	done := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	dead := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	for _, row := range []models.OutboxEvent{fresh, done, dead} {
		require.NoError(t, repo.Insert(db, row))
	}
	require.NoError(t, repo.MarkPublishedTx(db, done.ID))
	require.NoError(t, repo.MarkTerminalTx(db, dead.ID, errors.New("bad payload"), 5))
	require.NoError(t, repo.MarkFailedTx(db, fresh.ID, errors.New("broker down")))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "broker down", *rows[0].LastError)
}

func TestRepositoryDeletePublishedBeforeKeepsPending(t *testing.T) {
	db := newOutboxTestDB(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	oldPublished := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	recentPublished := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	pending := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	for _, row := range []models.OutboxEvent{oldPublished, recentPublished, pending} {
		require.NoError(t, repo.Insert(db, row))
	}
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", oldPublished.ID).Update("published_at", now.Add(-40*24*time.Hour)).Error)
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", recentPublished.ID).Update("published_at", now.Add(-time.Hour)).Error)

	deleted, err := repo.DeletePublishedBefore(context.Background(), db, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Order("created_at ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	ids := []uuid.UUID{remaining[0].ID, remaining[1].ID}
	assert.Contains(t, ids, recentPublished.ID)
	assert.Contains(t, ids, pending.ID)

	_, err = repo.DeletePublishedBefore(context.Background(), nil, now)
	require.Error(t, err)
}
