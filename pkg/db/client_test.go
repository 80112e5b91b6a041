package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/identitywear/storefront-backend/pkg/config"
)

type ledgerRow struct {
	ID   int
	Name string
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return FromGorm(conn)
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Name: "committed"}).Error
	}))
	assert.EqualValues(t, 1, countRows(t, client))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{Name: "rolled back"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.EqualValues(t, 1, countRows(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newTestClient(t)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&ledgerRow{Name: "doomed"})
			panic("handler bug")
		})
	})
	assert.Zero(t, countRows(t, client))
}

func TestPing(t *testing.T) {
	require.NoError(t, newTestClient(t).Ping(context.Background()))
}

func TestNewWithSQLiteDriver(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		Driver:             "sqlite",
		DSN:                "file:dbclient_new?mode=memory&cache=shared",
		MaxOpenConns:       2,
		SlowQueryThreshold: 0,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "sqlite", client.DB().Dialector.Name())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: "oracle", DSN: "x"}, nil)
	require.ErrorContains(t, err, "unsupported db driver")

	_, err = New(context.Background(), config.DBConfig{}, nil)
	require.ErrorContains(t, err, "DSN is required")
}
