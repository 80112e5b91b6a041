package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "entry=%s", buf.String())
	return entry
}

func TestErrorIncludesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	log.Error(ctx, "checkout failed", errors.New("stripe down"))

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "stripe down", entry["error"])
	assert.Contains(t, entry, "stack")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: buf}).Warn(context.Background(), "plain")
	assert.NotContains(t, decodeLine(t, buf), "stack")

	buf.Reset()
	New(Options{ServiceName: "test", Output: buf, WarnStack: true}).Warn(context.Background(), "stacked")
	assert.Contains(t, decodeLine(t, buf), "stack")
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestFieldsAccumulateWithoutLeaking(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "DEBUG", Output: buf})

	base := log.WithCartSession(context.Background(), "sess-42")
	withOrder := log.WithFields(log.WithOrderID(base, "order-7"), map[string]any{"totalCents": 1999})

	log.Debug(withOrder, "cart.saved")
	entry := decodeLine(t, buf)
	assert.Equal(t, "sess-42", entry["cart_session"])
	assert.Equal(t, "order-7", entry["order_id"])
	assert.EqualValues(t, 1999, entry["totalCents"])

	buf.Reset()
	log.Info(base, "parent context")
	assert.NotContains(t, decodeLine(t, buf), "order_id")
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Info(context.Background(), "shown")
	assert.NotZero(t, buf.Len())

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Level: "warn", Output: buf})
	quiet.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestNilLoggerIsSilent(t *testing.T) {
	var log *Logger
	ctx := log.WithField(context.Background(), "k", "v")
	assert.NotPanics(t, func() {
		log.Info(ctx, "nothing")
		log.Warn(context.Background(), "nothing")
		log.Error(ctx, "nothing", errors.New("x"))
	})
}
