package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/tasklane/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActorID(ctx, "42")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "42", fields["actor_id"])
		assert.NotContains(t, fields, "org_id")
	}
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "console", normalizeFormat(" Console "))
	assert.Equal(t, "json", normalizeFormat("xml"))
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("")
	assert.NoError(t, err)
	assert.Equal(t, zap.InfoLevel, level.Level())

	level, err = parseLevel(" DEBUG ")
	assert.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, level.Level())

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestNewAddsServiceFields(t *testing.T) {
	log, err := New(nil, Config{Environment: "test", Version: "1.2.3", Level: "warn"})
	if assert.NoError(t, err) {
		assert.False(t, log.Core().Enabled(zap.InfoLevel))
		assert.True(t, log.Core().Enabled(zap.WarnLevel))
	}
}
