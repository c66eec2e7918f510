package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Spok95/achievement-service/internal/ctxutil"
)

func TestInit(t *testing.T) {
	l, err := Init("warn", "prod", "achievement-api")
	require.NoError(t, err)
	defer l.Closer()
	assert.Equal(t, zapcore.WarnLevel, l.Level.Level())

	l, err = Init("nonsense", "dev", "")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, l.Level.Level())
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := ctxutil.WithRequestID(context.Background(), "req-1")
	ctx = ctxutil.WithActorID(ctx, "u-bk")
	ctx = ctxutil.WithOp(ctx, "job.expire_featured")
	FromContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "u-bk", fields["actor_id"])
	assert.Equal(t, "job.expire_featured", fields["op"])
	assert.NotContains(t, fields, "chat_id")

	assert.Same(t, base, FromContext(context.Background(), base))
}
