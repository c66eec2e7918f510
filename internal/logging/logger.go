package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Spok95/achievement-service/internal/ctxutil"
)

type Log struct {
	Base   *zap.Logger
	Sugar  *zap.SugaredLogger
	Level  zap.AtomicLevel
	Closer func()
}

// Init: env=prod — JSON, иначе консольный вывод. Каждая строка несёт имя бинарника.
func Init(level, env, service string) (*Log, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var cfg zap.Config
	if strings.ToLower(env) == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if service != "" {
		cfg.InitialFields = map[string]any{"service": service}
	}

	base, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, err
	}
	return &Log{
		Base:   base,
		Sugar:  base.Sugar(),
		Level:  lvl,
		Closer: func() { _ = base.Sync() },
	}, nil
}

// Fields — request id, пользователь, чат и операция из контекста.
func Fields(ctx context.Context) []zap.Field {
	var fs []zap.Field
	if id, ok := ctxutil.RequestID(ctx); ok && id != "" {
		fs = append(fs, zap.String("request_id", id))
	}
	if id, ok := ctxutil.ActorID(ctx); ok && id != "" {
		fs = append(fs, zap.String("actor_id", id))
	}
	if id, ok := ctxutil.ChatID(ctx); ok {
		fs = append(fs, zap.Int64("chat_id", id))
	}
	if op, ok := ctxutil.Op(ctx); ok && op != "" {
		fs = append(fs, zap.String("op", op))
	}
	return fs
}

// FromContext — логгер с полями контекста.
func FromContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	if fs := Fields(ctx); len(fs) > 0 {
		return l.With(fs...)
	}
	return l
}
