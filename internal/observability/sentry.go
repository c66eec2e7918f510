package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Spok95/achievement-service/internal/ctxutil"
)

// InitSentry: пустой DSN — отправка выключена, возвращается пустой flush.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CaptureErrCtx — как CaptureErr, но с тегами из контекста.
func CaptureErrCtx(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range Tags(ctx) {
			scope.SetTag(k, v)
		}
	})
	hub.CaptureException(err)
}

// Tags — теги события: request_id, actor_id, chat_id, op.
func Tags(ctx context.Context) map[string]string {
	tags := map[string]string{}
	if id, ok := ctxutil.RequestID(ctx); ok && id != "" {
		tags["request_id"] = id
	}
	if id, ok := ctxutil.ActorID(ctx); ok && id != "" {
		tags["actor_id"] = id
	}
	if id, ok := ctxutil.ChatID(ctx); ok {
		tags["chat_id"] = strconv.FormatInt(id, 10)
	}
	if op, ok := ctxutil.Op(ctx); ok && op != "" {
		tags["op"] = op
	}
	return tags
}
