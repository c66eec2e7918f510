package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/logging"
	"github.com/Spok95/achievement-service/internal/observability"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
	log *zap.Logger
	wg  sync.WaitGroup
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctx: ctx, log: log}
}

// Every запускает fn раз в interval до отмены контекста; interval <= 0 — задача выключена.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	if interval <= 0 {
		r.log.Info("job disabled", zap.String("job", name))
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				r.run(name, fn)
			}
		}
	}()
}

// run — один прогон с метриками; паника задачи не роняет процесс.
func (r *Runner) run(name string, fn Job) {
	start := time.Now()
	ctx := ctxutil.WithOp(r.ctx, "job."+name)
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic in job %s: %v", name, p)
			}
		}()
		return fn(ctx)
	}()
	jobRuns.WithLabelValues(name).Inc()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil && r.ctx.Err() == nil {
		jobErrors.WithLabelValues(name).Inc()
		observability.CaptureErrCtx(ctx, err)
		logging.FromContext(ctx, r.log).Error("job failed", zap.Error(err))
	}
}

// Wait ждёт завершения всех циклов после отмены контекста.
func (r *Runner) Wait() { r.wg.Wait() }
