package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Maintainer — обслуживающие операции сервиса достижений.
type Maintainer interface {
	ReconcileStatistics(ctx context.Context) (int, error)
	ExpireFeatured(ctx context.Context) (int64, error)
}

// ReconcileStatistics пересчитывает строки статистики и сообщает, сколько пришлось исправить.
func ReconcileStatistics(m Maintainer, log *zap.Logger) Job {
	return func(ctx context.Context) error {
		fixed, err := m.ReconcileStatistics(ctx)
		if err != nil {
			return err
		}
		if fixed > 0 {
			log.Warn("statistics reconciled", zap.Int("fixed", fixed))
		}
		return nil
	}
}

func ExpireFeatured(m Maintainer) Job {
	return func(ctx context.Context) error {
		_, err := m.ExpireFeatured(ctx)
		return err
	}
}

// Register вешает обе задачи на runner; нулевой интервал задачу выключает.
func Register(r *Runner, m Maintainer, reconcileEvery, expiryEvery time.Duration) {
	r.Every(reconcileEvery, "reconcile_statistics", ReconcileStatistics(m, r.log))
	r.Every(expiryEvery, "expire_featured", ExpireFeatured(m))
}
