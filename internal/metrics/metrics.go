package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkflowOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "achievements", Name: "workflow_ops_total", Help: "Workflow operations by result",
	}, []string{"op", "result"})
	WorkflowOpSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "achievements", Name: "workflow_op_seconds", Help: "Workflow operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	HallOfFamePromotions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "achievements", Name: "hall_of_fame_promotions_total", Help: "Hall of fame entries created",
	})
	StatisticsDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "achievements", Name: "statistics_drift_total", Help: "Statistics rows repaired by recompute",
	})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "achievements", Name: "http_requests_total", Help: "HTTP requests",
	}, []string{"method", "route", "code"})
	BotUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "achievements", Name: "bot_updates_total", Help: "Processed telegram updates",
	})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "achievements", Name: "handler_errors_total", Help: "Handler errors",
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "achievements", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(WorkflowOps, WorkflowOpSeconds, HallOfFamePromotions, StatisticsDrift,
		HTTPRequests, BotUpdates, HandlerErrors, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// ObserveWorkflow — результат операции: "ok" либо тип ошибки в нижнем регистре.
func ObserveWorkflow(op, result string, d time.Duration) {
	WorkflowOps.WithLabelValues(op, result).Inc()
	WorkflowOpSeconds.WithLabelValues(op).Observe(d.Seconds())
}
