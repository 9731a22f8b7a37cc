// Package metrics exposes Prometheus counters and histograms for the SACCO
// back-office services.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/savacoop/saccocore/pkg/logger"
)

// Metrics holds the metric collectors shared across services.
type Metrics struct {
	HTTPRequestsTotal   prometheus.Counter
	HTTPRequestDuration prometheus.Histogram

	LedgerPostsTotal    *prometheus.CounterVec
	LedgerPostDuration  prometheus.Histogram
	DuplicatePostsTotal prometheus.Counter

	LoansDisbursedTotal    prometheus.Counter
	DisbursementErrorTotal prometheus.Counter
	RepaymentsOverdueTotal prometheus.Counter
	PenaltySweepDuration   prometheus.Histogram

	DividendsDistributedTotal prometheus.Counter
	NotificationsSentTotal    *prometheus.CounterVec
	GatewayRetriesTotal       prometheus.Counter

	registry *prometheus.Registry
}

// New registers the collector set under the sacco namespace.
func New(serviceName string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "http_requests_total", Help: "Total HTTP requests",
		}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "http_request_duration_seconds", Help: "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}),
		LedgerPostsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "ledger_posts_total", Help: "Ledger posts by transaction type",
		}, []string{"type"}),
		LedgerPostDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "ledger_post_duration_seconds", Help: "Ledger post latency",
			Buckets: prometheus.DefBuckets,
		}),
		DuplicatePostsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "ledger_duplicate_posts_total", Help: "Posts rejected as idempotent replays",
		}),
		LoansDisbursedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "loans_disbursed_total", Help: "Loans disbursed",
		}),
		DisbursementErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "disbursement_errors_total", Help: "Failed disbursement attempts",
		}),
		RepaymentsOverdueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "repayments_overdue_total", Help: "Repayments marked overdue by the sweep",
		}),
		PenaltySweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "penalty_sweep_duration_seconds", Help: "Arrears sweep duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		DividendsDistributedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "dividends_distributed_total", Help: "Member dividends paid out",
		}),
		NotificationsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "notifications_sent_total", Help: "Notifications by channel and outcome",
		}, []string{"channel", "outcome"}),
		GatewayRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sacco", Subsystem: serviceName,
			Name: "gateway_retries_total", Help: "Mobile money gateway retry attempts",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.LedgerPostsTotal, m.LedgerPostDuration, m.DuplicatePostsTotal,
		m.LoansDisbursedTotal, m.DisbursementErrorTotal,
		m.RepaymentsOverdueTotal, m.PenaltySweepDuration,
		m.DividendsDistributedTotal, m.NotificationsSentTotal,
		m.GatewayRetriesTotal,
	)
	return m
}

// ExposeHTTP serves /metrics on the given port. Blocks; run in a goroutine.
func (m *Metrics) ExposeHTTP(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error(context.Background(), "metrics endpoint failed", "error", err)
	}
}
