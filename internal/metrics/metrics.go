package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the engine's counters on a private registry. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	orders      *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	batchTime   prometheus.Histogram
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "kitebatch_orders_total", Help: "Dispatched rows by outcome status and order kind"},
			[]string{"status", "kind"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "kitebatch_price_resolutions_total", Help: "Price resolutions by source"},
			[]string{"source"},
		),
		batchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kitebatch_dispatch_batch_seconds",
			Help:    "Wall time of a dispatch batch",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	r.registry.MustRegister(r.orders, r.resolutions, r.batchTime)
	return r
}

// Order counts one dispatched row.
func (r *Recorder) Order(status, kind string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(status, kind).Inc()
}

// Resolution counts one price resolution attempt.
func (r *Recorder) Resolution(source string) {
	if r == nil {
		return
	}
	r.resolutions.WithLabelValues(source).Inc()
}

// Batch observes the duration of a finished batch.
func (r *Recorder) Batch(d time.Duration) {
	if r == nil {
		return
	}
	r.batchTime.Observe(d.Seconds())
}

// Gatherer returns the private registry, e.g. to mount it on another server.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.registry }

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics: server stopped", "addr", addr, "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}
