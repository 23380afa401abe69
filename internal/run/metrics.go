package run

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricRows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tm_uninstall_rows_total",
		Help: "Total number of data rows read from the input file",
	})
	metricMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tm_uninstall_rows_malformed_total",
		Help: "Rows the CSV parser rejected",
	})
	metricInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tm_uninstall_rows_invalid_total",
		Help: "Rows skipped because the instance ID failed validation",
	})
	metricSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tm_uninstall_dispatch_success_total",
		Help: "Rows whose uninstall command was acknowledged by SSM",
	})
	metricFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tm_uninstall_dispatch_failure_total",
		Help: "Rows whose dispatch or preflight failed",
	})
)

func init() {
	prometheus.MustRegister(metricRows)
	prometheus.MustRegister(metricMalformed)
	prometheus.MustRegister(metricInvalid)
	prometheus.MustRegister(metricSuccess)
	prometheus.MustRegister(metricFailure)
}

// ServeMetrics exposes /metrics on addr for the duration of the run.
// It returns immediately; the server is shut down when ctx ends.
func ServeMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server", "error", err)
		}
	}()
	log.Info("metrics server listening", "addr", addr)
}
