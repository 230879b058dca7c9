package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anirec_pipeline_runs_total",
		Help: "Total training pipeline runs",
	})
	PipelineErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anirec_pipeline_errors_total",
		Help: "Total failed pipeline runs",
	})
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "anirec_pipeline_duration_seconds",
		Help:    "Pipeline duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	EvalMSE = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anirec_eval_mse",
		Help: "Mean squared error of the last evaluation (normalized scale)",
	})
	EvalAccuracy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anirec_eval_accuracy",
		Help: "Tolerance accuracy of the last evaluation",
	})
	Recommendations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anirec_recommendations_total",
		Help: "Recommended items emitted",
	}, []string{"source"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anirec_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anirec_cache_lookups_total",
		Help: "Response cache lookups by result",
	}, []string{"result"})
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "anirec_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anirec_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anirec_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(PipelineRuns, PipelineErrors, PipelineDuration, EvalMSE, EvalAccuracy,
		Recommendations, APIRetries, CacheLookups, CircuitBreakerState, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
// An empty addr falls back to METRICS_ADDR; if both are empty nothing starts.
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
}

// ObservePipelineDuration records a run duration.
func ObservePipelineDuration(start time.Time) {
	PipelineDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
