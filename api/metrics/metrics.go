package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ados_api_build_info",
			Help: "Build information of the ADOS API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ados_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ados_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_api_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"limiter"},
	)

	// Execution engine metrics
	EngineQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_engine_queries_total",
			Help: "Total number of queries executed by an engine",
		},
		[]string{"engine", "status"},
	)

	EngineQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ados_engine_query_duration_seconds",
			Help:    "Duration of engine queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"engine"},
	)

	// Anthropic API metrics
	AnthropicRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_anthropic_requests_total",
			Help: "Total number of Anthropic API requests",
		},
		[]string{"endpoint", "status"},
	)

	AnthropicRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ados_anthropic_request_duration_seconds",
			Help:    "Duration of Anthropic API requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~410s
		},
		[]string{"endpoint"},
	)

	AnthropicTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_anthropic_tokens_total",
			Help: "Total number of Anthropic API tokens used",
		},
		[]string{"type"}, // "input", "output", "cache_creation", "cache_read"
	)

	// Pipeline metrics
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_pipeline_runs_total",
			Help: "Total number of compilation runs by terminal stage and failure kind",
		},
		[]string{"stage", "kind"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ados_pipeline_stage_duration_seconds",
			Help:    "Duration of compilation stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"stage"},
	)

	PipelineFailedStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ados_pipeline_failed_stage_total",
			Help: "Total number of failed runs by the stage they failed at",
		},
		[]string{"stage"},
	)

	AsyncRunsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ados_pipeline_async_runs_in_flight",
			Help: "Number of asynchronous runs currently queued or executing",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordEngineQuery records metrics for a query run by an execution engine.
func RecordEngineQuery(engine string, duration time.Duration, err error) {
	EngineQueriesTotal.WithLabelValues(engine, status(err)).Inc()
	EngineQueryDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordAnthropicRequest records metrics for an Anthropic API request.
func RecordAnthropicRequest(endpoint string, duration time.Duration, err error) {
	AnthropicRequestsTotal.WithLabelValues(endpoint, status(err)).Inc()
	AnthropicRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAnthropicTokensWithCache records token usage including cache metrics.
func RecordAnthropicTokensWithCache(inputTokens, outputTokens, cacheCreationTokens, cacheReadTokens int64) {
	AnthropicTokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	AnthropicTokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	if cacheCreationTokens > 0 {
		AnthropicTokensTotal.WithLabelValues("cache_creation").Add(float64(cacheCreationTokens))
	}
	if cacheReadTokens > 0 {
		AnthropicTokensTotal.WithLabelValues("cache_read").Add(float64(cacheReadTokens))
	}
}

// RecordPipelineRun records a run that reached a terminal stage. kind is empty for successful runs.
func RecordPipelineRun(stage, failedAt, kind string) {
	if kind == "" {
		kind = "none"
	}
	PipelineRunsTotal.WithLabelValues(stage, kind).Inc()
	if failedAt != "" {
		PipelineFailedStageTotal.WithLabelValues(failedAt).Inc()
	}
}

// RecordPipelineStage records how long one stage of a run took.
func RecordPipelineStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
