package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "multichat"

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_request_errors_total",
		Help:      "Total number of HTTP requests that resulted in a server error.",
	}, []string{"handler", "method"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"handler", "method"})

	endpointQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "endpoint_queries_total",
		Help:      "Model endpoint queries by outcome (ok, timeout, error).",
	}, []string{"endpoint", "outcome"})

	endpointLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "endpoint_query_duration_seconds",
		Help:      "Model endpoint query duration in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"endpoint"})

	codeExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "code_executions_total",
		Help:      "Code block executions by outcome (ok, timeout, error).",
	}, []string{"outcome"})

	codeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "code_execution_duration_seconds",
		Help:      "Code block execution duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	conversations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversations_total",
		Help:      "Finished conversation runs by stop reason.",
	}, []string{"stop_reason"})

	conversationTurns = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "conversation_turns",
		Help:      "Number of turns executed per conversation run.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})
)

func init() {
	registry.MustRegister(
		httpRequests,
		httpErrors,
		httpLatency,
		endpointQueries,
		endpointLatency,
		codeExecutions,
		codeLatency,
		conversations,
		conversationTurns,
	)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		httpErrors.WithLabelValues(handler, method).Inc()
	}
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveEndpointQuery records one model endpoint call. Callers must pass a
// bounded endpoint label, never a name taken from request input.
func ObserveEndpointQuery(endpoint, outcome string, duration time.Duration) {
	endpointQueries.WithLabelValues(endpoint, outcome).Inc()
	endpointLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveCodeExecution records one code runner invocation.
func ObserveCodeExecution(outcome string, duration time.Duration) {
	codeExecutions.WithLabelValues(outcome).Inc()
	codeLatency.Observe(duration.Seconds())
}

// ObserveConversation records a finished orchestration run.
func ObserveConversation(stopReason string, turns int) {
	conversations.WithLabelValues(stopReason).Inc()
	conversationTurns.Observe(float64(turns))
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
