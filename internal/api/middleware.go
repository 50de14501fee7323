package api

import (
	"net/http"
	"time"

	"MultiModel-Chat/internal/observability/metrics"
	"MultiModel-Chat/pkg/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument 为每个请求记录指标与审计日志。
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		// ServeMux 在路由时写入 Pattern，未匹配的请求归为同一类以控制标签数量。
		handler := r.Pattern
		if handler == "" {
			handler = "unmatched"
		}
		metrics.ObserveHTTPRequest(handler, r.Method, rec.status, duration)
		logger.Audit().Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}
