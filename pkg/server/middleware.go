package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIdHeader = "X-Request-Id"

type requestIdKey struct{}

func requestIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey{}).(string)
	return id
}

// requestId echoes a caller supplied uuid request id or assigns a new one.
func (s *Server) requestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIdHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIdHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIdKey{}, id)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.RateLimited.Inc()
			s.writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency. Unknown paths share one label.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rec.status == http.StatusNotFound {
			path = "unmatched"
		}
		s.metrics.Requests.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("request_id", requestIdFromContext(r.Context())),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
