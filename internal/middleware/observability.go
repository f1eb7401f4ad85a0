package middleware

import (
	"fmt"
	"net/http"
	"time"

	"chatbridge/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Observability wraps handlers with a request span and structured
// start/finish logging.
func Observability(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), "http_request",
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
			)
			defer span.End()

			requestID := uuid.New().String()
			start := time.Now()
			r = r.WithContext(ctx)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			requestLogger := logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"trace_id":   tracing.TraceID(ctx),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			requestLogger.Debug("HTTP request started")

			next.ServeHTTP(wrapper, r)

			span.SetAttributes(attribute.Int("http.response.status_code", wrapper.statusCode))
			if wrapper.statusCode >= 400 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			}

			requestLogger.WithFields(logrus.Fields{
				"status":      wrapper.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("HTTP request completed")
		})
	}
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
