package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/medrex/supply/pkg/logger"
)

// MonitoringMiddleware combines metrics, tracing, and logging
type MonitoringMiddleware struct {
	metrics *MetricsCollector
	tracing *TracingManager
	logger  *logger.Logger
}

// NewMonitoringMiddleware creates a new monitoring middleware. tracing may
// be nil when tracing is disabled.
func NewMonitoringMiddleware(metrics *MetricsCollector, tracing *TracingManager, log *logger.Logger) *MonitoringMiddleware {
	return &MonitoringMiddleware{
		metrics: metrics,
		tracing: tracing,
		logger:  log,
	}
}

// HTTPMiddleware assigns a request id, opens a server span, records
// request metrics and writes one access log line per request.
func (mm *MonitoringMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeTemplate(r)

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapper.Header().Set("X-Request-ID", requestID)

		if mm.tracing != nil {
			ctx = mm.tracing.ExtractTraceContext(ctx, r.Header)
			spanCtx, span := mm.tracing.StartHTTPSpan(ctx, r.Method, route)
			ctx = spanCtx
			defer func() {
				span.SetAttributes(
					semconv.HTTPStatusCode(wrapper.statusCode),
					attribute.Int64("http.response_size", wrapper.bytesWritten),
				)
				if wrapper.statusCode >= 500 {
					span.SetStatus(codes.Error, http.StatusText(wrapper.statusCode))
				}
				span.End()
			}()
			span.SetAttributes(
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.String("request.id", requestID),
			)
			mm.tracing.InjectTraceContext(ctx, wrapper.Header())
		}

		next.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(start)
		if mm.metrics != nil {
			mm.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapper.statusCode), duration)
		}

		mm.logger.HTTPRequest(
			ctx,
			r.Method,
			r.URL.Path,
			r.UserAgent(),
			r.RemoteAddr,
			wrapper.statusCode,
			duration.Milliseconds(),
			map[string]interface{}{
				"request_id":    requestID,
				"bytes_written": wrapper.bytesWritten,
			},
		)
	})
}

// DatabaseMiddleware times a database operation and records its span,
// metrics and errors
func (mm *MonitoringMiddleware) DatabaseMiddleware(operation, table string) func(context.Context, func(context.Context) error) error {
	return func(ctx context.Context, dbFunc func(context.Context) error) error {
		start := time.Now()

		if mm.tracing == nil {
			err := dbFunc(ctx)
			mm.finishDB(operation, start, err)
			return err
		}

		ctx, span := mm.tracing.StartDatabaseSpan(ctx, operation, table)
		defer span.End()

		err := dbFunc(ctx)
		if err != nil {
			mm.tracing.RecordError(span, err)
		}
		mm.finishDB(operation, start, err)
		return err
	}
}

func (mm *MonitoringMiddleware) finishDB(operation string, start time.Time, err error) {
	if mm.metrics == nil {
		return
	}
	mm.metrics.RecordDBQuery(operation, time.Since(start))
	if err != nil {
		mm.metrics.RecordSystemError("database_error", "database")
	}
}
