package monitoring

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/supply/pkg/logger"
)

func TestMetricsCollector_OrderCounters(t *testing.T) {
	m := NewMetricsCollector("supply-service")

	m.RecordSubmission("local_fallback", "local")
	m.RecordSubmission("local_fallback", "local")
	m.RecordRetrieval("remote", true)
	m.RecordListing("local")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissionsTotal.WithLabelValues("local_fallback", "local", "supply-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrievalsTotal.WithLabelValues("remote", "true", "supply-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listingsTotal.WithLabelValues("local", "supply-service")))
}

func TestMetricsCollector_ModeTransition(t *testing.T) {
	m := NewMetricsCollector("supply-service")

	m.SetRemoteOnline(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteOnline.WithLabelValues("supply-service")))

	m.RecordModeTransition("ONLINE", "OFFLINE", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.remoteOnline.WithLabelValues("supply-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modeTransitions.WithLabelValues("ONLINE", "OFFLINE", "supply-service")))
}

func TestMetricsCollector_SeparateRegistries(t *testing.T) {
	// two collectors in one process must not panic on registration
	assert.NotPanics(t, func() {
		NewMetricsCollector("a")
		NewMetricsCollector("b")
	})
}

func TestMetricsCollector_HandlerAndRouteLabel(t *testing.T) {
	m := NewMetricsCollector("supply-service")

	router := mux.NewRouter()
	router.Use(m.HTTPMiddleware)
	router.HandleFunc("/api/v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", m.Handler())

	for _, id := range []string{"MED-1", "MED-2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/orders/{id}", "404", "supply-service")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.NotContains(t, rec.Body.String(), "MED-1")
}

func TestMonitoringMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("info", &buf)
	mm := NewMonitoringMiddleware(NewMetricsCollector("supply-service"), nil, log)

	var seen string
	handler := mm.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(logger.RequestIDKey).(string)
		w.WriteHeader(http.StatusCreated)
	}))

	t.Run("generated", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders/commodity", nil))

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
		assert.Contains(t, buf.String(), seen)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})
}

func TestMonitoringMiddleware_Tracing(t *testing.T) {
	tm, err := NewTracingManager(&TracingConfig{ServiceName: "supply-service", SamplingRate: 1})
	require.NoError(t, err)
	defer tm.Shutdown(context.Background())

	mm := NewMonitoringMiddleware(nil, tm, logger.Discard())

	var traceID string
	handler := mm.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Len(t, traceID, 32)
	assert.True(t, strings.Contains(rec.Header().Get("traceparent"), traceID))
}

func TestDatabaseMiddleware(t *testing.T) {
	m := NewMetricsCollector("order-store-service")
	mm := NewMonitoringMiddleware(m, nil, logger.Discard())
	wrap := mm.DatabaseMiddleware("insert", "orders")

	require.NoError(t, wrap(context.Background(), func(context.Context) error { return nil }))

	boom := errors.New("boom")
	err := wrap(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.systemErrors.WithLabelValues("database_error", "order-store-service", "database")))
}

func TestHealthManager(t *testing.T) {
	healthy := CheckFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy}
	})
	degraded := CheckFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusDegraded, Message: "remote store offline"}
	})
	unhealthy := CheckFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusUnhealthy}
	})

	tests := []struct {
		name     string
		checkers map[string]HealthChecker
		status   HealthStatus
		code     int
	}{
		{"all healthy", map[string]HealthChecker{"cache": healthy}, HealthStatusHealthy, http.StatusOK},
		{"degraded", map[string]HealthChecker{"cache": healthy, "remote": degraded}, HealthStatusDegraded, http.StatusOK},
		{"unhealthy", map[string]HealthChecker{"remote": degraded, "database": unhealthy}, HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := NewHealthManager("supply-service", "test")
			for name, c := range tt.checkers {
				hm.RegisterChecker(name, c)
			}

			rec := httptest.NewRecorder()
			hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			var report HealthReport
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, tt.status, report.Status)
			assert.Len(t, report.Checks, len(tt.checkers))
		})
	}
}

func TestHealthManager_OptionalCheckOnlyDegrades(t *testing.T) {
	hm := NewHealthManager("supply-service", "test")
	hm.RegisterChecker("local_cache", CheckFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy}
	}))
	hm.RegisterOptional("remote_store_http", CheckFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: "connection refused"}
	}))

	report := hm.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "local_cache", report.Checks[0].Name)
	assert.Equal(t, "remote_store_http", report.Checks[1].Name)
	assert.True(t, report.Checks[1].Optional)
	assert.Equal(t, HealthStatusDegraded, report.Checks[1].Status)
}

func TestHTTPHealthChecker(t *testing.T) {
	serve := func(status int, body string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	tests := []struct {
		name string
		url  string
		want HealthStatus
	}{
		{"ok true", serve(http.StatusOK, `{"ok":true}`).URL, HealthStatusHealthy},
		{"empty body", serve(http.StatusOK, "").URL, HealthStatusHealthy},
		{"ok false", serve(http.StatusOK, `{"ok":false}`).URL, HealthStatusUnhealthy},
		{"server error", serve(http.StatusBadGateway, "").URL, HealthStatusUnhealthy},
		{"refused", "http://127.0.0.1:1", HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewHTTPHealthChecker(tt.url, time.Second).Check(context.Background()).Status)
		})
	}
}

func TestDatabaseHealthChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	assert.Equal(t, HealthStatusHealthy, NewDatabaseHealthChecker(db).Check(context.Background()).Status)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Equal(t, HealthStatusUnhealthy, NewDatabaseHealthChecker(db).Check(context.Background()).Status)
}
