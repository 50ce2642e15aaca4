package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/supply/internal/cache"
	"github.com/medrex/supply/internal/reachability"
	"github.com/medrex/supply/internal/remote"
	"github.com/medrex/supply/pkg/config"
	"github.com/medrex/supply/pkg/monitoring"
)

func checkByName(t *testing.T, report *monitoring.HealthReport, name string) monitoring.HealthCheck {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	require.Failf(t, "missing check", "no %q check in report", name)
	return monitoring.HealthCheck{}
}

func TestNewHealthManager_RemoteStoreGoesDown(t *testing.T) {
	var ok atomic.Bool
	ok.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !ok.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	cfg := &config.Config{Remote: config.RemoteConfig{BaseURL: server.URL + "/", ProbeTimeoutMS: 650, RequestTimeoutMS: 1000}}
	client := remote.NewClient(server.URL, time.Second)
	monitor := reachability.NewMonitor(client)
	require.Equal(t, reachability.ModeOnline, monitor.Probe(context.Background()))

	health := newHealthManager(cfg, monitor, cache.New(cache.NewMemoryMedium(), nil))

	report := health.CheckHealth(context.Background())
	assert.Equal(t, monitoring.HealthStatusHealthy, report.Status)
	assert.Equal(t, monitoring.HealthStatusHealthy, checkByName(t, report, "remote_store_http").Status)

	// the live check sees the outage before any request demotes the monitor
	ok.Store(false)
	report = health.CheckHealth(context.Background())
	assert.Equal(t, monitoring.HealthStatusDegraded, report.Status)
	live := checkByName(t, report, "remote_store_http")
	assert.Equal(t, monitoring.HealthStatusDegraded, live.Status)
	assert.True(t, live.Optional)
	assert.Equal(t, http.StatusBadGateway, live.Details["status_code"])
	assert.Equal(t, monitoring.HealthStatusHealthy, checkByName(t, report, "remote_store").Status)
}

func TestNewHealthManager_NoRemoteConfigured(t *testing.T) {
	monitor := reachability.NewMonitor(remote.NewClient("http://127.0.0.1:1", 50*time.Millisecond))
	monitor.Probe(context.Background())

	health := newHealthManager(&config.Config{}, monitor, cache.New(cache.NewMemoryMedium(), nil))
	report := health.CheckHealth(context.Background())

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	assert.Equal(t, []string{"local_cache", "remote_store"}, names)
	assert.Equal(t, monitoring.HealthStatusDegraded, report.Status)
}
