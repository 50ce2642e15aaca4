package orders

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// other clients have their own bucket
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Allow("10.0.0.1")

	rl.cleanup(time.Now())
	assert.Len(t, rl.buckets, 1)

	rl.cleanup(time.Now().Add(time.Hour))
	assert.Empty(t, rl.buckets)
}

func TestHandler_SubmissionsAreRateLimited(t *testing.T) {
	svc, _, _, _ := setupService(false)
	router := mux.NewRouter()
	NewHandler(svc, nil).WithRateLimit(NewRateLimiter(1, 1)).RegisterRoutes(router)

	rec := doRequest(router, http.MethodPost, "/api/v1/orders/commodity", commodityBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(router, http.MethodPost, "/api/v1/orders/commodity", commodityBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// lookups are not limited
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
