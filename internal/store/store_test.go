package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/supply/internal/remote"
	"github.com/medrex/supply/pkg/types"
)

// memRecords is an in-memory Records
type memRecords struct {
	mu      sync.Mutex
	byID    map[string]types.Record
	order   []string
	pingErr error
}

func newMemRecords() *memRecords {
	return &memRecords{byID: map[string]types.Record{}}
}

func (m *memRecords) Insert(_ context.Context, rec types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[rec.ID] = rec
	m.order = append([]string{rec.ID}, m.order...)
	return nil
}

func (m *memRecords) Get(_ context.Context, id string) (*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeOrderNotFound, "order not found: "+id)
	}
	return &rec, nil
}

func (m *memRecords) List(_ context.Context, limit int) ([]types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Record, 0, len(m.order))
	for _, id := range m.order {
		if len(out) == limit {
			break
		}
		out = append(out, m.byID[id])
	}
	return out, nil
}

func (m *memRecords) Ping(context.Context) error { return m.pingErr }

func newStoreServer(t *testing.T, records Records, cidrs []string) *httptest.Server {
	t.Helper()
	gate, err := NewAdminGate(cidrs, nil)
	require.NoError(t, err)

	router := mux.NewRouter()
	NewService(records, nil).RegisterRoutes(router, gate)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestStore_ContractWithRemoteClient(t *testing.T) {
	srv := newStoreServer(t, newMemRecords(), []string{"127.0.0.0/8", "::1/128"})
	client := remote.NewClient(srv.URL, 0)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	id, rec, err := client.CreateOrder(ctx, types.Draft{
		Kind:    types.KindCommodity,
		Contact: types.Contact{Name: "Ada", Phone: "0300"},
		Items:   []types.LineItem{{SKU: "A", Price: 1.1, Qty: 3}},
		Total:   999,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "R-"))
	require.NotNil(t, rec)
	assert.Equal(t, 3.3, rec.Total)
	assert.Equal(t, types.StatusPlaced, rec.Status)

	got, err := client.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *rec, *got)

	_, err = client.GetOrder(ctx, "R-missing")
	assert.True(t, types.IsType(err, types.ErrorTypeNotFound))

	list, err := client.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func TestStore_ListingOutsideAllowedNetworks(t *testing.T) {
	srv := newStoreServer(t, newMemRecords(), []string{"10.0.0.0/8"})
	client := remote.NewClient(srv.URL, 0)

	_, err := client.ListOrders(context.Background())
	assert.True(t, types.IsType(err, types.ErrorTypeAccessRestricted))

	// lookups by id are not gated
	_, err = client.GetOrder(context.Background(), "R-1")
	assert.True(t, types.IsType(err, types.ErrorTypeNotFound))
}

func TestStore_HealthFailsWhenDatabaseDown(t *testing.T) {
	records := newMemRecords()
	records.pingErr = errors.New("connection refused")
	srv := newStoreServer(t, records, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	err = remote.NewClient(srv.URL, 0).Health(context.Background())
	assert.True(t, types.IsType(err, types.ErrorTypeServer))
}

func TestStore_CreateRejectsBadDrafts(t *testing.T) {
	srv := newStoreServer(t, newMemRecords(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"order":`},
		{"missing order", `{}`},
		{"empty cart", `{"order": {"kind": "commodity", "contact": {"name": "A", "phone": "1"}}}`},
		{"unknown kind", `{"order": {"kind": "plasma"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestService_CreateBloodRequest(t *testing.T) {
	records := newMemRecords()
	svc := NewService(records, nil)
	svc.newID = func() string { return "R-fixed" }

	rec, err := svc.Create(context.Background(), types.Draft{
		Kind:         types.KindBiologicalRequest,
		Contact:      types.Contact{Name: "Bilal", Phone: "0300"},
		BloodRequest: &types.BloodRequest{BloodType: "O-"},
	})
	require.NoError(t, err)
	assert.Equal(t, "R-fixed", rec.ID)
	assert.Equal(t, types.StatusRequested, rec.Status)
	assert.Equal(t, "1", rec.BloodRequest.Units)
	assert.Equal(t, "Normal", rec.BloodRequest.Urgency)

	stored, err := records.Get(context.Background(), "R-fixed")
	require.NoError(t, err)
	assert.Equal(t, *rec, *stored)
}

func TestAdminGate_Allowed(t *testing.T) {
	gate, err := NewAdminGate([]string{"127.0.0.0/8", "192.168.0.0/16", "::1/128"}, nil)
	require.NoError(t, err)

	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:5000", true},
		{"192.168.1.20:443", true},
		{"[::1]:8080", true},
		{"10.1.2.3", false},
		{"8.8.8.8:53", false},
		{"not-an-ip", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, gate.Allowed(tt.addr), tt.addr)
	}
}

func TestAdminGate_InvalidCIDR(t *testing.T) {
	_, err := NewAdminGate([]string{"10.0.0.0/33"}, nil)
	assert.Error(t, err)
}
