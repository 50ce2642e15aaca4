//go:build integration

package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/medrex/supply/pkg/database"
	"github.com/medrex/supply/pkg/types"
)

// setupPostgres starts a throwaway PostgreSQL and applies the orders schema
func setupPostgres(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "orders_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = postgres.Terminate(ctx) })

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", fmt.Sprintf("postgres://test:testpass@%s:%s/orders_test?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	// the port opens before postgres accepts connections
	require.Eventually(t, func() bool { return sqlDB.PingContext(ctx) == nil }, 30*time.Second, time.Second)

	db := database.Wrap(sqlDB, nil, nil)
	require.NoError(t, db.CreateSchema(ctx))
	return db
}

func TestRepository_Postgres(t *testing.T) {
	db := setupPostgres(t)
	repo := NewRepository(db, nil, nil)
	ctx := context.Background()

	first := sampleRecord("R-1")
	second := types.Draft{
		Kind:         types.KindBiologicalRequest,
		Contact:      types.Contact{Name: "Bilal", Phone: "0300"},
		BloodRequest: &types.BloodRequest{BloodType: "O-"},
	}.ToRecord("R-2", time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC))

	require.NoError(t, repo.Insert(ctx, first))
	require.NoError(t, repo.Insert(ctx, second))

	got, err := repo.Get(ctx, "R-2")
	require.NoError(t, err)
	assert.Equal(t, second, *got)

	_, err = repo.Get(ctx, "R-missing")
	assert.True(t, types.IsType(err, types.ErrorTypeNotFound))

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "R-2", list[0].ID)
	assert.Equal(t, "R-1", list[1].ID)

	list, err = repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, repo.Ping(ctx))
}
