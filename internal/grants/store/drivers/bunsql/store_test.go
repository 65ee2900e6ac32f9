package bunsql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStoreConformance(t *testing.T) {
	host, port := storetest.StartContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "grants",
			"POSTGRES_PASSWORD": "grants",
			"POSTGRES_DB":       "grants",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}, "5432/tcp")

	dsn := fmt.Sprintf("postgres://grants:grants@%s:%s/grants?sslmode=disable", host, port)
	s := openMigrated(t, DriverPostgres, dsn)

	storetest.Run(t, func(t *testing.T) store.Store {
		truncate(t, s)
		return s
	})
}

func TestMySQLStoreConformance(t *testing.T) {
	host, port := storetest.StartContainer(t, testcontainers.ContainerRequest{
		Image:        "mysql:8.4",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "grants",
			"MYSQL_DATABASE":      "grants",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(2 * time.Minute),
	}, "3306/tcp")

	dsn := fmt.Sprintf("root:grants@tcp(%s:%s)/grants", host, port)
	s := openMigrated(t, DriverMySQL, dsn)

	storetest.Run(t, func(t *testing.T) store.Store {
		truncate(t, s)
		return s
	})
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open("oracle", "whatever")
	require.ErrorContains(t, err, "unsupported driver")
}

// openMigrated retries until the freshly started server accepts connections.
func openMigrated(t *testing.T, driver, dsn string) *Store {
	t.Helper()

	var s *Store
	require.Eventually(t, func() bool {
		var err error
		s, err = Open(driver, dsn)
		return err == nil
	}, time.Minute, time.Second)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func truncate(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	for _, model := range []any{(*grantRecord)(nil), (*deviceCodeRecord)(nil)} {
		_, err := s.DB().NewTruncateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
}
