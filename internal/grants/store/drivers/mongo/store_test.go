package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/mongo"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMongoStoreConformance(t *testing.T) {
	host, port := storetest.StartContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(time.Minute),
	}, "27017/tcp")

	uri := fmt.Sprintf("mongodb://%s:%s", host, port)

	dbIndex := 0
	storetest.Run(t, func(t *testing.T) store.Store {
		// A database per subtest keeps runs isolated without truncating.
		dbIndex++
		s, err := mongo.Connect(context.Background(), uri, fmt.Sprintf("grants_%d", dbIndex))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.ApplyMigrations())
		return s
	})
}
