package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/drivers/redis"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisStoreConformance(t *testing.T) {
	host, port := storetest.StartContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	}, "6379/tcp")

	url := fmt.Sprintf("redis://%s:%s/0", host, port)

	storetest.Run(t, func(t *testing.T) store.Store {
		// Each subtest gets its own key prefix so runs never see each other.
		s, err := redis.Open(context.Background(), url, "test:"+uuid.NewString()+":")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.ApplyMigrations())
		return s
	})
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := redis.Open(context.Background(), "not-a-url", "")
	require.Error(t, err)
}
