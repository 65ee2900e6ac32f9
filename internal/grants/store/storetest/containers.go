package storetest

import (
	"context"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

// StartContainer runs a throwaway backend container for driver integration
// tests and returns the host and mapped port for exposedPort. The test is
// skipped under -short or when no container runtime is available.
func StartContainer(t *testing.T, req testcontainers.ContainerRequest, exposedPort string) (string, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container backed test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, nat.Port(exposedPort))
	require.NoError(t, err)

	return host, port.Port()
}
