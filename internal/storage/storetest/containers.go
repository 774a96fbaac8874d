package storetest

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// StartContainer runs req for the duration of the test and returns the
// host:port mapped to its lowest exposed port. The test is skipped in short
// mode or when no container runtime is reachable.
func StartContainer(t *testing.T, req testcontainers.ContainerRequest) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start %s: %v", req.Image, err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("resolve %s endpoint: %v", req.Image, err)
	}
	return endpoint
}
