// Package testutil starts the shared service containers used by store
// integration tests. Each service is started at most once per test binary.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// service is one lazily started container.
type service struct {
	image string
	port  string
	env   map[string]string
	wait  []wait.Strategy

	once     sync.Once
	endpoint string
	err      error
}

// Endpoint returns host:port of the running container. The test is skipped
// in -short mode or when the container cannot be started.
func (s *service) Endpoint(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s container in short mode", s.image)
	}

	s.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		opts := []testcontainers.ContainerCustomizer{
			testcontainers.WithExposedPorts(s.port),
			testcontainers.WithWaitStrategy(append([]wait.Strategy{wait.ForListeningPort(nat.Port(s.port))}, s.wait...)...),
		}
		if len(s.env) > 0 {
			opts = append(opts, testcontainers.WithEnv(s.env))
		}

		c, err := testcontainers.Run(ctx, s.image, opts...)
		if err != nil {
			s.err = err
			return
		}

		// The container outlives the test that started it; the testcontainers
		// reaper removes it when the test binary exits.
		s.endpoint, s.err = c.Endpoint(ctx, "")
	})

	if s.err != nil {
		t.Skipf("%s container unavailable: %v", s.image, s.err)
	}
	return s.endpoint
}
