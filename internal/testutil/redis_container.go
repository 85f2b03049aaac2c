package testutil

import (
	"testing"

	"github.com/testcontainers/testcontainers-go/wait"
)

var redis = &service{
	image: "redis:7",
	port:  "6379/tcp",
	wait:  []wait.Strategy{wait.ForLog("Ready to accept connections")},
}

// GetRedisAddress returns host:port of the shared redis container.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	return redis.Endpoint(t)
}
