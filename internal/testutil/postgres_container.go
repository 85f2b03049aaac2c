package testutil

import (
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go/wait"
)

var postgres = &service{
	image: "postgres:16",
	port:  "5432/tcp",
	env: map[string]string{
		"POSTGRES_USER":     "wireflow",
		"POSTGRES_PASSWORD": "wireflow",
		"POSTGRES_DB":       "wireflow_test",
	},
	wait: []wait.Strategy{
		// The first readiness line comes from the init server.
		wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	},
}

// GetPostgresDSN returns a connection URL for the shared postgres container.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("postgres://wireflow:wireflow@%s/wireflow_test?sslmode=disable", postgres.Endpoint(t))
}
