// Package source selects a schema source driver from the environment.
package source

import (
	"context"
	"fmt"
	"os"

	"formsentry/internal/infra/source/memory"
	"formsentry/internal/infra/source/postgres"
	"formsentry/internal/infra/source/sqlite"
	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

// Driver names accepted by OpenFromEnv.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenFromEnv constructs a schema source using environment variables.
//
//	FORMSENTRY_SOURCE_DRIVER: memory|sqlite|postgres (default memory)
//	FORMSENTRY_SQLITE_PATH: database file when driver=sqlite
//	FORMSENTRY_POSTGRES_DSN: connection string when driver=postgres
//
// The returned source implements io.Closer when the driver holds a
// connection.
func OpenFromEnv(ctx context.Context, model *schema.Model) (domain.SchemaSource, error) {
	driver := os.Getenv("FORMSENTRY_SOURCE_DRIVER")
	if driver == "" {
		driver = DriverMemory
	}
	switch driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		return sqlite.New(os.Getenv("FORMSENTRY_SQLITE_PATH"), model)
	case DriverPostgres:
		return postgres.New(ctx, os.Getenv("FORMSENTRY_POSTGRES_DSN"), model)
	default:
		return nil, fmt.Errorf("unknown source driver %s", driver)
	}
}
