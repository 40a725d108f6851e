// Package infra boots the disposable Postgres the integration and stress
// tests run against and applies the repo's migrations to it.
package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16"

// PGContainer wraps the container handle so callers can terminate it
// without caring whether one was actually started.
type PGContainer struct {
	c *postgres.PostgresContainer
}

// Postgres returns a DSN for a test database: reuseDSN or the
// CALLFLOW_TEST_PG_DSN env var when set, otherwise a freshly started
// container that the caller must Terminate.
func Postgres(ctx context.Context, reuseDSN string) (*PGContainer, string, error) {
	if reuseDSN == "" {
		reuseDSN = os.Getenv("CALLFLOW_TEST_PG_DSN")
	}
	if reuseDSN != "" {
		return &PGContainer{}, reuseDSN, nil
	}

	pgC, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("callflow_test"),
		postgres.WithUsername("callflow"),
		postgres.WithPassword("callflow"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", fmt.Errorf("container connection string: %w", err)
	}
	return &PGContainer{c: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.c == nil {
		return nil
	}
	return p.c.Terminate(ctx)
}
