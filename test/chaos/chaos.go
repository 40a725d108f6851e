// Package chaos injects failures into the stress run at both layers the
// engine talks to: the database and the calling provider.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"callflow/voice"
)

// TerminateRandomBackend randomly kills one of the application's database
// connections, forcing pass runners through their retry and reduced-write
// paths.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = current_database() AND pid <> pg_backend_pid() ORDER BY random() LIMIT 1`)
			}
		}
	}
}

// FlakyCaller is a voice.Caller that fails a fraction of contacts, the
// way a real provider drops or rejects calls. Successful contacts return
// a canned outcome immediately.
type FlakyCaller struct {
	FailRate float64
}

func (f FlakyCaller) PlaceContact(ctx context.Context, c voice.Contact, scriptVariant string) (voice.Outcome, error) {
	if ctx.Err() != nil {
		return voice.Outcome{}, ctx.Err()
	}
	if rand.Float64() < f.FailRate {
		return voice.Outcome{}, errors.New("chaos: provider unavailable")
	}
	return voice.Outcome{
		Success:     true,
		Summary:     fmt.Sprintf("spoke with %s", c.Name),
		Evaluation:  "true",
		EndedReason: "customer-ended-call",
	}, nil
}
