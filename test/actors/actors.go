// Package actors holds the concurrent workloads for the campaign stress
// test: pass runners racing over the same population while seeders and
// back-office actors mutate it underneath them.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"callflow/campaign"
)

// SimClock is the shared simulated clock. Pass runners read it; the test
// driver advances it one day at a time.
type SimClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start}
}

func (c *SimClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *SimClock) AdvanceDay() {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, 1)
	c.mu.Unlock()
}

// PassRunner repeatedly executes forced campaign passes at the simulated
// day. Pass failures are expected while chaos is killing backends; only a
// cancelled context stops the actor.
func PassRunner(ctx context.Context, svc *campaign.Service, clock *SimClock, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, _ = svc.RunPass(ctx, campaign.RunOptions{AsOf: clock.Now(), Force: true})
		time.Sleep(time.Duration(20+rand.Intn(50)) * time.Millisecond)
	}
}

var seedReasons = []string{
	"Cancellation - non-payment",
	"Renewal",
	"Non-Renewal",
	"Direct Bill",
	"Mortgage Billed",
}

// Seeder keeps inserting fresh entities with deadlines scattered around
// the simulated day so every pass has work to find.
func Seeder(ctx context.Context, pool *pgxpool.Pool, clock *SimClock, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if err := SeedEntity(ctx, pool, clock.Now()); err != nil && !isTransient(err) {
			return fmt.Errorf("seeder: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// SeedEntity inserts one randomized entity with a deadline up to three
// weeks out from the given day. The follow-up date starts at the deadline
// so business-day sequences have a concrete trigger.
func SeedEntity(ctx context.Context, pool *pgxpool.Pool, day time.Time) error {
	reason := seedReasons[rand.Intn(len(seedReasons))]
	deadline := day.AddDate(0, 0, rand.Intn(21))
	status := ""
	if reason == "Mortgage Billed" {
		status = "Pending Payment"
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO entities (id, client_name, phone_number, reason, status_label, amount_due, deadline_date, next_trigger_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, uuid.NewString(), fmt.Sprintf("Client %d", rand.Int63()), "+19095550100", reason, status, "$100.00", deadline)
	return err
}

// StatusFlipper randomly settles and un-settles entities, racing the
// evaluators' settlement checks.
func StatusFlipper(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	labels := []string{"Paid", "Received", "Pending Payment", ""}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		label := labels[rand.Intn(len(labels))]
		_, err := pool.Exec(ctx, `
			UPDATE entities SET status_label = $1, updated_at = now()
			WHERE id = (SELECT id FROM entities ORDER BY random() LIMIT 1)
		`, label)
		if err != nil && !isTransient(err) {
			return fmt.Errorf("status flipper: %w", err)
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

// Closer toggles the manual completed flag on random entities.
func Closer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := pool.Exec(ctx, `
			UPDATE entities SET completed = NOT completed, updated_at = now()
			WHERE id = (SELECT id FROM entities ORDER BY random() LIMIT 1)
		`)
		if err != nil && !isTransient(err) {
			return fmt.Errorf("closer: %w", err)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// isTransient reports whether the error is expected churn from chaos
// killing connections mid-flight.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 57P01 admin shutdown, 23505 dedup contention.
		return pgErr.Code == "57P01" || pgErr.Code == "23505"
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "closed") ||
		strings.Contains(msg, "reset") ||
		strings.Contains(msg, "terminat")
}
