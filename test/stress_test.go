package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"callflow/campaign"
	"callflow/policy"
	"callflow/test/actors"
	"callflow/test/chaos"
	"callflow/test/infra"
	"callflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent pass runners")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func stressConfig() campaign.Config {
	return campaign.Config{
		Timezone:              "UTC",
		CatchUpBusinessDays:   2,
		SafetyNetLookbackDays: 7,
		CallingWindow:         campaign.CallingWindow{StartHour: 0, EndHour: 24},
		PersistRetries:        3,
		BatchConcurrency:      4,
		Scripts: map[string]map[int]string{
			"non_payment":   {campaign.DefaultStageKey: "asst-np"},
			"renewal":       {campaign.DefaultStageKey: "asst-renewal"},
			"non_renewal":   {campaign.DefaultStageKey: "asst-nonrenewal"},
			"direct_bill":   {campaign.DefaultStageKey: "asst-directbill"},
			"mortgage_bill": {campaign.DefaultStageKey: "asst-mortgage"},
		},
	}
}

// TestCampaignConcurrency races many pass runners over one shared
// population while chaos kills connections and back-office actors mutate
// records, then checks the SQL oracles stay clean: however many runners
// fire at once, no entity may be contacted twice on the same day.
func TestCampaignConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "" || os.Getenv("CALLFLOW_TEST_PG_DSN") != "":
		usedShared = true
		pgC, dsn, err = infra.Postgres(ctx, *flDSN)
	case dockerAvailable(ctx):
		pgC, dsn, err = infra.Postgres(ctx, "")
	default:
		t.Skip("no docker and no -dsn / CALLFLOW_TEST_PG_DSN")
	}
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.Apply(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// Monday noon: a business day, inside any window.
	clock := actors.NewSimClock(time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 32; i++ {
		if err := actors.SeedEntity(ctx, pool, clock.Now()); err != nil {
			t.Fatalf("seed entity: %v", err)
		}
	}

	logger := slog.New(slog.DiscardHandler)
	caller := chaos.FlakyCaller{FailRate: 0.2}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		svc := campaign.NewService(policy.NewRepository(pool), caller, stressConfig(), logger).
			WithClock(clock.Now).
			WithRetryDelay(10 * time.Millisecond)
		g.Go(func() error { return actors.PassRunner(ctx2, svc, clock, stop) })
	}

	g.Go(func() error { return actors.Seeder(ctx2, pool, clock, stop) })
	g.Go(func() error { return actors.StatusFlipper(ctx2, pool, stop) })
	g.Go(func() error { return actors.Closer(ctx2, pool, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			clock.AdvanceDay()
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"entities", `SELECT id, reason, status_label, stage, next_trigger_date, completed FROM entities ORDER BY updated_at DESC LIMIT 50`},
		{"contact_events", `SELECT id, entity_id, occurred_on, evaluation, ended_reason FROM contact_events ORDER BY occurred_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
