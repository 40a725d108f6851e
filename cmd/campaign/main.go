package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callflow/campaign"
	"callflow/db"
	"callflow/policy"
	"callflow/voice"
)

var (
	flConfig      = flag.String("config", "campaign.yaml", "path to the campaign config file")
	flDate        = flag.String("date", "", "run the pass as of this date (YYYY-MM-DD) instead of today")
	flForce       = flag.Bool("force", false, "bypass the calling-window gate")
	flDryRun      = flag.Bool("dry-run", false, "evaluate and report without calling or writing")
	flMetricsAddr = flag.String("metrics-addr", "", "serve /metrics on this address while the pass runs")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(context.Background(), logger); err != nil {
		logger.Error("pass failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := campaign.LoadConfig(*flConfig)
	if err != nil {
		return err
	}

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	apiKey := os.Getenv("VOICE_API_KEY")
	caller, err := voice.NewClient(voice.ClientOptions{
		BaseURL:        cfg.Voice.BaseURL,
		APIKey:         apiKey,
		PhoneNumberIDs: cfg.Voice.PhoneNumberIDs,
		PollInterval:   time.Duration(cfg.Voice.PollIntervalSeconds) * time.Second,
		MaxWait:        time.Duration(cfg.Voice.MaxWaitSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	if *flMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(campaign.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *flMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer srv.Shutdown(ctx)
	}

	opts := campaign.RunOptions{Force: *flForce, DryRun: *flDryRun}
	if *flDate != "" {
		asOf, err := time.ParseInLocation("2006-01-02", *flDate, cfg.Location())
		if err != nil {
			return fmt.Errorf("parse -date: %w", err)
		}
		// Noon avoids the calling-window gate tripping on midnight.
		opts.AsOf = asOf.Add(12 * time.Hour)
	}

	svc := campaign.NewService(policy.NewRepository(pool), caller, cfg, logger)
	rep, err := svc.RunPass(ctx, opts)
	if err != nil {
		return err
	}

	if *flDryRun {
		for _, p := range rep.Planned {
			fmt.Printf("%-12s stage %d  %-12s %-10s %s\n",
				p.Classification, p.Stage, p.Path, p.EntityID, p.ClientName)
		}
	}
	fmt.Printf("listed=%d eligible=%d safety_net=%d attempted=%d succeeded=%d failed=%d duplicates=%d persist_failures=%d\n",
		rep.Listed, rep.Eligible, rep.SafetyNet, rep.Attempted, rep.Succeeded,
		rep.Failed, rep.Duplicates, rep.PersistFailures)
	return nil
}
