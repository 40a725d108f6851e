package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"callflow/dates"
	"callflow/policy"
	"callflow/schedule"
	"callflow/voice"
)

// Service runs campaign passes against a record store and a calling
// provider. One pass covers one operating day.
type Service struct {
	store     policy.Repository
	caller    voice.Caller
	cfg       Config
	loc       *time.Location
	evaluator schedule.Evaluator
	safetyNet schedule.SafetyNet

	logger      *slog.Logger
	now         func() time.Time
	idGenerator func() string
	retryDelay  time.Duration
}

func NewService(store policy.Repository, caller voice.Caller, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		caller:      caller,
		cfg:         cfg,
		loc:         cfg.Location(),
		evaluator:   schedule.Evaluator{CatchUpBusinessDays: cfg.CatchUpBusinessDays},
		safetyNet:   schedule.SafetyNet{LookbackDays: cfg.SafetyNetLookbackDays},
		logger:      logger,
		now:         time.Now,
		idGenerator: func() string { return uuid.NewString() },
		retryDelay:  2 * time.Second,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithRetryDelay(d time.Duration) *Service {
	s.retryDelay = d
	return s
}

// RunOptions tunes a single pass.
type RunOptions struct {
	// AsOf overrides "now" for the pass; zero means the current time.
	AsOf time.Time
	// Force bypasses the calling-window gate.
	Force bool
	// DryRun evaluates and reports without calling or writing.
	DryRun bool
}

// Report summarizes one pass for the operator.
type Report struct {
	Date          time.Time
	WindowSkipped bool

	Listed    int
	Eligible  int
	SafetyNet int

	Attempted       int
	Succeeded       int
	Failed          int
	Duplicates      int
	PersistFailures int

	// Planned lists the contacts a dry run would have placed.
	Planned []PlannedContact
}

// PlannedContact is one dry-run line item.
type PlannedContact struct {
	EntityID       string
	ClientName     string
	Classification policy.Classification
	Stage          int
	Path           schedule.Path
}

type candidate struct {
	entity   policy.Entity
	decision schedule.Decision
}

type group struct {
	class policy.Classification
	stage int
	mode  schedule.Mode
	items []candidate
}

// RunPass executes one campaign pass: list, evaluate, partition, call,
// persist. Per-entity failures are isolated, counted, and logged; only
// connectivity-level failures abort the pass — a record-store listing
// failure, or a calling provider that turns out to be unreachable.
func (s *Service) RunPass(ctx context.Context, opts RunOptions) (Report, error) {
	started := time.Now()
	defer func() { passDuration.Observe(time.Since(started).Seconds()) }()

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	today := asOf.In(s.loc)

	rep := Report{Date: today}
	if !opts.Force && !s.withinCallingWindow(today) {
		rep.WindowSkipped = true
		s.logger.Warn("outside calling window, pass skipped",
			"hour", today.Hour(),
			"window_start", s.cfg.CallingWindow.StartHour,
			"window_end", s.cfg.CallingWindow.EndHour)
		return rep, nil
	}

	resetPassGauges()

	entities, err := s.store.ListEntities(ctx)
	if err != nil {
		return rep, fmt.Errorf("campaign: list entities: %w", err)
	}
	rep.Listed = len(entities)
	entitiesListed.Set(float64(len(entities)))

	groups := s.partition(s.selectDue(entities, today, &rep))

	if opts.DryRun {
		for _, g := range groups {
			for _, c := range g.items {
				rep.Planned = append(rep.Planned, PlannedContact{
					EntityID:       c.entity.ID,
					ClientName:     c.entity.ClientName,
					Classification: c.entity.Classification,
					Stage:          c.decision.Stage,
					Path:           c.decision.Path,
				})
			}
		}
		return rep, nil
	}

	// Per-entity failures are isolated, but a provider that is down at
	// the transport level fails every contact identically; after a run of
	// consecutive unreachable errors (or a pass where nothing else
	// happened) dispatch stops and the pass surfaces a top-level failure.
	var (
		mu                sync.Mutex
		consecUnreachable int
		totalUnreachable  int
		providerDown      bool
	)
	record := func(r contactResult) {
		mu.Lock()
		defer mu.Unlock()
		rep.Attempted++
		switch {
		case r.duplicate:
			rep.Duplicates++
			rep.Succeeded++
		case r.persistFellBack:
			rep.PersistFailures++
			rep.Succeeded++
		case r.ok:
			rep.Succeeded++
		default:
			rep.Failed++
		}
		if r.unreachable {
			consecUnreachable++
			totalUnreachable++
			if consecUnreachable >= unreachableAbortAfter {
				providerDown = true
			}
		} else {
			consecUnreachable = 0
		}
	}
	abort := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return providerDown
	}

dispatch:
	for _, g := range groups {
		switch g.mode {
		case schedule.Batch:
			eg, gctx := errgroup.WithContext(ctx)
			eg.SetLimit(s.cfg.BatchConcurrency)
			for _, c := range g.items {
				eg.Go(func() error {
					if abort() {
						return nil
					}
					record(s.contact(gctx, c, today))
					return nil
				})
			}
			_ = eg.Wait()
		default:
			for _, c := range g.items {
				if ctx.Err() != nil {
					return rep, fmt.Errorf("campaign: pass interrupted: %w", ctx.Err())
				}
				if abort() {
					break dispatch
				}
				record(s.contact(ctx, c, today))
			}
		}
		if abort() {
			break
		}
	}

	if providerDown || (rep.Attempted > 0 && totalUnreachable == rep.Attempted) {
		return rep, fmt.Errorf("campaign: %d contacts failed at the transport level: %w",
			totalUnreachable, voice.ErrUnreachable)
	}

	s.logger.Info("pass complete",
		"date", today.Format("2006-01-02"),
		"listed", rep.Listed,
		"eligible", rep.Eligible,
		"safety_net", rep.SafetyNet,
		"attempted", rep.Attempted,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed)
	return rep, nil
}

func (s *Service) withinCallingWindow(t time.Time) bool {
	h := t.Hour()
	return h >= s.cfg.CallingWindow.StartHour && h < s.cfg.CallingWindow.EndHour
}

// selectDue runs both evaluators over the listing. The primary path is
// consulted first; the safety net only sees entities it rejected.
func (s *Service) selectDue(entities []policy.Entity, today time.Time, rep *Report) []candidate {
	var due []candidate
	for _, e := range entities {
		d := s.evaluator.Evaluate(e, today)
		if !d.Eligible {
			primaryReason := d.Reason
			d = s.safetyNet.Evaluate(e, today)
			if !d.Eligible {
				s.logger.Debug("entity skipped",
					"entity", e.ID,
					"classification", string(e.Classification),
					"reason", primaryReason)
				continue
			}
			rep.SafetyNet++
		}
		rep.Eligible++
		eligibleTotal.WithLabelValues(string(d.Path)).Inc()
		due = append(due, candidate{entity: e, decision: d})
	}
	return due
}

// partition splits candidates into (classification, stage) groups,
// preserving listing order within each group. Group mode comes from the
// stage definition; safety-net contacts always run sequentially.
func (s *Service) partition(due []candidate) []group {
	var groups []group
	index := map[string]int{}

	for _, c := range due {
		key := string(c.entity.Classification) + "/" + fmt.Sprint(c.decision.Stage) + "/" + string(c.decision.Path)
		i, ok := index[key]
		if !ok {
			mode := schedule.Sequential
			if c.decision.Path == schedule.PathPrimary {
				if tmpl, ok := schedule.TemplateFor(c.entity.Classification); ok && c.decision.Stage < len(tmpl.Stages) {
					mode = tmpl.Stages[c.decision.Stage].Mode
				}
			}
			index[key] = len(groups)
			i = len(groups)
			groups = append(groups, group{
				class: c.entity.Classification,
				stage: c.decision.Stage,
				mode:  mode,
			})
		}
		groups[i].items = append(groups[i].items, c)
	}
	return groups
}

// unreachableAbortAfter is how many consecutive transport-level contact
// failures mark the provider as down for the rest of the pass.
const unreachableAbortAfter = 3

type contactResult struct {
	ok              bool
	duplicate       bool
	persistFellBack bool
	unreachable     bool
}

// contact places one call and persists its result. A calling failure
// means no write at all: with no outcome there is nothing to record, and
// the entity stays eligible for the next pass.
func (s *Service) contact(ctx context.Context, c candidate, today time.Time) contactResult {
	e := c.entity
	contactsAttempted.WithLabelValues(string(e.Classification)).Inc()

	script := s.cfg.ScriptFor(e.Classification, c.decision.Stage)
	if script == "" {
		contactsFailed.WithLabelValues(string(e.Classification)).Inc()
		s.logger.Error("no script configured",
			"entity", e.ID,
			"classification", string(e.Classification),
			"stage", c.decision.Stage)
		return contactResult{}
	}

	outcome, err := s.caller.PlaceContact(ctx, voice.Contact{
		EntityID:    e.ID,
		Name:        e.ClientName,
		PhoneNumber: e.PhoneNumber,
	}, script)
	if err != nil {
		contactsFailed.WithLabelValues(string(e.Classification)).Inc()
		s.logger.Error("contact failed",
			"entity", e.ID,
			"classification", string(e.Classification),
			"stage", c.decision.Stage,
			"error", err)
		return contactResult{unreachable: errors.Is(err, voice.ErrUnreachable)}
	}

	// OccurredAt is the wall-clock placement time; OccurredOn is the pass
	// date the dedup guard keys on. When a pass runs with an injected
	// date, the two differ, and stamping the guard date from the wall
	// clock would let a rerun for the same pass date call again.
	event := policy.ContactEvent{
		ID:          s.idGenerator(),
		OccurredAt:  s.now(),
		OccurredOn:  dates.DateOf(today),
		Summary:     outcome.Summary,
		Evaluation:  outcome.Evaluation,
		EndedReason: outcome.EndedReason,
	}

	tmpl, _ := schedule.TemplateFor(e.Classification)
	newStage, next := schedule.Advance(tmpl, e, today)

	patch := policy.ContactPatch{
		EntityID:        e.ID,
		Stage:           newStage,
		NextTriggerDate: next,
		Event:           event,
	}

	return s.persist(ctx, e, patch)
}

// persist applies the contact patch with bounded retries. The contact
// already happened, so a write failure must never be silent: after the
// retries we fall back to appending the bare event, which keeps the
// same-day guard effective even though the stage advance is lost.
func (s *Service) persist(ctx context.Context, e policy.Entity, patch policy.ContactPatch) contactResult {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.PersistRetries; attempt++ {
		err := s.store.ApplyContactResult(ctx, patch)
		if err == nil {
			return contactResult{ok: true}
		}
		if errors.Is(err, policy.ErrDuplicateContact) {
			duplicatesSkipped.Inc()
			s.logger.Warn("duplicate contact write rejected", "entity", e.ID)
			return contactResult{ok: true, duplicate: true}
		}
		lastErr = err
		s.logger.Warn("result write failed, retrying",
			"entity", e.ID,
			"attempt", attempt,
			"error", err)

		select {
		case <-ctx.Done():
			attempt = s.cfg.PersistRetries
		case <-time.After(time.Duration(attempt) * s.retryDelay):
		}
	}

	persistFailures.Inc()
	if err := s.store.AppendContactEvent(ctx, e.ID, patch.Event); err != nil {
		s.logger.Error("RESULT WRITE LOST: contact placed but not recorded",
			"entity", e.ID,
			"client", e.ClientName,
			"stage", patch.Stage,
			"summary", patch.Event.Summary,
			"evaluation", patch.Event.Evaluation,
			"error", errors.Join(lastErr, err))
		return contactResult{}
	}

	s.logger.Error("stage advance lost, contact event recorded",
		"entity", e.ID,
		"stage", patch.Stage,
		"error", lastErr)
	return contactResult{ok: true, persistFellBack: true}
}
