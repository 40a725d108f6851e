package schedule

import (
	"fmt"
	"time"

	"callflow/dates"
	"callflow/policy"
)

// Path records which evaluator admitted an entity.
type Path string

const (
	PathNone      Path = "none"
	PathPrimary   Path = "primary"
	PathSafetyNet Path = "safety_net"
)

// Decision is the tagged outcome of an eligibility evaluation. Reason is
// populated on the negative case for observability; it carries no
// scheduling semantics.
type Decision struct {
	Eligible bool
	Path     Path
	Stage    int
	Reason   string
}

func skip(reason string) Decision {
	return Decision{Path: PathNone, Reason: reason}
}

// Evaluator is the primary eligibility path: the staged schedule.
type Evaluator struct {
	// CatchUpBusinessDays bounds how many business days after a missed
	// calendar-day target the entity stays eligible.
	CatchUpBusinessDays int
}

// Evaluate decides whether the entity is due for contact at its current
// stage today. Preconditions run in order and short-circuit; the core
// decision then branches on the stage's unit.
func (ev Evaluator) Evaluate(e policy.Entity, today time.Time) Decision {
	if policy.Settled(e.StatusLabel) {
		return skip(fmt.Sprintf("status %q indicates settlement", e.StatusLabel))
	}
	if e.Completed {
		return skip("completed flag is set")
	}

	tmpl, ok := TemplateFor(e.Classification)
	if !ok {
		return skip("unclassified: no schedule template")
	}
	if missing := tmpl.MissingRequired(e); missing != "" {
		return skip(fmt.Sprintf("missing required attribute: %s", missing))
	}
	if e.Stage >= tmpl.Terminal() {
		return skip(fmt.Sprintf("contact sequence complete (stage %d)", e.Stage))
	}
	if ContactedOn(e.History, today) {
		return skip("already contacted today")
	}

	stage := tmpl.Stages[e.Stage]
	switch stage.Unit {
	case BusinessDays:
		// Once the follow-up date arrives, the contact is due
		// unconditionally. The deadline ordering is deliberately not
		// re-validated here: a stricter check silently skipped valid
		// due-today entities.
		if e.NextTriggerDate == nil {
			return skip("no follow-up date scheduled")
		}
		if dates.SameDay(*e.NextTriggerDate, today) {
			return Decision{Eligible: true, Path: PathPrimary, Stage: e.Stage}
		}
		return skip(fmt.Sprintf("follow-up date %s is not today", e.NextTriggerDate.Format("2006-01-02")))

	case CalendarDays:
		target := dates.AdjustForWeekend(e.DeadlineDate.AddDate(0, 0, -stage.OffsetDays))
		if dates.SameDay(today, target) {
			return Decision{Eligible: true, Path: PathPrimary, Stage: e.Stage}
		}
		// Bounded catch-up: a missed run-cycle keeps the stage live for a
		// few business days. Being at this stage implies its contact has
		// not been made yet.
		if today.After(target) {
			if behind := dates.CountBusinessDays(target, today); behind >= 1 && behind <= ev.CatchUpBusinessDays {
				return Decision{Eligible: true, Path: PathPrimary, Stage: e.Stage}
			}
		}
		return skip(fmt.Sprintf("stage %d target %s is not today", e.Stage, target.Format("2006-01-02")))

	default:
		return skip(fmt.Sprintf("unknown stage unit %q", stage.Unit))
	}
}
