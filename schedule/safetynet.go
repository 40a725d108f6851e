package schedule

import (
	"fmt"
	"strings"
	"time"

	"callflow/dates"
	"callflow/policy"
)

// SafetyNet is the secondary, lower-precedence eligibility path. It
// re-admits entities in the status-triggered classification subset that
// the stricter primary preconditions excluded, or whose trigger date
// passed uncontacted during a skipped run-cycle. It is consulted only
// when the primary evaluator said no, so it can never double-schedule.
type SafetyNet struct {
	// LookbackDays bounds how far behind a passed follow-up anchor may be
	// and still re-admit the entity.
	LookbackDays int
}

// Evaluate applies the status-only trigger. Settlement exclusion, the
// completed flag, and the same-day dedup guard still hold here; the
// safety net relaxes schedule preconditions, never safety ones.
func (sn SafetyNet) Evaluate(e policy.Entity, today time.Time) Decision {
	tmpl, ok := TemplateFor(e.Classification)
	if !ok || !tmpl.StatusTriggered {
		return skip("not a status-triggered classification")
	}
	if policy.Settled(e.StatusLabel) {
		return skip(fmt.Sprintf("status %q indicates settlement", e.StatusLabel))
	}
	if e.Completed {
		return skip("completed flag is set")
	}
	if e.Stage >= tmpl.Terminal() {
		return skip(fmt.Sprintf("contact sequence complete (stage %d)", e.Stage))
	}
	if !strings.EqualFold(strings.TrimSpace(e.StatusLabel), tmpl.TriggerStatus) {
		return skip(fmt.Sprintf("status %q does not match trigger %q", e.StatusLabel, tmpl.TriggerStatus))
	}
	if ContactedOn(e.History, today) {
		return skip("already contacted today")
	}

	// Never contacted: unconditional re-admission.
	if e.Stage == 0 && len(e.History) == 0 {
		return Decision{Eligible: true, Path: PathSafetyNet, Stage: e.Stage}
	}

	// Passed anchor within the lookback window, still uncontacted since.
	anchor := e.NextTriggerDate
	if anchor == nil {
		anchor = e.DeadlineDate
	}
	if anchor == nil {
		return skip("no follow-up anchor date")
	}
	if !anchor.Before(today) {
		return skip("follow-up anchor has not passed")
	}
	// Calendar days, not wall-clock duration: a mid-day pass must not
	// shave hours off the window and exclude an anchor exactly
	// LookbackDays back.
	if dates.DaysBetween(*anchor, today) > sn.LookbackDays {
		return skip(fmt.Sprintf("anchor %s outside %d-day lookback", anchor.Format("2006-01-02"), sn.LookbackDays))
	}
	if contactedSince(e.History, *anchor) {
		return skip("already contacted since the anchor date")
	}

	return Decision{Eligible: true, Path: PathSafetyNet, Stage: e.Stage}
}

func contactedSince(history []policy.ContactEvent, anchor time.Time) bool {
	for _, ev := range history {
		if !ev.OccurredAt.Before(anchor) {
			return true
		}
	}
	return false
}
