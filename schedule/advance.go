package schedule

import (
	"math"
	"time"

	"callflow/dates"
	"callflow/policy"
)

// Advance computes the post-contact progress state: the new stage and,
// when the next stage is business-day driven, the recomputed follow-up
// date. Calendar-day stages carry no stored trigger; their targets are
// derived fresh from the deadline on every run.
//
// Business-day follow-ups implement the halving-interval backoff: the
// 0→1 transition schedules a third of the remaining business days out,
// the 1→2 transition half, both floored at one business day so a reminder
// is never scheduled for the same day.
func Advance(tmpl Template, e policy.Entity, today time.Time) (newStage int, next *time.Time) {
	newStage = e.Stage + 1

	if newStage >= tmpl.Terminal() {
		return newStage, nil
	}
	if tmpl.Stages[newStage].Unit != BusinessDays {
		return newStage, nil
	}
	if e.DeadlineDate == nil {
		return newStage, nil
	}

	remaining := dates.CountBusinessDays(today, *e.DeadlineDate)
	target := int(math.Round(float64(remaining) / divisorForTransition(e.Stage)))
	if target < 1 {
		target = 1
	}

	d := dates.AddBusinessDays(today, target)
	return newStage, &d
}

func divisorForTransition(fromStage int) float64 {
	switch fromStage {
	case 0:
		return 3
	default:
		return 2
	}
}
