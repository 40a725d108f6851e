package schedule

import (
	"time"

	"callflow/dates"
	"callflow/policy"
)

// ContactedOn reports whether any contact event in the history falls on
// the same calendar date as day in the engine's single operating
// timezone. Events carry that date explicitly in OccurredOn; older
// records without it fall back to OccurredAt viewed in day's location.
// This guard is the sole mechanism preventing duplicate contacts when the
// engine is invoked more than once per day, so it is re-evaluated on
// every invocation rather than cached.
func ContactedOn(history []policy.ContactEvent, day time.Time) bool {
	y, m, d := day.Date()
	for _, ev := range history {
		if !ev.OccurredOn.IsZero() {
			if dates.SameDay(ev.OccurredOn, day) {
				return true
			}
			continue
		}
		ey, em, ed := ev.OccurredAt.In(day.Location()).Date()
		if ey == y && em == m && ed == d {
			return true
		}
	}
	return false
}
