package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"callflow/policy"
)

func TestContactedOn(t *testing.T) {
	history := []policy.ContactEvent{
		{OccurredAt: time.Date(2026, time.January, 2, 16, 5, 0, 0, time.UTC)},
		{OccurredAt: time.Date(2026, time.January, 9, 16, 5, 0, 0, time.UTC)},
	}

	assert.True(t, ContactedOn(history, day(2026, time.January, 2)))
	assert.True(t, ContactedOn(history, day(2026, time.January, 9)))
	assert.False(t, ContactedOn(history, day(2026, time.January, 5)))
	assert.False(t, ContactedOn(nil, day(2026, time.January, 2)))
}

func TestContactedOn_OperatingTimezone(t *testing.T) {
	pacific, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// 2026-01-03 02:00 UTC is still 2026-01-02 in Pacific time. The guard
	// compares calendar dates in the operating timezone, not UTC.
	history := []policy.ContactEvent{
		{OccurredAt: time.Date(2026, time.January, 3, 2, 0, 0, 0, time.UTC)},
	}

	pacificDay := time.Date(2026, time.January, 2, 0, 0, 0, 0, pacific)
	assert.True(t, ContactedOn(history, pacificDay))

	utcDay := day(2026, time.January, 2)
	assert.False(t, ContactedOn(history, utcDay))
}

func TestTemplates_CalendarOffsetsDecrease(t *testing.T) {
	for _, class := range []policy.Classification{
		policy.ClassNonPayment,
		policy.ClassRenewal,
		policy.ClassNonRenewal,
		policy.ClassDirectBill,
		policy.ClassMortgageBill,
	} {
		tmpl, ok := TemplateFor(class)
		assert.True(t, ok, "template for %s", class)
		assert.NotEmpty(t, tmpl.Stages)

		prev := -1
		for i, s := range tmpl.Stages {
			if s.Unit != CalendarDays {
				continue
			}
			if prev >= 0 {
				assert.Less(t, s.OffsetDays, prev, "%s stage %d offset must decrease toward the deadline", class, i)
			}
			prev = s.OffsetDays
		}
	}
}

func TestTemplates_UnclassifiedHasNone(t *testing.T) {
	_, ok := TemplateFor(policy.ClassUnclassified)
	assert.False(t, ok)
}
