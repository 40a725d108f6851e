// Package schedule holds the eligibility engine: the per-classification
// stage templates, the primary and safety-net evaluators, the same-day
// dedup guard, and the stage advancer.
package schedule

import (
	"strings"

	"callflow/policy"
)

// Unit selects how a stage's trigger date is derived.
type Unit string

const (
	// CalendarDays stages fire at a fixed offset before the deadline,
	// adjusted off weekends. They are stateless between runs.
	CalendarDays Unit = "calendar_days"
	// BusinessDays stages fire when the stored follow-up date arrives; the
	// date itself is recomputed at each stage transition.
	BusinessDays Unit = "business_days"
)

// Mode selects how a stage's contacts are dispatched.
type Mode string

const (
	// Batch partitions fan out concurrently.
	Batch Mode = "batch"
	// Sequential partitions run strictly one entity at a time.
	Sequential Mode = "sequential"
)

// StageDef is one checkpoint in a classification's contact sequence.
type StageDef struct {
	// OffsetDays is the calendar-day distance before the deadline. Ignored
	// for business-day stages.
	OffsetDays int
	Unit       Unit
	Mode       Mode
}

// Template is the static per-classification schedule configuration.
type Template struct {
	Stages []StageDef

	// RequireAmountDue marks classifications whose contact script reads
	// the amount back to the client; absent or empty blocks eligibility.
	RequireAmountDue bool

	// StatusTriggered marks the classification as belonging to the
	// safety-net subset; TriggerStatus is the exact (case-insensitive)
	// status label that re-admits missed entities.
	StatusTriggered bool
	TriggerStatus   string
}

// Terminal is the stage count after which no further automatic contact
// occurs.
func (t Template) Terminal() int {
	return len(t.Stages)
}

// MissingRequired returns the name of the first required attribute that is
// absent or empty, or "" when the entity satisfies the template's
// preconditions.
func (t Template) MissingRequired(e policy.Entity) string {
	if strings.TrimSpace(e.ClientName) == "" {
		return "client name"
	}
	if strings.TrimSpace(e.PhoneNumber) == "" {
		return "phone number"
	}
	if e.DeadlineDate == nil {
		return "deadline date"
	}
	if t.RequireAmountDue && (e.AmountDue == nil || strings.TrimSpace(*e.AmountDue) == "") {
		return "amount due"
	}
	return ""
}

// Calendar offsets strictly decrease toward the deadline; business-day
// offsets are zero because those trigger dates are recomputed dynamically.
var templates = map[policy.Classification]Template{
	policy.ClassNonPayment: {
		Stages: []StageDef{
			{Unit: BusinessDays, Mode: Batch},
			{Unit: BusinessDays, Mode: Sequential},
			{Unit: BusinessDays, Mode: Sequential},
		},
		RequireAmountDue: true,
	},
	policy.ClassRenewal: {
		Stages: []StageDef{
			{OffsetDays: 14, Unit: CalendarDays, Mode: Batch},
			{OffsetDays: 7, Unit: CalendarDays, Mode: Sequential},
			{OffsetDays: 1, Unit: CalendarDays, Mode: Sequential},
			{OffsetDays: 0, Unit: CalendarDays, Mode: Sequential},
		},
	},
	policy.ClassNonRenewal: {
		Stages: []StageDef{
			{OffsetDays: 14, Unit: CalendarDays, Mode: Batch},
			{OffsetDays: 7, Unit: CalendarDays, Mode: Sequential},
			{OffsetDays: 3, Unit: CalendarDays, Mode: Sequential},
		},
	},
	policy.ClassDirectBill: {
		Stages: []StageDef{
			{OffsetDays: 14, Unit: CalendarDays, Mode: Batch},
			{OffsetDays: 7, Unit: CalendarDays, Mode: Sequential},
			{OffsetDays: 1, Unit: CalendarDays, Mode: Sequential},
		},
		RequireAmountDue: true,
	},
	policy.ClassMortgageBill: {
		Stages: []StageDef{
			{OffsetDays: 0, Unit: CalendarDays, Mode: Sequential},
		},
		StatusTriggered: true,
		TriggerStatus:   "pending payment",
	},
}

// TemplateFor returns the schedule template for a classification.
// Unclassified has no template and is thereby excluded from scheduling.
func TemplateFor(class policy.Classification) (Template, bool) {
	t, ok := templates[class]
	return t, ok
}
