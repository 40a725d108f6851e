package policy

import "time"

// Classification is the campaign type assigned to a tracked policy. It
// selects the schedule template the engine follows.
type Classification string

const (
	// ClassNonPayment covers policies pending cancellation for non-payment;
	// reminders follow the business-day halving backoff.
	ClassNonPayment Classification = "non_payment"
	// ClassRenewal covers expiring policies on the fixed 14/7/1/0 schedule.
	ClassRenewal Classification = "renewal"
	// ClassNonRenewal covers policies the carrier will not renew.
	ClassNonRenewal Classification = "non_renewal"
	// ClassDirectBill covers direct-billed payment reminders.
	ClassDirectBill Classification = "direct_bill"
	// ClassMortgageBill covers mortgagee-billed policies; contacted on the
	// due date and backstopped by the status-triggered safety net.
	ClassMortgageBill Classification = "mortgage_bill"
	// ClassUnclassified marks records whose discriminator matched no known
	// campaign. They are excluded from all scheduling until corrected.
	ClassUnclassified Classification = "unclassified"
)

// Entity is one tracked policy record, reified from the loosely typed
// record store into the only shape the evaluators operate on.
type Entity struct {
	ID          string
	ClientName  string
	PhoneNumber string

	// Reason is the raw discriminator text the classifier matches against.
	Reason string
	// StatusLabel is the free-text business status. A settlement-matching
	// label pre-empts all scheduling.
	StatusLabel string

	Classification Classification

	// AmountDue is a pointer so an absent column and a present-but-empty
	// value stay distinguishable; some classifications require it.
	AmountDue *string

	// DeadlineDate anchors the schedule (cancellation date, expiry date,
	// payment due date depending on classification).
	DeadlineDate *time.Time

	// Stage counts completed contacts; 0 until the first call.
	Stage int

	// NextTriggerDate is set by the stage advancer after a business-day
	// transition, or at ingestion for a stage-0 follow-up. Nil for
	// calendar-day stages and once terminal.
	NextTriggerDate *time.Time

	// Completed is only ever set by manual close-out, never by the engine.
	Completed bool

	// History is the append-only contact log, oldest first.
	History []ContactEvent
}

// ContactEvent is one immutable contact attempt record.
type ContactEvent struct {
	ID         string
	OccurredAt time.Time
	// OccurredOn is the pass date the contact was placed for, as a
	// calendar date in the operating timezone. The same-day guard and the
	// database backstop key on it, not on OccurredAt's wall-clock date:
	// the two diverge whenever a pass runs with an injected date or the
	// wall clock crosses midnight in another timezone.
	OccurredOn  time.Time
	Summary     string
	Evaluation  string
	EndedReason string
}

// ContactPatch is the per-entity write applied after a confirmed contact:
// stage advance, next trigger, and the event append, atomic per entity.
type ContactPatch struct {
	EntityID        string
	Stage           int
	NextTriggerDate *time.Time
	Event           ContactEvent
}
