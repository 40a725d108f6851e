// Package voice wraps the external voice-calling collaborator. The engine
// only depends on the Caller interface; the HTTP client speaks the
// provider's REST API.
package voice

import "context"

// Contact identifies who to call and how to address them.
type Contact struct {
	EntityID    string
	Name        string
	PhoneNumber string
}

// Outcome is the transcribed result of one completed contact attempt.
type Outcome struct {
	// Success means the call ran to completion and an outcome was
	// retrieved. It says nothing about whether the client picked up or
	// agreed; that lives in Evaluation and EndedReason.
	Success     bool
	Summary     string
	Evaluation  string
	EndedReason string
}

// Caller places one contact and blocks until its outcome is known or the
// wait budget lapses. A timeout error means failed-but-possibly-placed:
// the caller side must not retry the contact.
type Caller interface {
	PlaceContact(ctx context.Context, contact Contact, scriptVariant string) (Outcome, error)
}
