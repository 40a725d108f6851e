package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the entity does not exist in the record store.
	ErrNotFound = errors.New("policy: entity not found")
	// ErrDuplicateContact signals a contact event already exists for the
	// entity on that calendar date. The unique (entity_id, occurred_on)
	// index is the database-side backstop behind the dedup guard.
	ErrDuplicateContact = errors.New("policy: contact already recorded for this date")
)

// Repository is the record store consumed by the campaign orchestrator.
type Repository interface {
	ListEntities(ctx context.Context) ([]Entity, error)
	ApplyContactResult(ctx context.Context, patch ContactPatch) error
	AppendContactEvent(ctx context.Context, entityID string, event ContactEvent) error
	SetCompleted(ctx context.Context, entityID string, completed bool) error
}

// PGRepository is the pgxpool-backed record store.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListEntities loads the full tracked population with contact history,
// oldest events first. Classification is assigned here, at ingestion, so
// the evaluators only ever see typed entities.
func (r *PGRepository) ListEntities(ctx context.Context) ([]Entity, error) {
	const entityQuery = `
		SELECT id, client_name, phone_number, reason, status_label,
		       amount_due, deadline_date, stage, next_trigger_date, completed
		FROM entities
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, entityQuery)
	if err != nil {
		return nil, fmt.Errorf("policy: list entities: %w", err)
	}
	defer rows.Close()

	entities := make([]Entity, 0, 64)
	index := make(map[string]int)
	for rows.Next() {
		var e Entity
		if err := rows.Scan(
			&e.ID,
			&e.ClientName,
			&e.PhoneNumber,
			&e.Reason,
			&e.StatusLabel,
			&e.AmountDue,
			&e.DeadlineDate,
			&e.Stage,
			&e.NextTriggerDate,
			&e.Completed,
		); err != nil {
			return nil, fmt.Errorf("policy: scan entity: %w", err)
		}
		e.Classification = Classify(e.Reason)
		index[e.ID] = len(entities)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policy: iterate entities: %w", err)
	}

	const eventQuery = `
		SELECT id, entity_id, occurred_at, occurred_on, summary, evaluation, ended_reason
		FROM contact_events
		ORDER BY entity_id, occurred_at
	`

	eventRows, err := r.pool.Query(ctx, eventQuery)
	if err != nil {
		return nil, fmt.Errorf("policy: list contact events: %w", err)
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var (
			ev       ContactEvent
			entityID string
		)
		if err := eventRows.Scan(&ev.ID, &entityID, &ev.OccurredAt, &ev.OccurredOn, &ev.Summary, &ev.Evaluation, &ev.EndedReason); err != nil {
			return nil, fmt.Errorf("policy: scan contact event: %w", err)
		}
		if i, ok := index[entityID]; ok {
			entities[i].History = append(entities[i].History, ev)
		}
	}
	if err := eventRows.Err(); err != nil {
		return nil, fmt.Errorf("policy: iterate contact events: %w", err)
	}

	return entities, nil
}

// ApplyContactResult applies the post-contact patch atomically for one
// entity: event append plus stage/trigger update in a single transaction.
// The event insert runs first so a same-day duplicate aborts the whole
// patch before the stage is touched.
func (r *PGRepository) ApplyContactResult(ctx context.Context, patch ContactPatch) error {
	if patch.EntityID == "" {
		return fmt.Errorf("policy: apply contact result: missing entity id")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("policy: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertContactEvent(ctx, tx, patch.EntityID, patch.Event); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE entities
		SET stage = $2, next_trigger_date = $3, updated_at = now()
		WHERE id = $1
	`, patch.EntityID, patch.Stage, patch.NextTriggerDate)
	if err != nil {
		return fmt.Errorf("policy: update entity stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("policy: commit contact result: %w", err)
	}

	return nil
}

// AppendContactEvent is the reduced write: the event row alone, with no
// stage or trigger update. It exists so the dedup guard still sees the
// contact on the next invocation even when the full patch could not be
// persisted.
func (r *PGRepository) AppendContactEvent(ctx context.Context, entityID string, event ContactEvent) error {
	if entityID == "" {
		return fmt.Errorf("policy: append contact event: missing entity id")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("policy: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertContactEvent(ctx, tx, entityID, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("policy: commit contact event: %w", err)
	}

	return nil
}

// SetCompleted records the manual close-out decision. The engine itself
// never calls this; reaching the terminal stage is not completion.
func (r *PGRepository) SetCompleted(ctx context.Context, entityID string, completed bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE entities SET completed = $2, updated_at = now() WHERE id = $1
	`, entityID, completed)
	if err != nil {
		return fmt.Errorf("policy: set completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertContactEvent(ctx context.Context, tx pgx.Tx, entityID string, event ContactEvent) error {
	// occurred_on carries the operating-timezone pass date as its own
	// parameter. Deriving it in SQL from the timestamptz would use the
	// session timezone and shift late-afternoon contacts onto the next
	// date, defeating the unique (entity_id, occurred_on) backstop.
	occurredOn := event.OccurredOn
	if occurredOn.IsZero() {
		occurredOn = event.OccurredAt
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO contact_events (id, entity_id, occurred_at, occurred_on, summary, evaluation, ended_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, entityID, event.OccurredAt, occurredOn, event.Summary, event.Evaluation, event.EndedReason)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateContact
		}
		return fmt.Errorf("policy: insert contact event: %w", err)
	}
	return nil
}
