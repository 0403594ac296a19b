package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
)

// Enqueue writes an outbox row. Call it with the transaction that performs
// the state change so the notification commits or rolls back with it.
func Enqueue(ctx context.Context, q DBTX, kind, recipient string, payload interface{}) error {
	env, err := events.New(kind, recipient, payload)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO outbox_events (id, kind, recipient, payload, created_at, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		env.ID, env.Kind, env.Recipient, string(env.Payload), env.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}

// Outbox is the relay's view of the outbox_events table.
type Outbox struct {
	db *sql.DB
}

func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

// ClaimDue leases up to limit unpublished events whose next attempt is due.
// Leased rows are pushed forward by lease so concurrent relays skip them.
func (o *Outbox) ClaimDue(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error) {
	query := `
		UPDATE outbox_events e
		SET next_attempt_at = NOW() + $3::double precision * INTERVAL '1 millisecond'
		FROM (
			SELECT id FROM outbox_events
			WHERE published_at IS NULL
			  AND attempts < $2
			  AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) due
		WHERE e.id = due.id
		RETURNING e.id, e.kind, e.recipient, e.payload, e.attempts, e.next_attempt_at, e.last_error, e.created_at`

	rows, err := o.db.QueryContext(ctx, query, limit, maxAttempts, lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	var claimed []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.Recipient, &payload, &e.Attempts, &e.NextAttemptAt, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		claimed = append(claimed, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return claimed, nil
}

func (o *Outbox) MarkPublished(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = NOW(), last_error = '' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, nextAttempt time.Time, lastErr string) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox_events
		 SET attempts = attempts + 1, next_attempt_at = $2, last_error = $3
		 WHERE id = $1`, id, nextAttempt, lastErr)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// Pending lists unpublished events, parked ones included.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, kind, recipient, payload, attempts, next_attempt_at, last_error, created_at
		 FROM outbox_events
		 WHERE published_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Kind, &e.Recipient, &payload, &e.Attempts, &e.NextAttemptAt, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}
