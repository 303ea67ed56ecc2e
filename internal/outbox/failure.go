package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Failure reasons can embed driver errors of arbitrary length.
const maxReasonLength = 2048

// DLQWriter parks undeliverable outbox events in outbox_dlq so the DLQ
// manager can retry them later. Entries become eligible immediately; the
// manager applies backoff on subsequent failures.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write records a failed outbox message together with the failure reason.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	if len(reason) > maxReasonLength {
		reason = reason[:maxReasonLength]
	}

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", msg.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox_dlq
	        (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
	        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`
	if _, err := tx.Exec(ctx, stmt,
		msg.TenantID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
		msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
