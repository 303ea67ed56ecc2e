package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogHandler appends consumed events to the telemetry_event_log table.
// The log is append-only; replays after an uncommitted offset produce
// duplicate rows, which auditing tolerates.
type AuditLogHandler struct {
	pool *pgxpool.Pool
}

// NewAuditLogHandler constructs a handler backed by the provided pool.
func NewAuditLogHandler(pool *pgxpool.Pool) *AuditLogHandler {
	return &AuditLogHandler{pool: pool}
}

// Handle stores one decoded event.
func (h *AuditLogHandler) Handle(ctx context.Context, msg Message) error {
	const stmt = `INSERT INTO telemetry_event_log
	        (event_type, tenant_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
	        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := h.pool.Exec(ctx, stmt,
		msg.EventType, msg.TenantID, msg.SchemaID, msg.SchemaSubject,
		msg.Topic, msg.Partition, msg.Offset, msg.Payload, msg.Timestamp,
	)
	return err
}
