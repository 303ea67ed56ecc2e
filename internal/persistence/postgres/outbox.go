package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"risk.flagged": {
		Topic:         "risk_events",
		SchemaSubject: "risk_events-value",
	},
	"telemetry.batch_recorded": {
		Topic:         "telemetry_batches",
		SchemaSubject: "telemetry_batches-value",
	},
}

// outboxRecord identifies the aggregate an outbox row belongs to and how it
// should be partitioned downstream.
type outboxRecord struct {
	TenantID     string
	AggregateID  string
	EventType    string
	PartitionKey string
}

func insertOutbox(ctx context.Context, tx pgx.Tx, rec outboxRecord, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[rec.EventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", rec.EventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", rec.AggregateID, rec.EventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		rec.TenantID,
		"telemetry",
		rec.AggregateID,
		rec.EventType,
		meta.Topic,
		meta.SchemaSubject,
		rec.PartitionKey,
		body,
		dedupeKey,
	)
	return err
}
