//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDLQManagerRequeuesAndRedelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	riskID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, tenantID, riskID, "risk.flagged"))

	registry := &stubRegistry{id: 11}

	failingProducer := &stubProducer{err: errors.New("upstream kafka unavailable")}
	dispatcher := NewDispatcher(pool, failingProducer, registry, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount, "expected message routed to DLQ on failure")

	manager := NewDLQManager(pool, 5, time.Second)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 0, dlqCount, "expected DLQ cleared after requeue")

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Equal(t, 1, pending, "requeued event should be waiting in the outbox")

	workingProducer := &stubProducer{}
	dispatcher = NewDispatcher(pool, workingProducer, registry, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, workingProducer.writes, 1)
	require.Equal(t, "risk_events", workingProducer.writes[0].topic)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Equal(t, 0, pending)
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()
	eventID := seedOutbox(t, ctx, pool, tenantID, uuid.NewString(), "risk.flagged")

	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, NOW())`,
		tenantID, eventID, "risk.flagged", "risk_events", []byte(`{}`), "kafka write failed",
		"telemetry", uuid.NewString(), "risk_events-value", tenantID+":key", 5,
	)
	require.NoError(t, err)

	manager := NewDLQManager(pool, 5, time.Second)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued, "quarantining still counts as processed")

	var quarantinedAt *time.Time
	var quarantineReason *string
	err = pool.QueryRow(ctx, `SELECT quarantined_at, quarantine_reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&quarantinedAt, &quarantineReason)
	require.NoError(t, err)
	require.NotNil(t, quarantinedAt)
	require.NotNil(t, quarantineReason)
	require.Equal(t, "retry limit reached", *quarantineReason)

	// Quarantined entries must be invisible to subsequent runs.
	requeued, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)
}

func TestDLQManagerBacksOffOnRequeueFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	tenantID := uuid.NewString()

	// Missing schema_subject makes requeueOutbox fail, exercising the backoff path.
	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, partition_key, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
		tenantID, int64(1), "risk.flagged", "risk_events", []byte(`{}`), "kafka write failed",
		"telemetry", uuid.NewString(), tenantID+":key", 0,
	)
	require.NoError(t, err)

	manager := NewDLQManager(pool, 5, time.Second)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	var retryCount int
	var nextRetryAt time.Time
	var reason string
	err = pool.QueryRow(ctx, `SELECT retry_count, next_retry_at, reason FROM outbox_dlq WHERE tenant_id = $1`, tenantID).Scan(&retryCount, &nextRetryAt, &reason)
	require.NoError(t, err)
	require.Equal(t, 1, retryCount)
	require.True(t, nextRetryAt.After(time.Now().UTC().Add(-time.Second)))
	require.Contains(t, reason, "missing schema_subject")

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending, "failed requeue must not leak into the outbox")
}
