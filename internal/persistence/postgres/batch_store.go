package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/events"
)

// batchStore implements domain.BatchStore on a single open transaction. All
// duplicate handling is pushed into the database: ON CONFLICT DO NOTHING with
// per-row command tags tells us exactly which rows a retried batch replayed.
type batchStore struct {
	tx pgx.Tx
}

// TouchDevice is the implicit heartbeat: liveness only, no upload timestamp.
func (s *batchStore) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	const stmt = `UPDATE devices SET status='ONLINE', last_seen_at=$2 WHERE device_id=$1`
	_, err := s.tx.Exec(ctx, stmt, deviceID, seenAt)
	return err
}

// RecordHeartbeat marks the device ONLINE regardless of the status the agent
// reported; the raw payload status is retained on the heartbeat row.
func (s *batchStore) RecordHeartbeat(ctx context.Context, hb domain.DeviceHeartbeat) error {
	const update = `UPDATE devices SET status='ONLINE', agent_version=$2, last_seen_at=$3, last_upload_at=$3 WHERE device_id=$1`
	if _, err := s.tx.Exec(ctx, update, hb.DeviceID, hb.AgentVersion, hb.Ts); err != nil {
		return err
	}

	const insert = `INSERT INTO device_heartbeats (heartbeat_id, tenant_id, org_id, device_id, ts, status, agent_version, queue_depth, upload_error_count, ingest_batch_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := s.tx.Exec(ctx, insert,
		hb.ID,
		hb.TenantID,
		hb.OrgID,
		hb.DeviceID,
		hb.Ts,
		hb.Status,
		hb.AgentVersion,
		hb.QueueDepth,
		hb.UploadErrorCount,
		hb.IngestBatchID,
	)
	return err
}

// InsertActivityBuckets inserts buckets one statement per row in a pgx batch
// so each row's command tag reveals whether the natural key already existed.
// Only rows the database actually stored are returned; those are the ones the
// caller folds into daily summaries.
func (s *batchStore) InsertActivityBuckets(ctx context.Context, buckets []domain.ActivityBucket) ([]domain.ActivityBucket, error) {
	if len(buckets) == 0 {
		return nil, nil
	}

	const stmt = `INSERT INTO activity_buckets (bucket_id, tenant_id, org_id, device_id, bucket_start, bucket_minutes, active_seconds, idle_seconds, avg_focus_score, ingest_batch_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (device_id, bucket_start, bucket_minutes) DO NOTHING`

	batch := &pgx.Batch{}
	for _, b := range buckets {
		batch.Queue(stmt, b.ID, b.TenantID, b.OrgID, b.DeviceID, b.BucketStart, b.BucketMinutes, b.ActiveSeconds, b.IdleSeconds, b.AvgFocusScore, b.IngestBatchID)
	}

	results := s.tx.SendBatch(ctx, batch)
	accepted := make([]domain.ActivityBucket, 0, len(buckets))
	for _, b := range buckets {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return nil, err
		}
		if tag.RowsAffected() > 0 {
			accepted = append(accepted, b)
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}
	return accepted, nil
}

func (s *batchStore) InsertAppEvents(ctx context.Context, evs []domain.AppUsageEvent) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}

	const stmt = `INSERT INTO app_usage_events (event_id, tenant_id, org_id, device_id, ts_start, ts_end, app_name, process_name, ingest_batch_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (event_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range evs {
		batch.Queue(stmt, e.ID, e.TenantID, e.OrgID, e.DeviceID, e.TsStart, e.TsEnd, e.AppName, e.ProcessName, e.IngestBatchID)
	}
	return s.countInserted(ctx, batch, len(evs))
}

func (s *batchStore) InsertWebEvents(ctx context.Context, evs []domain.WebUsageEvent) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}

	const stmt = `INSERT INTO web_usage_events (event_id, tenant_id, org_id, device_id, ts_start, ts_end, domain, ingest_batch_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (event_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range evs {
		batch.Queue(stmt, e.ID, e.TenantID, e.OrgID, e.DeviceID, e.TsStart, e.TsEnd, e.Domain, e.IngestBatchID)
	}
	return s.countInserted(ctx, batch, len(evs))
}

func (s *batchStore) InsertFileEvents(ctx context.Context, evs []domain.FileEvent) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}

	const stmt = `INSERT INTO file_events (event_id, tenant_id, org_id, device_id, ts, ts_ms, operation, path_hash, dest_path_hash, file_ext, size_bytes, is_usb, is_external, ingest_batch_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (event_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range evs {
		batch.Queue(stmt, e.ID, e.TenantID, e.OrgID, e.DeviceID, e.Ts, e.TsMs, e.Operation, e.PathHash, nullIfEmpty(e.DestPathHash), nullIfEmpty(e.FileExt), e.SizeBytes, e.IsUsb, e.IsExternal, e.IngestBatchID)
	}
	return s.countInserted(ctx, batch, len(evs))
}

// InsertUsbEvents appends unconditionally; ids are server-generated so there
// is no conflict target.
func (s *batchStore) InsertUsbEvents(ctx context.Context, evs []domain.UsbEvent) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}

	const stmt = `INSERT INTO usb_events (event_id, tenant_id, org_id, device_id, ts_ms, action, drive_letter, vendor_id, product_id, volume_serial, ingest_batch_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	batch := &pgx.Batch{}
	for _, e := range evs {
		batch.Queue(stmt, e.ID, e.TenantID, e.OrgID, e.DeviceID, e.TsMs, e.Action, nullIfEmpty(e.DriveLetter), nullIfEmpty(e.VendorID), nullIfEmpty(e.ProductID), nullIfEmpty(e.VolumeSerial), e.IngestBatchID)
	}
	return s.countInserted(ctx, batch, len(evs))
}

func (s *batchStore) countInserted(ctx context.Context, batch *pgx.Batch, queued int) (int, error) {
	results := s.tx.SendBatch(ctx, batch)
	inserted := 0
	for i := 0; i < queued; i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpsertDailySummary folds one day's delta inside a savepoint so a failure
// for a single date cannot poison the surrounding batch transaction.
func (s *batchStore) UpsertDailySummary(ctx context.Context, delta domain.DailySummaryDelta) error {
	const stmt = `INSERT INTO daily_device_summary (tenant_id, org_id, device_id, date, active_seconds, idle_seconds, top_apps, top_domains, risk_counters, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,'[]'::jsonb,'[]'::jsonb,'{}'::jsonb,now())
        ON CONFLICT (tenant_id, org_id, device_id, date) DO UPDATE SET
            active_seconds = daily_device_summary.active_seconds + EXCLUDED.active_seconds,
            idle_seconds = daily_device_summary.idle_seconds + EXCLUDED.idle_seconds,
            updated_at = now()`

	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return err
	}

	if _, err := sp.Exec(ctx, stmt, delta.TenantID, delta.OrgID, delta.DeviceID, delta.Date, delta.ActiveSeconds, delta.IdleSeconds); err != nil {
		sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (s *batchStore) RecordBatchOutbox(ctx context.Context, device *domain.Device, batchID string, report *domain.BatchReport) error {
	return insertOutbox(ctx, s.tx, outboxRecord{
		TenantID:     device.TenantID,
		AggregateID:  batchID,
		EventType:    "telemetry.batch_recorded",
		PartitionKey: device.TenantID + ":" + device.DeviceID,
	}, events.BatchRecorded{
		BatchID:    batchID,
		TenantID:   device.TenantID,
		OrgID:      device.OrgID,
		DeviceID:   device.DeviceID,
		Processed:  report.Processed,
		Rejected:   report.Rejected,
		RecordedAt: time.Now().UTC(),
	})
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
