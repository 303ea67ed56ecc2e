package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/events"
)

// RecentUsbInserts returns USB insert events for the device at or after sinceMs.
func (r *Repository) RecentUsbInserts(ctx context.Context, device *domain.Device, sinceMs int64) ([]domain.UsbEvent, error) {
	const query = `SELECT event_id, tenant_id, org_id, device_id, ts_ms, action, COALESCE(drive_letter,''), COALESCE(vendor_id,''), COALESCE(product_id,''), COALESCE(volume_serial,''), ingest_batch_id
        FROM usb_events WHERE device_id=$1 AND action='INSERT' AND ts_ms>=$2 ORDER BY ts_ms`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", device.TenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, device.DeviceID, sinceMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.UsbEvent
	for rows.Next() {
		var e domain.UsbEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.OrgID, &e.DeviceID, &e.TsMs, &e.Action, &e.DriveLetter, &e.VendorID, &e.ProductID, &e.VolumeSerial, &e.IngestBatchID); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// RecentExternalFileOps returns COPY and MODIFY operations that touched
// removable or external media at or after sinceMs.
func (r *Repository) RecentExternalFileOps(ctx context.Context, device *domain.Device, sinceMs int64) ([]domain.FileEvent, error) {
	const query = `SELECT event_id, tenant_id, org_id, device_id, ts, ts_ms, operation, path_hash, COALESCE(dest_path_hash,''), COALESCE(file_ext,''), size_bytes, is_usb, is_external, ingest_batch_id
        FROM file_events
        WHERE device_id=$1 AND ts_ms>=$2 AND operation IN ('COPY','MODIFY') AND (is_usb OR is_external)
        ORDER BY ts_ms`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", device.TenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, device.DeviceID, sinceMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.FileEvent
	for rows.Next() {
		var e domain.FileEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.OrgID, &e.DeviceID, &e.Ts, &e.TsMs, &e.Operation, &e.PathHash, &e.DestPathHash, &e.FileExt, &e.SizeBytes, &e.IsUsb, &e.IsExternal, &e.IngestBatchID); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// CountDestructiveFileOps counts DELETE and RENAME operations at or after sinceMs.
func (r *Repository) CountDestructiveFileOps(ctx context.Context, device *domain.Device, sinceMs int64) (int64, error) {
	const query = `SELECT count(*) FROM file_events
        WHERE device_id=$1 AND ts_ms>=$2 AND operation IN ('DELETE','RENAME')`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", device.TenantID); err != nil {
		return 0, err
	}

	var count int64
	if err := tx.QueryRow(ctx, query, device.DeviceID, sinceMs).Scan(&count); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// RiskExists reports whether a finding with the dedup key already exists.
func (r *Repository) RiskExists(ctx context.Context, device *domain.Device, riskType, dedupKey string) (bool, error) {
	const query = `SELECT 1 FROM risk_events
        WHERE tenant_id=$1 AND org_id=$2 AND device_id=$3 AND type=$4 AND dedup_key=$5`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", device.TenantID); err != nil {
		return false, err
	}

	var one int
	err = tx.QueryRow(ctx, query, device.TenantID, device.OrgID, device.DeviceID, riskType, dedupKey).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, tx.Commit(ctx)
	}
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CreateRiskEvent persists the finding and its outbox record in one
// transaction. It reports false when the dedup tuple lost a concurrent race;
// in that case nothing is written and no event is published.
func (r *Repository) CreateRiskEvent(ctx context.Context, ev domain.RiskEvent) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", ev.TenantID); err != nil {
		return false, err
	}

	const stmt = `INSERT INTO risk_events (risk_id, tenant_id, org_id, device_id, type, severity, window_start_ms, window_end_ms, dedup_key, status, evidence, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (tenant_id, org_id, device_id, type, dedup_key) DO NOTHING`

	tag, err := tx.Exec(ctx, stmt,
		ev.ID,
		ev.TenantID,
		ev.OrgID,
		ev.DeviceID,
		ev.Type,
		ev.Severity,
		ev.WindowStartMs,
		ev.WindowEndMs,
		ev.DedupKey,
		ev.Status,
		ev.Evidence,
		ev.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		err = tx.Commit(ctx)
		return false, err
	}

	if err = insertOutbox(ctx, tx, outboxRecord{
		TenantID:     ev.TenantID,
		AggregateID:  ev.ID,
		EventType:    "risk.flagged",
		PartitionKey: ev.TenantID + ":" + ev.DeviceID,
	}, events.RiskFlagged{
		RiskID:        ev.ID,
		TenantID:      ev.TenantID,
		OrgID:         ev.OrgID,
		DeviceID:      ev.DeviceID,
		Type:          ev.Type,
		Severity:      ev.Severity,
		WindowStartMs: ev.WindowStartMs,
		WindowEndMs:   ev.WindowEndMs,
		CreatedAt:     ev.CreatedAt,
	}); err != nil {
		return false, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListRiskEvents returns the newest findings for a device.
func (r *Repository) ListRiskEvents(ctx context.Context, tenantID, deviceID string, limit int) ([]domain.RiskEvent, error) {
	const query = `SELECT risk_id, tenant_id, org_id, device_id, type, severity, window_start_ms, window_end_ms, dedup_key, status, evidence, created_at
        FROM risk_events WHERE tenant_id=$1 AND device_id=$2
        ORDER BY created_at DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RiskEvent, 0, limit)
	for rows.Next() {
		var ev domain.RiskEvent
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.OrgID, &ev.DeviceID, &ev.Type, &ev.Severity, &ev.WindowStartMs, &ev.WindowEndMs, &ev.DedupKey, &ev.Status, &ev.Evidence, &ev.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}
