// Package postgres implements the telemetry storage contracts on PostgreSQL.
// Every query runs inside a transaction that pins app.tenant_id so the
// row-level security policies scope each call to its tenant.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/telemetry/internal/domain"
)

// Repository provides Postgres-backed persistence for devices, telemetry
// batches, daily summaries, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get retrieves a device by id. The lookup runs before the tenant is known,
// so it executes outside the RLS session scope; the devices table grants the
// service role direct read access for enrollment resolution.
func (r *Repository) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	const query = `SELECT device_id, tenant_id, org_id, name, status, agent_version, enrolled_at, last_seen_at, last_upload_at
        FROM devices WHERE device_id=$1`

	row := r.pool.QueryRow(ctx, query, deviceID)
	var d domain.Device
	if err := row.Scan(&d.DeviceID, &d.TenantID, &d.OrgID, &d.Name, &d.Status, &d.AgentVersion, &d.EnrolledAt, &d.LastSeenAt, &d.LastUploadAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// WithBatch runs fn against a BatchStore bound to a single tenant-scoped
// transaction. The transaction commits only when fn returns nil; any error
// rolls back every write of the batch.
func (r *Repository) WithBatch(ctx context.Context, tenantID string, fn func(domain.BatchStore) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	if err = fn(&batchStore{tx: tx}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// GetDailySummary returns the accumulated rollup for one device-day, or nil
// when no activity has been recorded for that date.
func (r *Repository) GetDailySummary(ctx context.Context, tenantID, deviceID string, date time.Time) (*domain.DailyDeviceSummary, error) {
	const query = `SELECT tenant_id, org_id, device_id, date, active_seconds, idle_seconds, top_apps, top_domains, risk_counters, updated_at
        FROM daily_device_summary WHERE tenant_id=$1 AND device_id=$2 AND date=$3`

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

	row := tx.QueryRow(ctx, query, tenantID, deviceID, date)
	var s domain.DailyDeviceSummary
	if err := row.Scan(&s.TenantID, &s.OrgID, &s.DeviceID, &s.Date, &s.ActiveSeconds, &s.IdleSeconds, &s.TopApps, &s.TopDomains, &s.RiskCounters, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}
