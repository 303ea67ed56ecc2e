package domain

import (
	"context"
	"time"
)

// DeviceRepository resolves a device and its tenant/org scope.
type DeviceRepository interface {
	// Get returns nil (not an error) when the device is unknown.
	Get(ctx context.Context, deviceID string) (*Device, error)
}

// BatchStore exposes the writes available inside one ingestion transaction.
// Every mutation of a batch call goes through a single BatchStore so the call
// commits or rolls back as a unit.
type BatchStore interface {
	// TouchDevice bumps liveness when a batch arrives without a heartbeat.
	TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error

	// RecordHeartbeat updates device liveness/status/agent version and
	// appends the heartbeat row.
	RecordHeartbeat(ctx context.Context, hb DeviceHeartbeat) error

	// InsertActivityBuckets inserts buckets, skipping natural-key duplicates
	// atomically, and returns the subset that was actually stored.
	InsertActivityBuckets(ctx context.Context, buckets []ActivityBucket) ([]ActivityBucket, error)

	// The event inserts skip id duplicates atomically and return the number
	// of rows stored.
	InsertAppEvents(ctx context.Context, events []AppUsageEvent) (int, error)
	InsertWebEvents(ctx context.Context, events []WebUsageEvent) (int, error)
	InsertFileEvents(ctx context.Context, events []FileEvent) (int, error)

	// InsertUsbEvents appends unconditionally; USB events have no natural key.
	InsertUsbEvents(ctx context.Context, events []UsbEvent) (int, error)

	// UpsertDailySummary folds the delta into the per-device-per-day counters
	// with an accumulate-on-conflict upsert. A failure here is isolated to
	// the affected date and leaves the surrounding transaction usable.
	UpsertDailySummary(ctx context.Context, delta DailySummaryDelta) error

	// RecordBatchOutbox stores the per-batch provenance event for publication.
	RecordBatchOutbox(ctx context.Context, device *Device, batchID string, report *BatchReport) error
}

// TelemetryRepository runs one ingestion call's writes in a single
// tenant-scoped transaction.
type TelemetryRepository interface {
	WithBatch(ctx context.Context, tenantID string, fn func(BatchStore) error) error
}

// RiskStore provides the window queries and finding persistence used by the
// risk rule engine, plus the lookup the read API exposes to dashboards.
type RiskStore interface {
	RecentUsbInserts(ctx context.Context, device *Device, sinceMs int64) ([]UsbEvent, error)
	RecentExternalFileOps(ctx context.Context, device *Device, sinceMs int64) ([]FileEvent, error)
	CountDestructiveFileOps(ctx context.Context, device *Device, sinceMs int64) (int64, error)

	RiskExists(ctx context.Context, device *Device, riskType, dedupKey string) (bool, error)
	// CreateRiskEvent inserts the finding and its outbox record; it reports
	// false when the dedup tuple already exists (lost race, benign).
	CreateRiskEvent(ctx context.Context, ev RiskEvent) (bool, error)

	ListRiskEvents(ctx context.Context, tenantID, deviceID string, limit int) ([]RiskEvent, error)
}

// SummaryReader serves daily summary lookups for reporting collaborators.
type SummaryReader interface {
	// GetDailySummary returns nil when no row exists for the key.
	GetDailySummary(ctx context.Context, tenantID, deviceID string, date time.Time) (*DailyDeviceSummary, error)
}
