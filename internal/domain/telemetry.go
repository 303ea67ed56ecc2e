// Package domain defines the telemetry entities and storage contracts shared
// by ingestion, risk evaluation, and the read API.
package domain

import "time"

// ActivityBucket is a fixed-width activity window reported by an agent.
// Natural key: (device_id, bucket_start, bucket_minutes). Duplicates are
// rejected at the storage layer, never overwritten.
type ActivityBucket struct {
	ID            string
	TenantID      string
	OrgID         string
	DeviceID      string
	BucketStart   time.Time
	BucketMinutes int
	ActiveSeconds int
	IdleSeconds   int
	AvgFocusScore int
	IngestBatchID string
}

// AppUsageEvent is a foreground-application span keyed by a client-supplied id.
type AppUsageEvent struct {
	ID            string
	TenantID      string
	OrgID         string
	DeviceID      string
	TsStart       time.Time
	TsEnd         time.Time
	AppName       string
	ProcessName   string
	IngestBatchID string
}

// WebUsageEvent is a browsing span keyed by a client-supplied id.
type WebUsageEvent struct {
	ID            string
	TenantID      string
	OrgID         string
	DeviceID      string
	TsStart       time.Time
	TsEnd         time.Time
	Domain        string
	IngestBatchID string
}

// File operations the agents report.
const (
	FileOpCreate = "CREATE"
	FileOpCopy   = "COPY"
	FileOpModify = "MODIFY"
	FileOpDelete = "DELETE"
	FileOpRename = "RENAME"
)

// FileEvent is a file-system operation. Raw paths never persist: only the
// SHA-256 path hash is stored.
type FileEvent struct {
	ID            string
	TenantID      string
	OrgID         string
	DeviceID      string
	Ts            time.Time
	TsMs          int64
	Operation     string
	PathHash      string
	DestPathHash  string
	FileExt       string
	SizeBytes     int64
	IsUsb         bool
	IsExternal    bool
	IngestBatchID string
}

// USB actions.
const (
	UsbActionInsert = "INSERT"
	UsbActionRemove = "REMOVE"
)

// UsbEvent is an append-only USB attach/detach record. The source data carries
// no client id for these, so retried batches may insert duplicates.
type UsbEvent struct {
	ID            string
	TenantID      string
	OrgID         string
	DeviceID      string
	TsMs          int64
	Action        string
	DriveLetter   string
	VendorID      string
	ProductID     string
	VolumeSerial  string
	IngestBatchID string
}

// DeviceHeartbeat is an append-only liveness record; every heartbeat is kept.
type DeviceHeartbeat struct {
	ID               string
	TenantID         string
	OrgID            string
	DeviceID         string
	Ts               time.Time
	Status           string
	AgentVersion     string
	QueueDepth       int
	UploadErrorCount int
	IngestBatchID    string
}

// DailySummaryDelta carries one day's worth of newly accepted activity to fold
// into the per-device daily summary.
type DailySummaryDelta struct {
	TenantID      string
	OrgID         string
	DeviceID      string
	Date          time.Time // UTC midnight
	ActiveSeconds int
	IdleSeconds   int
}

// DailyDeviceSummary is the accumulated per-device-per-day rollup read by
// dashboards. Counters only ever increase.
type DailyDeviceSummary struct {
	TenantID      string
	OrgID         string
	DeviceID      string
	Date          time.Time
	ActiveSeconds int
	IdleSeconds   int
	TopApps       []byte // jsonb, defaults to []
	TopDomains    []byte // jsonb, defaults to []
	RiskCounters  []byte // jsonb, defaults to {}
	UpdatedAt     time.Time
}
