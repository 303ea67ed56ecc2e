// Package events defines the payloads published to Kafka via the outbox.
package events

import "time"

// RiskFlagged is emitted when the rule engine persists a new finding.
type RiskFlagged struct {
	RiskID        string    `json:"risk_id"`
	TenantID      string    `json:"tenant_id"`
	OrgID         string    `json:"org_id"`
	DeviceID      string    `json:"device_id"`
	Type          string    `json:"type"`
	Severity      string    `json:"severity"`
	WindowStartMs int64     `json:"window_start_ms"`
	WindowEndMs   int64     `json:"window_end_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// BatchRecorded is the provenance event emitted once per accepted ingestion
// call, carrying the per-category counts from the batch report.
type BatchRecorded struct {
	BatchID    string         `json:"batch_id"`
	TenantID   string         `json:"tenant_id"`
	OrgID      string         `json:"org_id"`
	DeviceID   string         `json:"device_id"`
	Processed  map[string]int `json:"processed"`
	Rejected   map[string]int `json:"rejected"`
	RecordedAt time.Time      `json:"recorded_at"`
}
