package domain

import (
	"encoding/json"
	"time"
)

// Risk event statuses. OPEN is the only state this service creates; operator
// workflows transition findings afterwards.
const (
	RiskStatusOpen = "OPEN"
)

// Risk severities.
const (
	RiskSeverityHigh   = "HIGH"
	RiskSeverityMedium = "MEDIUM"
	RiskSeverityLow    = "LOW"
)

// RiskEvent is a detected anomaly. The (tenant, org, device, type, dedup_key)
// tuple is unique: the dedup key, not the row id, prevents alert storms when
// rules re-run over overlapping windows.
type RiskEvent struct {
	ID            string
	TenantID      string
	OrgID         string
	DeviceID      string
	Type          string
	Severity      string
	WindowStartMs int64
	WindowEndMs   int64
	DedupKey      string
	Status        string
	Evidence      json.RawMessage
	CreatedAt     time.Time
}
