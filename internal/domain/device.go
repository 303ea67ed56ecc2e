package domain

import "time"

// Device statuses maintained by ingestion. Enrollment owns the full lifecycle;
// this service only ever moves a device towards ONLINE.
const (
	DeviceStatusOnline  = "ONLINE"
	DeviceStatusOffline = "OFFLINE"
	DeviceStatusActive  = "ACTIVE"
)

// Device is the enrolled endpoint a batch belongs to. Rows are created by the
// enrollment service; ingestion only mutates liveness fields.
type Device struct {
	DeviceID     string
	TenantID     string
	OrgID        string
	Name         string
	Status       string
	AgentVersion string
	EnrolledAt   time.Time
	LastSeenAt   *time.Time
	LastUploadAt *time.Time
}
