package auth

// Known OAuth scopes used by the telemetry backend.
const (
	ScopeTelemetryIngest = "telemetry:ingest"
	ScopeTelemetryRead   = "telemetry:read"
)
