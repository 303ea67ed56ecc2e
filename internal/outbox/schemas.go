package outbox

const riskFlaggedSchema = `{
  "type": "object",
  "title": "RiskFlagged",
  "properties": {
    "risk_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "org_id": {"type": "string"},
    "device_id": {"type": "string"},
    "type": {"type": "string"},
    "severity": {"type": "string"},
    "window_start_ms": {"type": "integer"},
    "window_end_ms": {"type": "integer"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["risk_id", "tenant_id", "org_id", "device_id", "type", "severity", "window_start_ms", "window_end_ms", "created_at"],
  "additionalProperties": false
}`

const batchRecordedSchema = `{
  "type": "object",
  "title": "BatchRecorded",
  "properties": {
    "batch_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "org_id": {"type": "string"},
    "device_id": {"type": "string"},
    "processed": {"type": "object", "additionalProperties": {"type": "integer"}},
    "rejected": {"type": "object", "additionalProperties": {"type": "integer"}},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["batch_id", "tenant_id", "org_id", "device_id", "processed", "rejected", "recorded_at"],
  "additionalProperties": false
}`
