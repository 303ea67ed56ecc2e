package domain

// Batch is one upload from one device: zero or more event categories plus an
// optional heartbeat. Field names follow the agent wire format.
type Batch struct {
	SchemaVersion   string             `json:"schemaVersion"`
	Heartbeat       *HeartbeatPayload  `json:"heartbeat,omitempty"`
	ActivityBuckets []BucketPayload    `json:"activity_buckets"`
	AppEvents       []AppEventPayload  `json:"app_events"`
	WebEvents       []WebEventPayload  `json:"web_events"`
	FileEvents      []FileEventPayload `json:"file_events"`
	UsbEvents       []UsbEventPayload  `json:"usb_events"`
}

// HeartbeatPayload reports agent health alongside a batch.
type HeartbeatPayload struct {
	Status           string `json:"status"`
	AgentVersion     string `json:"agentVersion"`
	QueueDepth       int    `json:"queueDepth"`
	UploadErrorCount int    `json:"uploadErrorCount"`
}

// BucketPayload is an activity bucket as uploaded. Timestamps arrive as
// strings in mixed encodings and are normalized at ingest.
type BucketPayload struct {
	BucketStart   string `json:"bucket_start"`
	BucketMinutes int    `json:"bucket_minutes"`
	ActiveSeconds int    `json:"active_seconds"`
	IdleSeconds   int    `json:"idle_seconds"`
	AvgFocusScore int    `json:"avg_focus_score"`
}

// AppEventPayload is an application-usage span with a client-generated id.
type AppEventPayload struct {
	ID          string `json:"id"`
	TsStart     string `json:"ts_start"`
	TsEnd       string `json:"ts_end"`
	AppName     string `json:"app_name"`
	ProcessName string `json:"process_name"`
}

// WebEventPayload is a web-usage span with a client-generated id.
type WebEventPayload struct {
	ID      string `json:"id"`
	TsStart string `json:"ts_start"`
	TsEnd   string `json:"ts_end"`
	Domain  string `json:"domain"`
}

// FileEventPayload is a file-system operation. The raw path is hashed before
// anything is written.
type FileEventPayload struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Operation  string `json:"operation"`
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	SizeBytes  int64  `json:"size_bytes"`
	IsUsb      bool   `json:"is_usb"`
	IsExternal bool   `json:"is_external"`
	DestPath   string `json:"dest_path,omitempty"`
}

// UsbEventPayload is a USB attach/detach record. No client id exists for
// these in the agent protocol.
type UsbEventPayload struct {
	TsMs         int64  `json:"ts_ms"`
	Action       string `json:"action"`
	DriveLetter  string `json:"drive_letter"`
	VendorID     string `json:"vendor_id"`
	ProductID    string `json:"product_id"`
	VolumeSerial string `json:"volume_serial"`
}
