package domain

// Report category names, matching the agent wire format.
const (
	CategoryBuckets    = "buckets"
	CategoryAppEvents  = "app_events"
	CategoryWebEvents  = "web_events"
	CategoryFileEvents = "file_events"
	CategoryUsbEvents  = "usb_events"
)

// BatchReport maps category name to accepted and rejected counts for one
// ingestion call. Categories with zero counts are omitted so an empty batch
// yields two empty maps.
type BatchReport struct {
	Processed map[string]int `json:"processed"`
	Rejected  map[string]int `json:"rejected"`
}

// NewBatchReport returns a report with initialized (empty) maps.
func NewBatchReport() *BatchReport {
	return &BatchReport{
		Processed: make(map[string]int),
		Rejected:  make(map[string]int),
	}
}

// Accept adds n accepted items for the category; n <= 0 is a no-op.
func (r *BatchReport) Accept(category string, n int) {
	if n <= 0 {
		return
	}
	r.Processed[category] += n
}

// Reject adds n rejected (duplicate or invalid) items; n <= 0 is a no-op.
func (r *BatchReport) Reject(category string, n int) {
	if n <= 0 {
		return
	}
	r.Rejected[category] += n
}
