// Package risk evaluates sliding-window rules against recently ingested
// telemetry and persists deduplicated findings.
package risk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/observability"
)

// Risk rule types as persisted on findings.
const (
	TypeUsbExfil         = "R1_USB_EXFIL"
	TypeMassDeleteRename = "R2_MASS_DELETE_RENAME"
)

const (
	usbExfilWindow   = 10 * time.Minute
	massDeleteWindow = 5 * time.Minute

	// More than this many DELETE/RENAME operations inside the window fires R2.
	massDeleteThreshold = 30

	// R2 dedup buckets: one alert per device per 5-minute wall-clock bucket.
	massDeleteBucketMs = int64(5 * time.Minute / time.Millisecond)
)

// Outcome reports what one evaluation did. The ingestion coordinator logs and
// discards it; rule failures never propagate into the batch result.
type Outcome struct {
	Created int
	Err     error
}

// Engine runs the rules against a device's recent events. Rules are
// independent and idempotent: the dedup key is the only mechanism preventing
// duplicate alerts across overlapping windows, so re-running is always safe.
type Engine struct {
	store  domain.RiskStore
	logger *log.Logger
}

// NewEngine constructs an Engine.
func NewEngine(store domain.RiskStore, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[risk] ", log.LstdFlags)
	}
	return &Engine{store: store, logger: logger}
}

// Check evaluates every rule with the window ending at windowEnd.
func (e *Engine) Check(ctx context.Context, device *domain.Device, windowEnd time.Time) Outcome {
	endMs := windowEnd.UnixMilli()

	usbCreated, usbErr := e.checkUsbExfil(ctx, device, endMs)
	massCreated, massErr := e.checkMassDelete(ctx, device, endMs)

	return Outcome{
		Created: usbCreated + massCreated,
		Err:     errors.Join(usbErr, massErr),
	}
}

// checkUsbExfil fires when a USB insert coincides with external-media file
// copies or modifications inside the trailing window. Keying the dedup on the
// USB event id means one alert per physical insertion, however many
// overlapping windows observe it.
func (e *Engine) checkUsbExfil(ctx context.Context, device *domain.Device, endMs int64) (int, error) {
	startMs := endMs - usbExfilWindow.Milliseconds()

	inserts, err := e.store.RecentUsbInserts(ctx, device, startMs)
	if err != nil {
		return 0, fmt.Errorf("usb exfil rule: %w", err)
	}
	if len(inserts) == 0 {
		return 0, nil
	}

	files, err := e.store.RecentExternalFileOps(ctx, device, startMs)
	if err != nil {
		return 0, fmt.Errorf("usb exfil rule: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}

	fileIDs := make([]string, len(files))
	for i, f := range files {
		fileIDs[i] = f.ID
	}

	created := 0
	for _, usb := range inserts {
		dedupKey := DedupKey("R1", device.DeviceID, usb.ID)

		exists, err := e.store.RiskExists(ctx, device, TypeUsbExfil, dedupKey)
		if err != nil {
			return created, fmt.Errorf("usb exfil rule: %w", err)
		}
		if exists {
			continue
		}

		evidence, err := json.Marshal(map[string]any{
			"rule":           TypeUsbExfil,
			"usb_event_id":   usb.ID,
			"drive_letter":   usb.DriveLetter,
			"file_event_ids": fileIDs,
			"file_count":     len(files),
		})
		if err != nil {
			return created, fmt.Errorf("usb exfil rule: %w", err)
		}

		inserted, err := e.store.CreateRiskEvent(ctx, domain.RiskEvent{
			ID:            uuid.NewString(),
			TenantID:      device.TenantID,
			OrgID:         device.OrgID,
			DeviceID:      device.DeviceID,
			Type:          TypeUsbExfil,
			Severity:      domain.RiskSeverityHigh,
			WindowStartMs: startMs,
			WindowEndMs:   endMs,
			DedupKey:      dedupKey,
			Status:        domain.RiskStatusOpen,
			Evidence:      evidence,
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			return created, fmt.Errorf("usb exfil rule: %w", err)
		}
		if inserted {
			created++
			observability.RecordRiskCreated(TypeUsbExfil)
		}
	}
	return created, nil
}

// checkMassDelete fires when destructive file operations inside the trailing
// window exceed the threshold. The dedup key derives from the 5-minute
// wall-clock bucket, so the rule can run any number of times inside a bucket
// and still alert at most once per device.
func (e *Engine) checkMassDelete(ctx context.Context, device *domain.Device, endMs int64) (int, error) {
	startMs := endMs - massDeleteWindow.Milliseconds()

	count, err := e.store.CountDestructiveFileOps(ctx, device, startMs)
	if err != nil {
		return 0, fmt.Errorf("mass delete rule: %w", err)
	}
	if count <= massDeleteThreshold {
		return 0, nil
	}

	bucket := endMs / massDeleteBucketMs
	dedupKey := DedupKey("R2", device.DeviceID, strconv.FormatInt(bucket, 10))

	exists, err := e.store.RiskExists(ctx, device, TypeMassDeleteRename, dedupKey)
	if err != nil {
		return 0, fmt.Errorf("mass delete rule: %w", err)
	}
	if exists {
		return 0, nil
	}

	evidence, err := json.Marshal(map[string]any{
		"rule":      TypeMassDeleteRename,
		"count":     count,
		"threshold": massDeleteThreshold,
	})
	if err != nil {
		return 0, fmt.Errorf("mass delete rule: %w", err)
	}

	inserted, err := e.store.CreateRiskEvent(ctx, domain.RiskEvent{
		ID:            uuid.NewString(),
		TenantID:      device.TenantID,
		OrgID:         device.OrgID,
		DeviceID:      device.DeviceID,
		Type:          TypeMassDeleteRename,
		Severity:      domain.RiskSeverityHigh,
		WindowStartMs: startMs,
		WindowEndMs:   endMs,
		DedupKey:      dedupKey,
		Status:        domain.RiskStatusOpen,
		Evidence:      evidence,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("mass delete rule: %w", err)
	}
	if !inserted {
		return 0, nil
	}
	observability.RecordRiskCreated(TypeMassDeleteRename)
	return 1, nil
}

// DedupKey derives the deterministic alert-dedup digest for a rule firing.
func DedupKey(rule, deviceID, discriminator string) string {
	sum := sha256.Sum256([]byte(rule + ":" + deviceID + ":" + discriminator))
	return hex.EncodeToString(sum[:])
}
