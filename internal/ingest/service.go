package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/observability"
	"example.com/telemetry/internal/risk"
)

// RiskChecker evaluates the sliding-window rules for a device. The outcome is
// advisory: ProcessBatch logs and discards it so risk evaluation can never
// fail an otherwise accepted batch.
type RiskChecker interface {
	Check(ctx context.Context, device *domain.Device, windowEnd time.Time) risk.Outcome
}

// Service coordinates one ingestion call end to end.
type Service struct {
	devices domain.DeviceRepository
	repo    domain.TelemetryRepository
	risk    RiskChecker
	logger  *log.Logger
	now     func() time.Time
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger used for data-quality and degradation signals.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the processing-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(devices domain.DeviceRepository, repo domain.TelemetryRepository, checker RiskChecker, opts ...Option) *Service {
	s := &Service{
		devices: devices,
		repo:    repo,
		risk:    checker,
		logger:  log.New(log.Writer(), "[ingest] ", log.LstdFlags),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessBatch records one device's batch exactly once and returns the
// per-category accept/reject report. All storage writes commit or roll back
// as a unit; risk evaluation runs after commit and is best-effort.
func (s *Service) ProcessBatch(ctx context.Context, deviceID string, batch *domain.Batch) (*domain.BatchReport, error) {
	started := time.Now()

	if batch == nil {
		observability.RecordBatch("invalid", time.Since(started))
		return nil, fmt.Errorf("%w: batch payload is required", domain.ErrInvalidBatch)
	}

	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		observability.RecordBatch("failed", time.Since(started))
		return nil, err
	}
	if device == nil {
		observability.RecordBatch("unknown_device", time.Since(started))
		return nil, fmt.Errorf("%w: %s", domain.ErrDeviceNotFound, deviceID)
	}

	// Provenance id stamped on every row this call writes. Not a dedup key.
	batchID := uuid.NewString()
	now := s.now().UTC()
	report := domain.NewBatchReport()

	err = s.repo.WithBatch(ctx, device.TenantID, func(store domain.BatchStore) error {
		if err := s.recordLiveness(ctx, store, device, batch.Heartbeat, batchID, now); err != nil {
			return err
		}

		acceptedBuckets, err := s.ingestBuckets(ctx, store, device, batch.ActivityBuckets, batchID, now, report)
		if err != nil {
			return err
		}

		if err := runCategory(ctx, s.appCategory(store, device, batchID, now), batch.AppEvents, report); err != nil {
			return err
		}
		if err := runCategory(ctx, s.webCategory(store, device, batchID, now), batch.WebEvents, report); err != nil {
			return err
		}
		if err := runCategory(ctx, s.fileCategory(store, device, batchID, now), batch.FileEvents, report); err != nil {
			return err
		}
		if err := runCategory(ctx, s.usbCategory(store, device, batchID, now), batch.UsbEvents, report); err != nil {
			return err
		}

		s.foldDailySummaries(ctx, store, device, acceptedBuckets)

		return store.RecordBatchOutbox(ctx, device, batchID, report)
	})
	if err != nil {
		observability.RecordBatch("failed", time.Since(started))
		return nil, err
	}

	outcome := s.risk.Check(ctx, device, now)
	if outcome.Err != nil {
		s.logger.Printf("risk evaluation failed (device=%s): %v", device.DeviceID, outcome.Err)
		observability.RecordRiskFailure()
	}

	observability.RecordBatch("accepted", time.Since(started))
	return report, nil
}

// recordLiveness applies the heartbeat when present, otherwise bumps liveness
// as an implicit heartbeat. Either way the device reads as ONLINE afterwards.
func (s *Service) recordLiveness(ctx context.Context, store domain.BatchStore, device *domain.Device, hb *domain.HeartbeatPayload, batchID string, now time.Time) error {
	if hb == nil {
		return store.TouchDevice(ctx, device.DeviceID, now)
	}
	return store.RecordHeartbeat(ctx, domain.DeviceHeartbeat{
		ID:               uuid.NewString(),
		TenantID:         device.TenantID,
		OrgID:            device.OrgID,
		DeviceID:         device.DeviceID,
		Ts:               now,
		Status:           hb.Status,
		AgentVersion:     hb.AgentVersion,
		QueueDepth:       hb.QueueDepth,
		UploadErrorCount: hb.UploadErrorCount,
		IngestBatchID:    batchID,
	})
}

// ingestBuckets deduplicates buckets by natural key at the storage layer and
// returns the subset that was actually stored, which feeds daily aggregation.
func (s *Service) ingestBuckets(ctx context.Context, store domain.BatchStore, device *domain.Device, payloads []domain.BucketPayload, batchID string, now time.Time, report *domain.BatchReport) ([]domain.ActivityBucket, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	buckets := make([]domain.ActivityBucket, 0, len(payloads))
	for _, p := range payloads {
		minutes := p.BucketMinutes
		if minutes <= 0 {
			minutes = 5
		}
		buckets = append(buckets, domain.ActivityBucket{
			ID:            uuid.NewString(),
			TenantID:      device.TenantID,
			OrgID:         device.OrgID,
			DeviceID:      device.DeviceID,
			BucketStart:   s.parseTimestamp(p.BucketStart, now, device.DeviceID),
			BucketMinutes: minutes,
			ActiveSeconds: p.ActiveSeconds,
			IdleSeconds:   p.IdleSeconds,
			AvgFocusScore: p.AvgFocusScore,
			IngestBatchID: batchID,
		})
	}

	accepted, err := store.InsertActivityBuckets(ctx, buckets)
	if err != nil {
		return nil, err
	}

	rejected := len(buckets) - len(accepted)
	report.Accept(domain.CategoryBuckets, len(accepted))
	report.Reject(domain.CategoryBuckets, rejected)
	observability.RecordEvents(domain.CategoryBuckets, len(accepted), rejected)
	return accepted, nil
}

// foldDailySummaries groups this call's accepted buckets by UTC calendar date
// and folds each day into the running summary. A failed date is logged and
// skipped; remaining dates still land.
func (s *Service) foldDailySummaries(ctx context.Context, store domain.BatchStore, device *domain.Device, buckets []domain.ActivityBucket) {
	type dayTotals struct {
		active int
		idle   int
	}

	days := make(map[time.Time]*dayTotals)
	for _, b := range buckets {
		day := b.BucketStart.UTC().Truncate(24 * time.Hour)
		totals, ok := days[day]
		if !ok {
			totals = &dayTotals{}
			days[day] = totals
		}
		totals.active += b.ActiveSeconds
		totals.idle += b.IdleSeconds
	}

	for day, totals := range days {
		err := store.UpsertDailySummary(ctx, domain.DailySummaryDelta{
			TenantID:      device.TenantID,
			OrgID:         device.OrgID,
			DeviceID:      device.DeviceID,
			Date:          day,
			ActiveSeconds: totals.active,
			IdleSeconds:   totals.idle,
		})
		if err != nil {
			s.logger.Printf("daily summary update failed (device=%s date=%s): %v", device.DeviceID, day.Format("2006-01-02"), err)
		}
	}
}

func (s *Service) appCategory(store domain.BatchStore, device *domain.Device, batchID string, now time.Time) eventCategory[domain.AppEventPayload, domain.AppUsageEvent] {
	return eventCategory[domain.AppEventPayload, domain.AppUsageEvent]{
		name: domain.CategoryAppEvents,
		convert: func(p domain.AppEventPayload) (domain.AppUsageEvent, bool) {
			if !validEventID(p.ID) {
				return domain.AppUsageEvent{}, false
			}
			return domain.AppUsageEvent{
				ID:            p.ID,
				TenantID:      device.TenantID,
				OrgID:         device.OrgID,
				DeviceID:      device.DeviceID,
				TsStart:       s.parseTimestamp(p.TsStart, now, device.DeviceID),
				TsEnd:         s.parseTimestamp(p.TsEnd, now, device.DeviceID),
				AppName:       p.AppName,
				ProcessName:   p.ProcessName,
				IngestBatchID: batchID,
			}, true
		},
		insert: store.InsertAppEvents,
	}
}

func (s *Service) webCategory(store domain.BatchStore, device *domain.Device, batchID string, now time.Time) eventCategory[domain.WebEventPayload, domain.WebUsageEvent] {
	return eventCategory[domain.WebEventPayload, domain.WebUsageEvent]{
		name: domain.CategoryWebEvents,
		convert: func(p domain.WebEventPayload) (domain.WebUsageEvent, bool) {
			if !validEventID(p.ID) {
				return domain.WebUsageEvent{}, false
			}
			return domain.WebUsageEvent{
				ID:            p.ID,
				TenantID:      device.TenantID,
				OrgID:         device.OrgID,
				DeviceID:      device.DeviceID,
				TsStart:       s.parseTimestamp(p.TsStart, now, device.DeviceID),
				TsEnd:         s.parseTimestamp(p.TsEnd, now, device.DeviceID),
				Domain:        p.Domain,
				IngestBatchID: batchID,
			}, true
		},
		insert: store.InsertWebEvents,
	}
}

func (s *Service) fileCategory(store domain.BatchStore, device *domain.Device, batchID string, now time.Time) eventCategory[domain.FileEventPayload, domain.FileEvent] {
	return eventCategory[domain.FileEventPayload, domain.FileEvent]{
		name: domain.CategoryFileEvents,
		convert: func(p domain.FileEventPayload) (domain.FileEvent, bool) {
			if !validEventID(p.ID) {
				return domain.FileEvent{}, false
			}
			ts := s.parseTimestamp(p.Timestamp, now, device.DeviceID)
			return domain.FileEvent{
				ID:            p.ID,
				TenantID:      device.TenantID,
				OrgID:         device.OrgID,
				DeviceID:      device.DeviceID,
				Ts:            ts,
				TsMs:          ts.UnixMilli(),
				Operation:     strings.ToUpper(strings.TrimSpace(p.Operation)),
				PathHash:      HashPath(p.FilePath),
				DestPathHash:  HashPath(p.DestPath),
				FileExt:       fileExt(p.FileName),
				SizeBytes:     p.SizeBytes,
				IsUsb:         p.IsUsb,
				IsExternal:    p.IsExternal,
				IngestBatchID: batchID,
			}, true
		},
		insert: store.InsertFileEvents,
	}
}

// usbCategory appends unconditionally: the agent protocol carries no id for
// USB events, so replayed batches insert duplicate rows.
func (s *Service) usbCategory(store domain.BatchStore, device *domain.Device, batchID string, now time.Time) eventCategory[domain.UsbEventPayload, domain.UsbEvent] {
	return eventCategory[domain.UsbEventPayload, domain.UsbEvent]{
		name: domain.CategoryUsbEvents,
		convert: func(p domain.UsbEventPayload) (domain.UsbEvent, bool) {
			tsMs := p.TsMs
			if tsMs <= 0 {
				tsMs = now.UnixMilli()
			}
			return domain.UsbEvent{
				ID:            uuid.NewString(),
				TenantID:      device.TenantID,
				OrgID:         device.OrgID,
				DeviceID:      device.DeviceID,
				TsMs:          tsMs,
				Action:        strings.ToUpper(strings.TrimSpace(p.Action)),
				DriveLetter:   p.DriveLetter,
				VendorID:      p.VendorID,
				ProductID:     p.ProductID,
				VolumeSerial:  p.VolumeSerial,
				IngestBatchID: batchID,
			}, true
		},
		insert: store.InsertUsbEvents,
	}
}

func (s *Service) parseTimestamp(raw string, now time.Time, deviceID string) time.Time {
	ts, ok := ParseAgentTimestamp(raw, now)
	if !ok {
		s.logger.Printf("unparseable timestamp %q from device %s, substituting processing time", raw, deviceID)
		observability.RecordTimestampFallback()
	}
	return ts
}

func validEventID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
