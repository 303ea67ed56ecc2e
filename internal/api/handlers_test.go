package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/telemetry/internal/auth"
	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/ingest"
	"example.com/telemetry/internal/risk"
)

const (
	testDeviceID = "7d4cbb3e-4f43-4f7a-8a1e-0c2de4fb3a01"
	testTenantID = "1f0a6a4e-9f57-4f0f-b9d1-53f4a713a702"
	testOrgID    = "3b9c9a44-52d4-41a4-a16e-2a2c06e0f901"
)

func TestIngestBatchSuccess(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	body := `{
        "schemaVersion": "1.0",
        "activity_buckets": [
            {"bucket_start": "2025-03-10T09:00:00Z", "bucket_minutes": 5, "active_seconds": 300}
        ]
    }`

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/batch", strings.NewReader(body))
	req.Header.Set("X-Device-ID", testDeviceID)
	req = withScopes(req, auth.ScopeTelemetryIngest)

	rr := httptest.NewRecorder()
	handler.ingestBatch(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp domain.BatchReport
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Processed["buckets"] != 1 {
		t.Fatalf("expected 1 processed bucket got %d", resp.Processed["buckets"])
	}
	if len(resp.Rejected) != 0 {
		t.Fatalf("expected empty rejected map got %v", resp.Rejected)
	}
}

func TestIngestBatchUnknownDevice(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/batch", strings.NewReader(`{}`))
	req.Header.Set("X-Device-ID", "b7f7dd5e-0000-4000-8000-000000000000")
	req = withScopes(req, auth.ScopeTelemetryIngest)

	rr := httptest.NewRecorder()
	handler.ingestBatch(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestIngestBatchMissingDeviceHeader(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/batch", strings.NewReader(`{}`))
	req = withScopes(req, auth.ScopeTelemetryIngest)

	rr := httptest.NewRecorder()
	handler.ingestBatch(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestIngestBatchRequiresIngestScope(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/batch", strings.NewReader(`{}`))
	req.Header.Set("X-Device-ID", testDeviceID)
	req = withScopes(req, auth.ScopeTelemetryRead)

	rr := httptest.NewRecorder()
	handler.ingestBatch(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestIngestBatchRejectsMalformedBody(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/batch", strings.NewReader(`{not json`))
	req.Header.Set("X-Device-ID", testDeviceID)
	req = withScopes(req, auth.ScopeTelemetryIngest)

	rr := httptest.NewRecorder()
	handler.ingestBatch(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestListRisksSuccess(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	stores := &stubStores{
		risks: []domain.RiskEvent{
			{
				ID:        "risk-1",
				TenantID:  testTenantID,
				DeviceID:  testDeviceID,
				Type:      risk.TypeUsbExfil,
				Severity:  domain.RiskSeverityHigh,
				Status:    domain.RiskStatusOpen,
				Evidence:  json.RawMessage(`{"file_count":2}`),
				CreatedAt: created,
			},
		},
	}
	handler := newTestHandler(stores)

	req := httptest.NewRequest(http.MethodGet, "/v1/risks?device_id="+testDeviceID, nil)
	req = withScopes(req, auth.ScopeTelemetryRead)

	rr := httptest.NewRecorder()
	handler.listRisks(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListRisksResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 risk got %d", len(resp.Items))
	}
	if resp.Items[0].Type != risk.TypeUsbExfil {
		t.Fatalf("unexpected risk type %s", resp.Items[0].Type)
	}
	if stores.listTenant != testTenantID {
		t.Fatalf("expected tenant scoping, got %q", stores.listTenant)
	}
}

func TestListRisksRequiresDeviceID(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	req := httptest.NewRequest(http.MethodGet, "/v1/risks", nil)
	req = withScopes(req, auth.ScopeTelemetryRead)

	rr := httptest.NewRecorder()
	handler.listRisks(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestDailySummarySuccess(t *testing.T) {
	stores := &stubStores{
		summary: &domain.DailyDeviceSummary{
			TenantID:      testTenantID,
			OrgID:         testOrgID,
			DeviceID:      testDeviceID,
			Date:          time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			ActiveSeconds: 600,
			IdleSeconds:   60,
			TopApps:       []byte(`[]`),
			TopDomains:    []byte(`[]`),
			RiskCounters:  []byte(`{}`),
			UpdatedAt:     time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		},
	}
	handler := newTestHandler(stores)

	req := httptest.NewRequest(http.MethodGet, "/v1/summaries/daily?device_id="+testDeviceID+"&date=2025-03-10", nil)
	req = withScopes(req, auth.ScopeTelemetryRead)

	rr := httptest.NewRecorder()
	handler.dailySummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp DailySummaryView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ActiveSeconds != 600 {
		t.Fatalf("expected 600 active seconds got %d", resp.ActiveSeconds)
	}
	if resp.Date != "2025-03-10" {
		t.Fatalf("unexpected date %s", resp.Date)
	}
}

func TestDailySummaryNotFound(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	req := httptest.NewRequest(http.MethodGet, "/v1/summaries/daily?device_id="+testDeviceID+"&date=2025-03-10", nil)
	req = withScopes(req, auth.ScopeTelemetryRead)

	rr := httptest.NewRecorder()
	handler.dailySummary(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestDailySummaryValidatesDate(t *testing.T) {
	handler := newTestHandler(&stubStores{})

	req := httptest.NewRequest(http.MethodGet, "/v1/summaries/daily?device_id="+testDeviceID+"&date=March-10", nil)
	req = withScopes(req, auth.ScopeTelemetryRead)

	rr := httptest.NewRecorder()
	handler.dailySummary(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func newTestHandler(stores *stubStores) *Handler {
	svc := ingest.NewService(stores, stores, noRisk{},
		ingest.WithLogger(log.New(nopWriter{}, "", 0)),
	)
	return NewHandler(svc, stores, stores)
}

func withScopes(req *http.Request, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "tester",
		TenantID:  testTenantID,
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

type noRisk struct{}

func (noRisk) Check(context.Context, *domain.Device, time.Time) risk.Outcome {
	return risk.Outcome{}
}

// stubStores implements the device, batch, risk, and summary contracts with
// fixed data so handler behaviour can be driven directly.
type stubStores struct {
	risks      []domain.RiskEvent
	summary    *domain.DailyDeviceSummary
	listTenant string
}

func (s *stubStores) Get(_ context.Context, deviceID string) (*domain.Device, error) {
	if deviceID != testDeviceID {
		return nil, nil
	}
	return &domain.Device{
		DeviceID: testDeviceID,
		TenantID: testTenantID,
		OrgID:    testOrgID,
		Name:     "LAPTOP-01",
		Status:   domain.DeviceStatusOnline,
	}, nil
}

func (s *stubStores) WithBatch(_ context.Context, _ string, fn func(domain.BatchStore) error) error {
	return fn(s)
}

func (s *stubStores) TouchDevice(context.Context, string, time.Time) error { return nil }

func (s *stubStores) RecordHeartbeat(context.Context, domain.DeviceHeartbeat) error { return nil }

func (s *stubStores) InsertActivityBuckets(_ context.Context, buckets []domain.ActivityBucket) ([]domain.ActivityBucket, error) {
	return buckets, nil
}

func (s *stubStores) InsertAppEvents(_ context.Context, evs []domain.AppUsageEvent) (int, error) {
	return len(evs), nil
}

func (s *stubStores) InsertWebEvents(_ context.Context, evs []domain.WebUsageEvent) (int, error) {
	return len(evs), nil
}

func (s *stubStores) InsertFileEvents(_ context.Context, evs []domain.FileEvent) (int, error) {
	return len(evs), nil
}

func (s *stubStores) InsertUsbEvents(_ context.Context, evs []domain.UsbEvent) (int, error) {
	return len(evs), nil
}

func (s *stubStores) UpsertDailySummary(context.Context, domain.DailySummaryDelta) error { return nil }

func (s *stubStores) RecordBatchOutbox(context.Context, *domain.Device, string, *domain.BatchReport) error {
	return nil
}

func (s *stubStores) RecentUsbInserts(context.Context, *domain.Device, int64) ([]domain.UsbEvent, error) {
	return nil, nil
}

func (s *stubStores) RecentExternalFileOps(context.Context, *domain.Device, int64) ([]domain.FileEvent, error) {
	return nil, nil
}

func (s *stubStores) CountDestructiveFileOps(context.Context, *domain.Device, int64) (int64, error) {
	return 0, nil
}

func (s *stubStores) RiskExists(context.Context, *domain.Device, string, string) (bool, error) {
	return false, nil
}

func (s *stubStores) CreateRiskEvent(context.Context, domain.RiskEvent) (bool, error) {
	return false, nil
}

func (s *stubStores) ListRiskEvents(_ context.Context, tenantID, deviceID string, _ int) ([]domain.RiskEvent, error) {
	s.listTenant = tenantID
	out := make([]domain.RiskEvent, 0, len(s.risks))
	for _, ev := range s.risks {
		if ev.DeviceID == deviceID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *stubStores) GetDailySummary(_ context.Context, _, deviceID string, date time.Time) (*domain.DailyDeviceSummary, error) {
	if s.summary != nil && s.summary.DeviceID == deviceID && s.summary.Date.Equal(date) {
		return s.summary, nil
	}
	return nil, nil
}
