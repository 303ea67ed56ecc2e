// Package api exposes HTTP handlers for the telemetry service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/telemetry/internal/auth"
	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/ingest"
)

// Handler coordinates HTTP requests with ingestion and the read stores.
type Handler struct {
	ingest    *ingest.Service
	risks     domain.RiskStore
	summaries domain.SummaryReader
}

// NewHandler builds a Handler.
func NewHandler(svc *ingest.Service, risks domain.RiskStore, summaries domain.SummaryReader) *Handler {
	return &Handler{ingest: svc, risks: risks, summaries: summaries}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/telemetry/batch", h.ingestBatch)
	mux.HandleFunc("/v1/risks", h.listRisks)
	mux.HandleFunc("/v1/summaries/daily", h.dailySummary)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTelemetryIngest) {
		writeError(w, http.StatusForbidden, "forbidden", "scope telemetry:ingest required")
		return
	}

	deviceID := strings.TrimSpace(r.Header.Get("X-Device-ID"))
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing X-Device-ID header")
		return
	}

	var batch domain.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	report, err := h.ingest.ProcessBatch(r.Context(), deviceID, &batch)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "not_found", "device not found")
		case errors.Is(err, domain.ErrInvalidBatch):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) listRisks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTelemetryRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope telemetry:read required")
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if strings.TrimSpace(deviceID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing device_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	risks, err := h.risks.ListRiskEvents(r.Context(), claims.TenantID, deviceID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]RiskView, 0, len(risks))
	for _, ev := range risks {
		items = append(items, toRiskView(ev))
	}
	writeJSON(w, http.StatusOK, ListRisksResponse{Items: items})
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeTelemetryRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope telemetry:read required")
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if strings.TrimSpace(deviceID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing device_id parameter")
		return
	}

	date, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	summary, err := h.summaries.GetDailySummary(r.Context(), claims.TenantID, deviceID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "not_found", "no summary for device and date")
		return
	}

	writeJSON(w, http.StatusOK, toSummaryView(*summary))
}

// RiskView exposes a risk finding to dashboards.
type RiskView struct {
	RiskID        string          `json:"risk_id"`
	DeviceID      string          `json:"device_id"`
	Type          string          `json:"type"`
	Severity      string          `json:"severity"`
	WindowStartMs int64           `json:"window_start_ms"`
	WindowEndMs   int64           `json:"window_end_ms"`
	Status        string          `json:"status"`
	Evidence      json.RawMessage `json:"evidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListRisksResponse packages list results.
type ListRisksResponse struct {
	Items []RiskView `json:"items"`
}

// DailySummaryView exposes one device-day rollup.
type DailySummaryView struct {
	DeviceID      string          `json:"device_id"`
	Date          string          `json:"date"`
	ActiveSeconds int             `json:"active_seconds"`
	IdleSeconds   int             `json:"idle_seconds"`
	TopApps       json.RawMessage `json:"top_apps"`
	TopDomains    json.RawMessage `json:"top_domains"`
	RiskCounters  json.RawMessage `json:"risk_counters"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toRiskView(ev domain.RiskEvent) RiskView {
	return RiskView{
		RiskID:        ev.ID,
		DeviceID:      ev.DeviceID,
		Type:          ev.Type,
		Severity:      ev.Severity,
		WindowStartMs: ev.WindowStartMs,
		WindowEndMs:   ev.WindowEndMs,
		Status:        ev.Status,
		Evidence:      ev.Evidence,
		CreatedAt:     ev.CreatedAt,
	}
}

func toSummaryView(s domain.DailyDeviceSummary) DailySummaryView {
	return DailySummaryView{
		DeviceID:      s.DeviceID,
		Date:          s.Date.Format("2006-01-02"),
		ActiveSeconds: s.ActiveSeconds,
		IdleSeconds:   s.IdleSeconds,
		TopApps:       s.TopApps,
		TopDomains:    s.TopDomains,
		RiskCounters:  s.RiskCounters,
		UpdatedAt:     s.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
