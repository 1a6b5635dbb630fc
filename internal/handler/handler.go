package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dctwin/internal/codec"
	"dctwin/internal/core/conflict"
	"dctwin/internal/core/lifecycle"
	"dctwin/internal/domain"
	"dctwin/internal/report"
	"dctwin/internal/service"
)

// UserIDHeader carries the caller's identity. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

// IdempotencyKeyHeader lets clients retry writes safely
const IdempotencyKeyHeader = "Idempotency-Key"

// Handler serves the dctwin REST API
type Handler struct {
	inventory *service.InventoryService
	anomalies *service.AnomalyService
	capacity  *service.CapacityService
	logger    *zap.Logger
}

// New creates a new API handler
func New(inventory *service.InventoryService, anomalies *service.AnomalyService, capacity *service.CapacityService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		inventory: inventory,
		anomalies: anomalies,
		capacity:  capacity,
		logger:    logger,
	}
}

// Register mounts every API route on mux
func (h *Handler) Register(mux *http.ServeMux) {
	// Sites and scenes
	mux.HandleFunc("GET /api/sites", h.ListSites)
	mux.HandleFunc("GET /api/sites/{id}/scene", h.GetScene)
	mux.HandleFunc("POST /api/import/scene", h.ImportScene)
	mux.HandleFunc("GET /api/export/scene/{id}", h.ExportScene)

	// Devices
	mux.HandleFunc("POST /api/devices/{id}/move", h.MoveDevice)
	mux.HandleFunc("DELETE /api/devices/{id}", h.DeleteDevice)
	mux.HandleFunc("GET /api/devices/{id}/history", h.DeviceHistory)
	mux.HandleFunc("POST /api/racks/{id}/placement-check", h.CheckPlacement)

	// Anomalies
	mux.HandleFunc("POST /api/sites/{id}/anomalies/detect", h.DetectAnomalies)
	mux.HandleFunc("POST /api/sites/{id}/anomalies", h.SaveAnomalies)
	mux.HandleFunc("GET /api/sites/{id}/anomalies", h.ListAnomalies)
	mux.HandleFunc("GET /api/sites/{id}/anomalies/export", h.ExportAnomalies)
	mux.HandleFunc("PATCH /api/anomalies/{id}", h.UpdateAnomaly)

	// Capacity
	mux.HandleFunc("GET /api/sites/{id}/capacity", h.FindCapacity)
}

// ErrorResponse is the body of every non-move error
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// MoveBody is the request body of a device move
type MoveBody struct {
	TargetRackID    string     `json:"targetRackId"`
	TargetUPosition int        `json:"targetUPosition"`
	TargetPhase     string     `json:"targetPhase"`
	MoveType        string     `json:"moveType"`
	UserID          string     `json:"userId,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	ScheduledDate   *time.Time `json:"scheduledDate,omitempty"`
	IdempotencyKey  string     `json:"idempotencyKey,omitempty"`
}

// MoveResponse reports a move or delete outcome
type MoveResponse struct {
	Success     bool            `json:"success"`
	Device      *domain.Device  `json:"device,omitempty"`
	NewDevice   *domain.Device  `json:"newDevice,omitempty"`
	ChangeSetID string          `json:"changeSetId,omitempty"`
	Replayed    bool            `json:"replayed,omitempty"`
	Conflicts   []domain.Device `json:"conflicts,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// PlacementBody is the request body of a placement check
type PlacementBody struct {
	UStart          int    `json:"uStart"`
	UHeight         int    `json:"uHeight"`
	Phase           string `json:"phase"`
	ExcludeDeviceID string `json:"excludeDeviceId,omitempty"`
}

// PlacementResponse lists the devices a placement would collide with
type PlacementResponse struct {
	HasConflict bool            `json:"hasConflict"`
	Conflicts   []domain.Device `json:"conflicts"`
}

// SaveBody persists either a previewed anomaly list or the anomalies of a scan
type SaveBody struct {
	Anomalies      []domain.Anomaly            `json:"anomalies,omitempty"`
	Records        []domain.VerificationRecord `json:"records,omitempty"`
	IdempotencyKey string                      `json:"idempotencyKey,omitempty"`
}

// ListSites returns every site
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.inventory.ListSites(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list sites", err)
		return
	}
	writeJSON(w, sites, http.StatusOK)
}

// GetScene returns a site, optionally filtered to one phase
func (h *Handler) GetScene(w http.ResponseWriter, r *http.Request) {
	phase := domain.Phase(r.URL.Query().Get("phase"))
	model, err := h.inventory.Scene(r.Context(), r.PathValue("id"), phase)
	if err != nil {
		h.writeDomainError(w, "Failed to load scene", err)
		return
	}
	writeJSON(w, model, http.StatusOK)
}

// ImportScene ingests a scene document. The format comes from ?format= or the Content-Type.
func (h *Handler) ImportScene(w http.ResponseWriter, r *http.Request) {
	c, err := codecFor(r)
	if err != nil {
		h.writeDomainError(w, "Unsupported format", err)
		return
	}
	model, err := c.ParseScene(r.Body)
	if err != nil {
		h.writeDomainError(w, "Invalid scene", err)
		return
	}

	result, err := h.inventory.ImportScene(r.Context(), model, r.Header.Get(UserIDHeader))
	if err != nil {
		h.writeDomainError(w, "Failed to import scene", err)
		return
	}
	writeJSON(w, result, http.StatusCreated)
}

// ExportScene downloads a site scene as YAML (default) or JSON
func (h *Handler) ExportScene(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("id")
	c, err := codec.ForFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeDomainError(w, "Unsupported format", err)
		return
	}

	// Load first so errors can still be reported as JSON.
	model, err := h.inventory.Scene(r.Context(), siteID, "")
	if err != nil {
		h.writeDomainError(w, "Failed to export scene", err)
		return
	}

	w.Header().Set("Content-Type", c.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", siteID, c.Format()))
	if err := c.ExportScene(model, w); err != nil {
		h.logger.Error("failed to write scene export", zap.String("site_id", siteID), zap.Error(err))
	}
}

// MoveDevice moves a device in place or forks it into a planned phase
func (h *Handler) MoveDevice(w http.ResponseWriter, r *http.Request) {
	var body MoveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, MoveResponse{Error: "invalid request body: " + err.Error()}, http.StatusBadRequest)
		return
	}

	req := lifecycle.MoveRequest{
		DeviceID:        r.PathValue("id"),
		TargetRackID:    body.TargetRackID,
		TargetUPosition: body.TargetUPosition,
		TargetPhase:     domain.Phase(body.TargetPhase),
		MoveType:        lifecycle.MoveType(body.MoveType),
		UserID:          userID(r, body.UserID),
		Notes:           body.Notes,
		ScheduledDate:   body.ScheduledDate,
		IdempotencyKey:  firstNonEmpty(r.Header.Get(IdempotencyKeyHeader), body.IdempotencyKey),
	}

	out, err := h.inventory.MoveDevice(r.Context(), req)
	if err != nil {
		resp := MoveResponse{Error: err.Error()}
		var conflictErr *domain.ConflictError
		if errors.As(err, &conflictErr) {
			resp.Conflicts = conflictErr.Devices
		}
		h.logFailure("move device", err)
		writeJSON(w, resp, statusFor(err))
		return
	}

	writeJSON(w, MoveResponse{
		Success:     true,
		Device:      out.Device,
		NewDevice:   out.NewDevice,
		ChangeSetID: out.ChangeSetID,
		Replayed:    out.Replayed,
	}, http.StatusOK)
}

// DeleteDevice soft-deletes a device
func (h *Handler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.inventory.DeleteDevice(r.Context(), r.PathValue("id"), userID(r, ""))
	if err != nil {
		h.logFailure("delete device", err)
		writeJSON(w, MoveResponse{Error: err.Error()}, statusFor(err))
		return
	}
	writeJSON(w, MoveResponse{Success: true, Device: device}, http.StatusOK)
}

// DeviceHistory returns a device's audit trail
func (h *Handler) DeviceHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.inventory.DeviceHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, "Failed to load history", err)
		return
	}
	writeJSON(w, entries, http.StatusOK)
}

// CheckPlacement previews conflicts without writing anything
func (h *Handler) CheckPlacement(w http.ResponseWriter, r *http.Request) {
	var body PlacementBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	hits, err := h.inventory.CheckPlacement(r.Context(), conflict.Placement{
		RackID:          r.PathValue("id"),
		UStart:          body.UStart,
		UHeight:         body.UHeight,
		Phase:           domain.Phase(body.Phase),
		ExcludeDeviceID: body.ExcludeDeviceID,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to check placement", err)
		return
	}
	if hits == nil {
		hits = []domain.Device{}
	}
	writeJSON(w, PlacementResponse{HasConflict: len(hits) > 0, Conflicts: hits}, http.StatusOK)
}

// DetectAnomalies previews the anomalies of a scan
func (h *Handler) DetectAnomalies(w http.ResponseWriter, r *http.Request) {
	c, err := codecFor(r)
	if err != nil {
		h.writeDomainError(w, "Unsupported format", err)
		return
	}
	records, err := c.ParseScan(r.Body)
	if err != nil {
		h.writeDomainError(w, "Invalid scan", err)
		return
	}

	anomalies, err := h.anomalies.Detect(r.Context(), r.PathValue("id"), records)
	if err != nil {
		h.writeDomainError(w, "Failed to detect anomalies", err)
		return
	}
	if anomalies == nil {
		anomalies = []domain.Anomaly{}
	}
	writeJSON(w, map[string]any{"anomalies": anomalies}, http.StatusOK)
}

// SaveAnomalies persists previewed anomalies, or detects and persists those of a scan
func (h *Handler) SaveAnomalies(w http.ResponseWriter, r *http.Request) {
	var body SaveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	siteID := r.PathValue("id")
	key := firstNonEmpty(r.Header.Get(IdempotencyKeyHeader), body.IdempotencyKey)

	var (
		result *service.SaveResult
		err    error
	)
	if body.Anomalies != nil {
		result, err = h.anomalies.Save(r.Context(), siteID, body.Anomalies, key)
	} else {
		if err := codec.ValidateRecords(body.Records); err != nil {
			h.writeDomainError(w, "Invalid scan", err)
			return
		}
		result, err = h.anomalies.DetectAndSave(r.Context(), siteID, body.Records, key)
	}
	if err != nil {
		h.writeDomainError(w, "Failed to save anomalies", err)
		return
	}
	writeJSON(w, map[string]int{"saved": result.Saved, "detected": result.Detected}, http.StatusOK)
}

// ListAnomalies returns a site's saved anomalies, filtered by ?status=
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	status := domain.AnomalyStatus(r.URL.Query().Get("status"))
	anomalies, err := h.anomalies.List(r.Context(), r.PathValue("id"), status)
	if err != nil {
		h.writeDomainError(w, "Failed to list anomalies", err)
		return
	}
	if anomalies == nil {
		anomalies = []domain.Anomaly{}
	}
	writeJSON(w, anomalies, http.StatusOK)
}

// UpdateAnomaly applies triage changes
func (h *Handler) UpdateAnomaly(w http.ResponseWriter, r *http.Request) {
	var update domain.AnomalyUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	anomaly, err := h.anomalies.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		h.writeDomainError(w, "Failed to update anomaly", err)
		return
	}
	writeJSON(w, anomaly, http.StatusOK)
}

// ExportAnomalies downloads a site's anomalies as xlsx
func (h *Handler) ExportAnomalies(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("id")
	data, err := h.anomalies.Export(r.Context(), siteID, domain.AnomalyStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeDomainError(w, "Failed to export anomalies", err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=anomalies-%s.xlsx", siteID))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// FindCapacity returns the best AI-ready block for ?phase= (default AS_IS)
func (h *Handler) FindCapacity(w http.ResponseWriter, r *http.Request) {
	phase := domain.Phase(r.URL.Query().Get("phase"))
	if phase == "" {
		phase = domain.PhaseAsIs
	}

	block, err := h.capacity.FindAIReadyCapacity(r.Context(), r.PathValue("id"), phase)
	if err != nil {
		h.writeDomainError(w, "Failed to search capacity", err)
		return
	}
	if block == nil {
		writeError(w, "Not found", "no rack block meets the capacity criteria", http.StatusNotFound)
		return
	}
	writeJSON(w, block, http.StatusOK)
}

// Helper methods

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	h.logFailure(message, err)
	status := statusFor(err)
	if status == http.StatusNotFound {
		message = "Not found"
	}
	writeError(w, message, err.Error(), status)
}

func (h *Handler) logFailure(op string, err error) {
	if domain.KindOf(err) == domain.KindInternal {
		h.logger.Error(op, zap.Error(err))
		return
	}
	h.logger.Debug(op, zap.Error(err))
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}

// codecFor picks a codec from ?format= first, then the Content-Type
func codecFor(r *http.Request) (codec.Codec, error) {
	if format := r.URL.Query().Get("format"); format != "" {
		return codec.ForFormat(format)
	}
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return codec.NewYAMLCodec(), nil
	}
	return codec.NewJSONCodec(), nil
}

// userID prefers the header over the body
func userID(r *http.Request, fromBody string) string {
	return firstNonEmpty(r.Header.Get(UserIDHeader), fromBody)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
