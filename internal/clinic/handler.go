package clinic

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Handler provides HTTP endpoints for clinic configuration management.
type Handler struct {
	store  Directory
	logger *logging.Logger
}

// NewHandler creates a new clinic config HTTP handler.
func NewHandler(store Directory, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Routes registers the config endpoints on a router already scoped to
// /admin/clinics/{clinicID}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/config", h.GetConfig)
	r.Put("/config", h.UpdateConfig)
}

// GetConfig returns the clinic configuration.
// GET /admin/clinics/{clinicID}/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfigRequest is a partial update of a clinic config.
type UpdateConfigRequest struct {
	Name                 *string            `json:"name,omitempty"`
	Timezone             *string            `json:"timezone,omitempty"`
	Numbers              []string           `json:"numbers,omitempty"`
	BusinessHours        *BusinessHours     `json:"business_hours,omitempty"`
	AppointmentDurations map[string]int     `json:"appointment_durations,omitempty"`
	EscalationContacts   []Contact          `json:"escalation_contacts,omitempty"`
	FollowUpProtocols    []FollowUpProtocol `json:"follow_up_protocols,omitempty"`
	ReminderNudges       *bool              `json:"reminder_nudges,omitempty"`
	Notifications        *NotificationPrefs `json:"notifications,omitempty"`
}

// UpdateConfig applies a partial update to the clinic configuration.
// PUT /admin/clinics/{clinicID}/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	cfg.ID = clinicID

	if req.Name != nil {
		cfg.Name = *req.Name
	}
	if req.Timezone != nil {
		cfg.Timezone = *req.Timezone
	}
	if req.Numbers != nil {
		cfg.Numbers = req.Numbers
	}
	if req.BusinessHours != nil {
		cfg.BusinessHours = *req.BusinessHours
	}
	if req.AppointmentDurations != nil {
		cfg.AppointmentDurations = req.AppointmentDurations
	}
	if req.EscalationContacts != nil {
		cfg.EscalationContacts = req.EscalationContacts
	}
	if req.FollowUpProtocols != nil {
		cfg.FollowUpProtocols = req.FollowUpProtocols
	}
	if req.ReminderNudges != nil {
		cfg.ReminderNudges = *req.ReminderNudges
	}
	if req.Notifications != nil {
		cfg.Notifications = *req.Notifications
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.store.Set(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to save config"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("clinic config updated", "clinic_id", clinicID, "name", cfg.Name)
	writeJSON(w, http.StatusOK, cfg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
