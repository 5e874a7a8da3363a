package emergency

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vetclinic-ai-platform/internal/clients"
	"github.com/wolfman30/vetclinic-ai-platform/internal/http/middleware"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Handler exposes the staff emergency API.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts under /admin/clinics/{clinicID}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/emergencies", h.list)
	r.Get("/emergencies/active", h.active)
	r.Get("/emergencies/{eventID}", h.get)
	r.Get("/emergencies/{eventID}/alerts", h.alerts)
	r.Post("/emergencies/{eventID}/acknowledge", h.acknowledge)
	r.Post("/emergencies/{eventID}/resolve", h.resolve)
	r.Post("/clients/{clientID}/clear-access", h.clearAccess)
}

type resolveRequest struct {
	Notes         string `json:"notes"`
	WasFalseAlarm bool   `json:"was_false_alarm"`
}

func (h *Handler) clinicID(w http.ResponseWriter, r *http.Request) (string, bool) {
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		http.Error(w, "missing clinic id", http.StatusBadRequest)
		return "", false
	}
	if !middleware.CanAccessClinic(r.Context(), clinicID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return clinicID, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := h.svc.List(r.Context(), clinicID, Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.List(r.Context(), clinicID, StatusActive, 10)
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []Event{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	ev, err := h.svc.Get(r.Context(), clinicID, chi.URLParam(r, "eventID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	alerts, err := h.svc.Alerts(r.Context(), clinicID, chi.URLParam(r, "eventID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	ev, err := h.svc.Acknowledge(r.Context(), clinicID, chi.URLParam(r, "eventID"), middleware.AdminActor(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	ev, err := h.svc.Resolve(r.Context(), clinicID, chi.URLParam(r, "eventID"), middleware.AdminActor(r.Context()), req.Notes, req.WasFalseAlarm)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) clearAccess(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	client, err := h.svc.ClearAccess(r.Context(), clinicID, chi.URLParam(r, "clientID"), middleware.AdminActor(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, clients.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrTerminalStatus), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStatusChanged):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("emergency admin request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
