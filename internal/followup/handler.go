package followup

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Handler exposes the follow-ups of an appointment to staff.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes mounts under /admin/clinics/{clinicID}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/appointments/{appointmentID}/follow-ups", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	items, err := h.store.ListByAppointment(r.Context(), clinicID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.logger.Error("list follow-ups failed", "clinic_id", clinicID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []FollowUp{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "total": len(items)})
}
