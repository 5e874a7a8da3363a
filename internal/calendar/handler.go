package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Handler exposes the staff appointment API.
type Handler struct {
	svc     *Service
	clinics ClinicDirectory
	logger  *logging.Logger
}

func NewHandler(svc *Service, clinics ClinicDirectory, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, clinics: clinics, logger: logger}
}

// Routes mounts under /admin/clinics/{clinicID}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/appointments", h.list)
	r.Get("/appointments/{appointmentID}", h.get)
	r.Post("/appointments/{appointmentID}/complete", h.complete)
	r.Post("/appointments/{appointmentID}/cancel", h.cancel)
	r.Get("/slots", h.slots)
}

const dayLayout = "2006-01-02"

// list handles ?from=YYYY-MM-DD&days=N in the clinic's timezone.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	cfg, err := h.clinics.Get(r.Context(), clinicID)
	if err != nil {
		h.fail(w, err)
		return
	}
	loc := cfg.Location()
	from := localDay(time.Now().In(loc), loc)
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.ParseInLocation(dayLayout, v, loc)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 || days > 31 {
		days = 7
	}
	items, err := h.svc.List(r.Context(), clinicID, from, from.AddDate(0, 0, days))
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Get(r.Context(), chi.URLParam(r, "clinicID"), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Complete(r.Context(), chi.URLParam(r, "clinicID"), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "clinicID"), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// slots handles ?date=YYYY-MM-DD&duration=minutes.
func (h *Handler) slots(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dayLayout, r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	duration, _ := strconv.Atoi(r.URL.Query().Get("duration"))
	slots, err := h.svc.FindAvailableSlots(r.Context(), chi.URLParam(r, "clinicID"), date, duration)
	if err != nil {
		h.fail(w, err)
		return
	}
	if slots == nil {
		slots = []TimeSlot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrOutsideHours):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("calendar admin request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
