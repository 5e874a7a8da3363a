package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Enqueuer publishes turns for asynchronous processing.
type Enqueuer interface {
	EnqueueTurn(ctx context.Context, jobID string, in Turn, opts ...PublishOption) (string, error)
}

// Handler serves the conversation API and the admin transcript views.
type Handler struct {
	enqueuer Enqueuer
	jobs     JobRecorder
	store    Store
	logger   *logging.Logger
}

// NewHandler creates a conversation handler. store may be nil when the admin
// views are not mounted.
func NewHandler(enqueuer Enqueuer, jobs JobRecorder, store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{enqueuer: enqueuer, jobs: jobs, store: store, logger: logger}
}

type turnRequest struct {
	ClinicID   string `json:"clinic_id"`
	Channel    string `json:"channel"`
	Phone      string `json:"phone"`
	Text       string `json:"text"`
	ExternalID string `json:"external_id"`
	SessionID  string `json:"session_id"`
}

// EnqueueTurn handles POST /v1/conversations/turns.
func (h *Handler) EnqueueTurn(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil || h.jobs == nil {
		http.Error(w, "Turn queue not configured", http.StatusServiceUnavailable)
		return
	}
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode turn request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	channel := ChannelChat
	if req.Channel != "" {
		c, ok := ParseChannel(strings.ToLower(req.Channel))
		if !ok {
			http.Error(w, "Unknown channel", http.StatusBadRequest)
			return
		}
		channel = c
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.ClinicID == "" || req.Phone == "" {
		http.Error(w, "clinic_id and phone are required", http.StatusBadRequest)
		return
	}

	jobID := uuid.NewString()
	if err := h.jobs.PutPending(r.Context(), &JobRecord{
		JobID:    jobID,
		ClinicID: req.ClinicID,
		Channel:  channel,
	}); err != nil {
		h.logger.Error("failed to record pending job", "error", err, "job_id", jobID)
		http.Error(w, "Failed to enqueue turn", http.StatusInternalServerError)
		return
	}
	in := Turn{
		ClinicID:   req.ClinicID,
		Channel:    channel,
		Phone:      req.Phone,
		Text:       req.Text,
		ExternalID: req.ExternalID,
		SessionID:  req.SessionID,
	}
	if _, err := h.enqueuer.EnqueueTurn(r.Context(), jobID, in, WithJobTracking()); err != nil {
		h.logger.Error("failed to enqueue turn", "error", err, "job_id", jobID)
		http.Error(w, "Failed to enqueue turn", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// JobStatus handles GET /v1/conversations/jobs/{jobID}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "Job store not configured", http.StatusServiceUnavailable)
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListConversations handles GET /admin/clinics/{clinicID}/conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Conversation store not configured", http.StatusServiceUnavailable)
		return
	}
	clinicID := strings.TrimSpace(chi.URLParam(r, "clinicID"))
	if clinicID == "" {
		http.Error(w, "clinic id required", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 200)
	}
	convs, err := h.store.List(r.Context(), clinicID, Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err, "clinic_id", clinicID)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []Conversation{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// Transcript handles GET /admin/clinics/{clinicID}/conversations/{conversationID}.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Conversation store not configured", http.StatusServiceUnavailable)
		return
	}
	clinicID := chi.URLParam(r, "clinicID")
	conv, err := h.store.Get(r.Context(), chi.URLParam(r, "conversationID"))
	if errors.Is(err, ErrNotFound) || (err == nil && conv.ClinicID != clinicID) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	msgs, err := h.store.Messages(r.Context(), conv.ID)
	if err != nil {
		h.logger.Error("failed to load transcript", "error", err, "conversation_id", conv.ID)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversation": conv, "messages": msgs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
