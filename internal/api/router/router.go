package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/followup"
	httpmiddleware "github.com/wolfman30/vetclinic-ai-platform/internal/http/middleware"
	"github.com/wolfman30/vetclinic-ai-platform/internal/messaging"
	"github.com/wolfman30/vetclinic-ai-platform/internal/webchat"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	Messaging          *messaging.Handler
	Webchat            *webchat.Handler
	Conversations      *conversation.Handler
	Clinics            *clinic.Handler
	ClinicStats        *clinic.StatsHandler
	Emergencies        *emergency.Handler
	Calendar           *calendar.Handler
	FollowUps          *followup.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// WebhookRateLimit is requests per second per client IP on the Twilio
	// and webchat endpoints. Zero disables limiting.
	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Inbound channels
	r.Group(func(public chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst))
		}
		if cfg.Messaging != nil {
			public.Route("/webhooks/twilio", func(r chi.Router) {
				r.Post("/messages", cfg.Messaging.TwilioChatWebhook)
				r.Post("/voice", cfg.Messaging.TwilioVoiceWebhook)
				r.Post("/status", cfg.Messaging.TwilioStatusWebhook)
			})
		}
		if cfg.Webchat != nil {
			public.Route("/webchat", func(r chi.Router) {
				r.Get("/ws", cfg.Webchat.HandleWebSocket)
				r.Post("/message", cfg.Webchat.HandleMessage)
				r.Get("/widget.js", cfg.Webchat.HandleWidgetJS)
			})
		}
	})

	if cfg.AdminAuthSecret == "" {
		return r
	}

	if cfg.Conversations != nil {
		r.Route("/v1/conversations", func(api chi.Router) {
			api.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			api.Post("/turns", cfg.Conversations.EnqueueTurn)
			api.Get("/jobs/{jobID}", cfg.Conversations.JobStatus)
		})
	}

	r.Route("/admin/clinics/{clinicID}", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		admin.Use(requireClinicAccess)
		admin.Use(middleware.Compress(5))

		if cfg.Clinics != nil {
			cfg.Clinics.Routes(admin)
		}
		if cfg.ClinicStats != nil {
			admin.Get("/stats", cfg.ClinicStats.GetStats)
		}
		if cfg.Emergencies != nil {
			cfg.Emergencies.Routes(admin)
		}
		if cfg.Calendar != nil {
			cfg.Calendar.Routes(admin)
		}
		if cfg.FollowUps != nil {
			cfg.FollowUps.Routes(admin)
		}
		if cfg.Conversations != nil {
			admin.Get("/conversations", cfg.Conversations.ListConversations)
			admin.Get("/conversations/{conversationID}", cfg.Conversations.Transcript)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
