package bootstrap

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/vetclinic-ai-platform/internal/api/router"
	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/followup"
	"github.com/wolfman30/vetclinic-ai-platform/internal/messaging"
)

// RouterConfig builds the HTTP surface over the wired components. A nil
// metricsHandler serves the default Prometheus registry.
func (a *App) RouterConfig(metricsHandler http.Handler) *router.Config {
	cfg := a.Config
	secret := cfg.TwilioAuthToken
	if cfg.TwilioSkipSignature {
		a.Logger.Warn("twilio signature validation disabled")
		secret = ""
	}
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	rc := &router.Config{
		Logger: a.Logger,
		Messaging: messaging.NewHandler(messaging.HandlerDeps{
			WebhookSecret: secret,
			Resolver:      a.Resolver,
			Queue:         a.Publisher,
			Turns:         a.Engine,
			Dedupe:        a.Dedupe,
			Alerts:        a.Emergencies,
			Metrics:       a.Messages,
		}, a.Logger),
		Webchat:          a.Webchat,
		Conversations:    conversation.NewHandler(a.Publisher, a.Jobs, a.Conversation, a.Logger),
		Clinics:          clinic.NewHandler(a.Clinics, a.Logger),
		Emergencies:      emergency.NewHandler(a.Emergencies, a.Logger),
		Calendar:         calendar.NewHandler(a.Calendar, a.Clinics, a.Logger),
		FollowUps:        followup.NewHandler(a.FollowUps, a.Logger),
		AdminAuthSecret:  cfg.AdminJWTSecret,
		MetricsHandler:   metricsHandler,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
	}
	if a.Pool != nil {
		rc.ClinicStats = clinic.NewStatsHandler(clinic.NewStatsRepository(a.Pool), a.Logger)
	}
	for _, origin := range strings.Split(cfg.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			rc.CORSAllowedOrigins = append(rc.CORSAllowedOrigins, origin)
		}
	}
	return rc
}

// Handler is the fully configured HTTP handler.
func (a *App) Handler(metricsHandler http.Handler) http.Handler {
	return router.New(a.RouterConfig(metricsHandler))
}
