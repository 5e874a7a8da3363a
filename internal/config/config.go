package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	UseMemoryQueue bool
	UseMemoryStore bool
	WorkerCount    int
	DatabaseURL    string

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	TwilioWhatsAppFrom   string
	TwilioClinicMapJSON  string
	TwilioSkipSignature  bool
	VoiceLanguage        string
	VoiceName            string
	WebhookRateLimit     float64
	WebhookRateBurst     int
	AdminJWTSecret       string
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	TurnQueueURL         string
	TurnJobsTable        string
	BedrockModelID       string
	GeminiAPIKey         string
	GeminiModelID        string
	ClassifierTimeout    time.Duration
	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool
	TurnLockTTL          time.Duration
	ClinicProfilesFile   string
	ArchiveBucket        string
	NATSURL              string
	NATSToken            string
	NATSSubjectPrefix    string
	OutboxBatchSize      int
	OutboxInterval       time.Duration
	FollowUpBatchSize    int
	FollowUpInterval     time.Duration
	ReminderNudges       bool
	EmergencyAbuseLimit  int
	SlotSearchHorizonDay int
	SweepInterval        time.Duration
	SweepBatchSize       int
	WebchatWidgetFile    string
	CORSAllowedOrigins   string

	// SMS backup provider
	TelnyxAPIKey     string
	TelnyxProfileID  string
	TelnyxFromNumber string

	// Emergency digest email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:     getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWhatsAppFrom:   getEnv("TWILIO_WHATSAPP_FROM", ""),
		TwilioClinicMapJSON:  getEnv("TWILIO_CLINIC_MAP_JSON", ""),
		TwilioSkipSignature:  getEnvAsBool("TWILIO_SKIP_SIGNATURE", false),
		VoiceLanguage:        getEnv("VOICE_LANGUAGE", "es-CO"),
		VoiceName:            getEnv("VOICE_NAME", "Polly.Mia-Neural"),
		WebhookRateLimit:     getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:     getEnvAsInt("WEBHOOK_RATE_BURST", 40),
		AdminJWTSecret:       getEnv("ADMIN_JWT_SECRET", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		TurnQueueURL:         getEnv("TURN_QUEUE_URL", ""),
		TurnJobsTable:        getEnv("TURN_JOBS_TABLE", "conversation_turn_jobs"),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		ClassifierTimeout:    getEnvAsDuration("CLASSIFIER_TIMEOUT", 8*time.Second),
		RedisAddr:            getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),
		TurnLockTTL:          getEnvAsDuration("TURN_LOCK_TTL", 30*time.Second),
		ClinicProfilesFile:   getEnv("CLINIC_PROFILES_FILE", ""),
		ArchiveBucket:        getEnv("ARCHIVE_BUCKET", ""),
		NATSURL:              getEnv("NATS_URL", ""),
		NATSToken:            getEnv("NATS_TOKEN", ""),
		NATSSubjectPrefix:    getEnv("NATS_SUBJECT_PREFIX", "vetclinic"),
		OutboxBatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxInterval:       getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		FollowUpBatchSize:    getEnvAsInt("FOLLOWUP_BATCH_SIZE", 50),
		FollowUpInterval:     getEnvAsDuration("FOLLOWUP_INTERVAL", 5*time.Minute),
		ReminderNudges:       getEnvAsBool("REMINDER_NUDGES", false),
		EmergencyAbuseLimit:  getEnvAsInt("EMERGENCY_ABUSE_LIMIT", 2),
		SlotSearchHorizonDay: getEnvAsInt("SLOT_SEARCH_HORIZON_DAYS", 14),
		SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize:       getEnvAsInt("SWEEP_BATCH_SIZE", 200),
		WebchatWidgetFile:    getEnv("WEBCHAT_WIDGET_FILE", ""),
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", ""),

		TelnyxAPIKey:     getEnv("TELNYX_API_KEY", ""),
		TelnyxProfileID:  getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber: getEnv("TELNYX_FROM_NUMBER", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Asistente Veterinario"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
