package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vetclinic-ai-platform/internal/archive"
	"github.com/wolfman30/vetclinic-ai-platform/internal/calendar"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clients"
	"github.com/wolfman30/vetclinic-ai-platform/internal/clinic"
	"github.com/wolfman30/vetclinic-ai-platform/internal/compliance"
	appconfig "github.com/wolfman30/vetclinic-ai-platform/internal/config"
	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
	"github.com/wolfman30/vetclinic-ai-platform/internal/emergency"
	"github.com/wolfman30/vetclinic-ai-platform/internal/events"
	"github.com/wolfman30/vetclinic-ai-platform/internal/followup"
	"github.com/wolfman30/vetclinic-ai-platform/internal/messaging"
	"github.com/wolfman30/vetclinic-ai-platform/internal/notify"
	"github.com/wolfman30/vetclinic-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-ai-platform/internal/webchat"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

// Options carries process-level collaborators into Build.
type Options struct {
	// AWS is required for SQS, DynamoDB, Bedrock, S3 and SES. Nil disables them.
	AWS *aws.Config
	// Registerer receives the Prometheus collectors; nil uses the default.
	Registerer prometheus.Registerer
}

// App is the wired component graph shared by every binary.
type App struct {
	Config *appconfig.Config
	Logger *logging.Logger

	Redis    *redis.Client
	Pool     *pgxpool.Pool
	AuditDB  *sql.DB
	Messages *metrics.MessagingMetrics
	Metrics  *metrics.ConversationMetrics

	Clinics      clinic.Directory
	Resolver     clinic.Resolver
	Clients      clients.Repository
	Conversation conversation.Store
	Jobs         JobStore
	Queue        conversation.Queue
	Publisher    *conversation.Publisher
	Outbox       OutboxStore
	Dedupe       events.Deduper

	Engine      *conversation.Engine
	Calendar    *calendar.Service
	Emergencies *emergency.Service
	FollowUps   followup.Store
	Notifier    *messaging.Notifier
	Replies     conversation.ReplySender
	Webchat     *webchat.Handler
	Deliverer   *events.Deliverer

	closers []func()
}

// JobStore is the turn job record used by both the API and the workers.
type JobStore interface {
	conversation.JobRecorder
	conversation.JobUpdater
}

// OutboxStore is both written by the services and drained by the deliverer.
type OutboxStore interface {
	events.Recorder
	events.Source
}

// Build wires every component from cfg. With UseMemoryStore the process
// needs neither Postgres nor Redis.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	app.Messages = metrics.NewMessagingMetrics(opts.Registerer)
	app.Metrics = metrics.NewConversationMetrics(opts.Registerer)

	if !cfg.UseMemoryStore {
		pool, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.Pool = pool
		app.closers = append(app.closers, pool.Close)
		auditDB, err := OpenAuditDB(cfg.DatabaseURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.AuditDB = auditDB
		app.closers = append(app.closers, func() { _ = auditDB.Close() })
	}
	if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
		app.Redis = client
		app.closers = append(app.closers, func() { _ = client.Close() })
	}

	if err := app.buildStores(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.buildQueue(opts.AWS)
	app.buildServices(ctx, opts.AWS)
	if err := app.buildDeliverer(ctx, opts.AWS); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) buildStores(ctx context.Context) error {
	cfg := a.Config
	if a.Redis != nil {
		a.Clinics = clinic.NewStore(a.Redis)
	} else {
		a.Logger.Warn("clinic configs kept in memory")
		a.Clinics = clinic.NewMemoryStore()
	}
	if cfg.ClinicProfilesFile != "" {
		profiles, err := clinic.LoadProfiles(cfg.ClinicProfilesFile)
		if err != nil {
			return err
		}
		if err := clinic.Seed(ctx, a.Clinics, profiles); err != nil {
			return err
		}
		a.Logger.Info("clinic profiles seeded", "count", len(profiles), "file", cfg.ClinicProfilesFile)
	}
	static, err := clinic.ParseStaticResolver(cfg.TwilioClinicMapJSON)
	if err != nil {
		return fmt.Errorf("bootstrap: TWILIO_CLINIC_MAP_JSON: %w", err)
	}
	a.Resolver = clinic.ChainResolver{static, a.Clinics.(clinic.Resolver)}

	if a.Pool != nil {
		a.Clients = clients.NewPostgresRepository(a.Pool)
		a.Conversation = conversation.NewPostgresStore(a.Pool)
		a.FollowUps = followup.NewPostgresStore(a.Pool)
		outbox := events.NewOutboxStore(a.Pool)
		a.Outbox = outbox
		a.Dedupe = events.NewProcessedStore(a.Pool)
	} else {
		a.Clients = clients.NewMemoryRepository()
		outbox := events.NewMemoryOutbox()
		a.Conversation = conversation.NewMemoryStore().WithOutbox(outbox)
		a.FollowUps = followup.NewMemoryStore()
		a.Outbox = outbox
		a.Dedupe = events.NewMemoryProcessedStore()
	}
	return nil
}

func (a *App) buildQueue(awsCfg *aws.Config) {
	cfg := a.Config
	if cfg.UseMemoryQueue || awsCfg == nil || cfg.TurnQueueURL == "" {
		a.Logger.Info("using in-memory turn queue")
		a.Queue = conversation.NewMemoryQueue(1024)
		a.Jobs = conversation.NewMemoryJobStore()
	} else {
		a.Queue = conversation.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.TurnQueueURL)
		a.Jobs = conversation.NewJobStore(dynamodb.NewFromConfig(*awsCfg), cfg.TurnJobsTable, a.Logger)
	}
	a.Publisher = conversation.NewPublisher(a.Queue, a.Logger)
}

func (a *App) buildServices(ctx context.Context, awsCfg *aws.Config) {
	cfg := a.Config
	logger := a.Logger

	sender, provider, reason := messaging.BuildSender(messaging.ProviderConfig{
		TwilioAccountSID:   cfg.TwilioAccountSID,
		TwilioAuthToken:    cfg.TwilioAuthToken,
		TwilioFromNumber:   cfg.TwilioFromNumber,
		TwilioWhatsAppFrom: cfg.TwilioWhatsAppFrom,
		TelnyxAPIKey:       cfg.TelnyxAPIKey,
		TelnyxProfileID:    cfg.TelnyxProfileID,
		TelnyxFromNumber:   cfg.TelnyxFromNumber,
	}, logger, messaging.WithStatusCallback(func(ctx context.Context) string {
		id, _ := emergency.AlertIDFromContext(ctx)
		return messaging.StatusCallbackURL(cfg.PublicBaseURL, id)
	}))
	if sender == nil {
		logger.Warn("no outbound sms provider configured; messages will be dropped", "reason", reason)
	} else {
		logger.Info("outbound messaging ready", "provider", provider)
	}
	a.Notifier = messaging.NewNotifier(sender, logger).WithMetrics(a.Messages)

	var auditor compliance.Auditor = compliance.NopAuditor{}
	if a.AuditDB != nil {
		auditor = compliance.NewAuditService(a.AuditDB)
	}

	var emergencyStore emergency.Store
	var calendarRepo calendar.Repository
	if a.Pool != nil {
		emergencyStore = emergency.NewPostgresStore(a.Pool)
		calendarRepo = calendar.NewPostgresRepository(a.Pool)
	} else {
		emergencyStore = emergency.NewMemoryStore()
		calendarRepo = calendar.NewMemoryRepository()
	}
	a.Emergencies = emergency.NewService(
		emergencyStore,
		emergency.NewEscalator(a.Notifier, a.Metrics, logger),
		a.Clients,
		a.Clinics,
		auditor,
		a.Outbox,
		emergency.Config{AbuseThreshold: cfg.EmergencyAbuseLimit},
		logger,
	)
	a.Calendar = calendar.NewService(calendarRepo, a.Clinics, logger,
		calendar.WithHorizonDays(cfg.SlotSearchHorizonDay),
		calendar.WithCompletionHook(followup.NewScheduler(a.FollowUps, logger)),
	)

	var locker conversation.Locker = conversation.NewLocalLocker()
	if a.Redis != nil {
		locker = conversation.NewRedisLocker(a.Redis, cfg.TurnLockTTL)
	}
	a.Engine = conversation.NewEngine(conversation.EngineDeps{
		Store:       a.Conversation,
		Locker:      locker,
		Classifier:  BuildClassifier(ctx, cfg, awsCfg, a.Metrics, logger),
		Calendar:    a.Calendar,
		Clinics:     a.Clinics,
		Clients:     a.Clients,
		Emergencies: a.Emergencies,
		Outbox:      a.Outbox,
		Metrics:     a.Metrics,
	}, logger)
	a.Engine.SetFollowUpResponder(followup.NewResponder(a.FollowUps, a.Outbox, logger))
	a.Emergencies.OnResolve(a.Engine.EmergencyResolved)

	a.Webchat = webchat.NewHandler(a.Engine, loadWidget(cfg.WebchatWidgetFile, logger), logger)
	a.Replies = webchat.NewSender(a.Webchat, a.Notifier)
}

func loadWidget(path string, logger *logging.Logger) []byte {
	if strings.TrimSpace(path) == "" {
		return webchat.DefaultWidget
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("webchat widget override unreadable; using default", "file", path, "error", err)
		return webchat.DefaultWidget
	}
	return data
}

func (a *App) buildDeliverer(ctx context.Context, awsCfg *aws.Config) error {
	cfg := a.Config
	logger := a.Logger
	handlers := events.FanOut{
		events.OnlyTypes(followup.NewStaffAlerter(a.Emergencies, logger), events.TypeFollowUpEscalated),
	}

	if cfg.NATSURL != "" {
		bus, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSToken, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, bus.Close)
		handlers = append(handlers, bus)
		logger.Info("publishing domain events to nats", "prefix", cfg.NATSSubjectPrefix)
	}
	if cfg.ArchiveBucket != "" && awsCfg != nil {
		store := archive.NewStore(s3.NewFromConfig(*awsCfg), cfg.ArchiveBucket, logger)
		handlers = append(handlers, events.OnlyTypes(archive.NewArchiver(store), events.TypeConversationEnded))
		logger.Info("archiving finished conversations", "bucket", cfg.ArchiveBucket)
	}

	email := buildEmailSender(cfg, awsCfg, logger)
	digest := notify.NewService(email, a.Clinics, logger)
	handlers = append(handlers, events.OnlyTypes(digest, digest.Types()...))

	a.Deliverer = events.NewDeliverer(a.Outbox, handlers, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxInterval)
	return nil
}

func buildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg
	}
	if cfg.SESFromEmail != "" && awsCfg != nil {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); ses != nil {
			return ses
		}
	}
	return notify.NewLogSender(logger)
}

// FollowUpWorker sends due check-ins through the engine.
func (a *App) FollowUpWorker() *followup.Worker {
	return followup.NewWorker(a.FollowUps, a.Engine, a.Replies, followup.WorkerConfig{
		BatchSize: a.Config.FollowUpBatchSize,
		Interval:  a.Config.FollowUpInterval,
	}, a.Logger)
}

// TurnWorker drains the turn queue.
func (a *App) TurnWorker() *conversation.Worker {
	return conversation.NewWorker(a.Engine, a.Queue, a.Jobs, a.Replies, a.Logger,
		conversation.WithWorkerCount(a.Config.WorkerCount),
	)
}

// Close releases pools and connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
