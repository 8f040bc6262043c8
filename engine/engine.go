package engine

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/aibridge"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/cache"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/config"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/limiter"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/models"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/queue"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/services"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/store"
	"github.com/syeddawoodsleekhive/kogents-replit-version-sub003/uploads"
)

// Engine wires the chat core together: Postgres as the source of truth,
// Redis behind the breaker for the fast path, Kafka for jobs and
// notifications. The transport hosting it (HTTP, websocket gateway) lives
// outside this module.
type Engine struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Cache        *cache.Cache
	Store        *store.Store
	Writer       *queue.Writer
	Producer     *queue.Producer
	Rooms        *services.RoomService
	Messages     *services.MessageService
	Participants *services.ParticipantService
	Handoffs     *services.HandoffService
	Presence     *services.PresenceService
	Uploads      *uploads.Uploader

	cfg    config.Config
	bridge *aibridge.Client
	log    zerolog.Logger
}

func New(cfg config.Config, log zerolog.Logger) (*Engine, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := models.AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	redisClient, err := cache.NewClient(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	breaker := cache.NewBreaker(cfg.Engine.BreakerThreshold, cfg.Engine.BreakerCooldown())
	resilient := cache.New(redisClient, breaker, log)

	durable := store.New(db, log)
	writer := queue.NewWriter(durable, queue.WriterConfig{
		MaxBatch: cfg.Engine.MaxBatchSize,
		Interval: cfg.Engine.FlushInterval(),
		Timeout:  cfg.Engine.FlushTimeout(),
	}, log)

	saramaConfig, err := queue.NewSaramaConfig(&cfg.Kafka)
	if err != nil {
		return nil, err
	}
	producer, err := queue.NewProducer(cfg.Kafka.Brokers, saramaConfig, log)
	if err != nil {
		return nil, fmt.Errorf("connect to kafka: %w", err)
	}
	notifier := queue.NewNotifier(producer)

	var bridgeClient *aibridge.Client
	var bridge services.Bridge
	if cfg.Bridge.URL != "" {
		bridgeClient = aibridge.NewClient(cfg.Bridge.URL, log)
		bridge = bridgeClient
	}

	rate := limiter.NewManager(redisClient, limiter.ForName(cfg.Engine.RateStrategy))

	rooms := services.NewRoomService(durable, resilient, writer, notifier, bridge, cfg.Engine.MessageWindow, log)
	messages := services.NewMessageService(rooms, resilient, writer, producer, bridge,
		rate, cfg.Engine.RateLimit, cfg.Engine.RateWindow(), cfg.Engine.MessageWindow, log)
	participants := services.NewParticipantService(durable, resilient, writer, rooms, log)
	handoffs := services.NewHandoffService(durable, resilient, writer, notifier, rooms, log)
	presence := services.NewPresenceService(resilient, producer, log)

	var uploader *uploads.Uploader
	if cfg.Storage.URL != "" {
		uploader = uploads.NewUploader(uploads.NewSupabaseStore(cfg.Storage.URL, cfg.Storage.APIKey, cfg.Storage.Bucket))
	}

	return &Engine{
		DB:           db,
		Redis:        redisClient,
		Cache:        resilient,
		Store:        durable,
		Writer:       writer,
		Producer:     producer,
		Rooms:        rooms,
		Messages:     messages,
		Participants: participants,
		Handoffs:     handoffs,
		Presence:     presence,
		Uploads:      uploader,
		cfg:          cfg,
		bridge:       bridgeClient,
		log:          log.With().Str("component", "engine").Logger(),
	}, nil
}

// RunAuditConsumer hosts the chat_audit worker that lands ephemeral-state
// telemetry in the durable store. Blocks until ctx is cancelled.
func (e *Engine) RunAuditConsumer(ctx context.Context) error {
	saramaConfig, err := queue.NewSaramaConfig(&e.cfg.Kafka)
	if err != nil {
		return err
	}
	handler := queue.NewAuditHandler(e.Store, e.log)
	consumer, err := queue.NewConsumer(e.cfg.Kafka.Brokers, e.cfg.Kafka.GroupID,
		[]string{"chat_audit"}, saramaConfig, handler, e.log)
	if err != nil {
		return err
	}
	defer consumer.Close()
	return consumer.Start(ctx)
}

// Close drains the write queue before releasing connections, so buffered
// durable jobs land.
func (e *Engine) Close() {
	e.Writer.Close()
	if err := e.Producer.Close(); err != nil {
		e.log.Warn().Err(err).Msg("producer close failed")
	}
	if e.bridge != nil {
		e.bridge.Close()
	}
	if err := e.Redis.Close(); err != nil {
		e.log.Warn().Err(err).Msg("redis close failed")
	}
	if sqlDB, err := e.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
