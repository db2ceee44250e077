// internal/bootstrap/bootstrap.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"kennel-notifications/internal/common/aws"
	"kennel-notifications/internal/common/config"
	"kennel-notifications/internal/common/database"
	"kennel-notifications/internal/common/events"
	"kennel-notifications/internal/common/logger"
	"kennel-notifications/internal/common/observability"
	"kennel-notifications/internal/models"
	"kennel-notifications/internal/notifications/dispatch"
	"kennel-notifications/internal/notifications/ledger"
	"kennel-notifications/internal/notifications/recipient"
	"kennel-notifications/internal/notifications/render"
	"kennel-notifications/internal/notifications/store"
	processdue "kennel-notifications/internal/workers/notifications/process-due"
)

// Components is everything a process needs to run notification passes.
type Components struct {
	Config    *config.Config
	Postgres  *database.PostgresClient
	Redis     *database.RedisClient
	Store     *store.PostgresStore
	Handler   *processdue.Handler
	Worker    *processdue.Config
	Publisher events.Publisher
	Obs       *observability.Observability

	logger logger.Logger
}

// Build connects to the stores and assembles the worker. Postgres is required;
// Redis and Kafka are used only when configured.
func Build(ctx context.Context, cfg *config.Config, serviceName string, log logger.Logger) (*Components, error) {
	c := &Components{Config: cfg, logger: log}

	err := RetryWithBackoff(func() error {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return err
		}
		c.Postgres = pg
		return nil
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connected", nil)
	c.Store = store.NewPostgresStore(c.Postgres.DB)

	var deliveryLedger ledger.Ledger = ledger.NoopLedger{}
	if cfg.Database.Redis.Enabled() {
		err := RetryWithBackoff(func() error {
			rc, err := database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			if err := rc.Ping(ctx); err != nil {
				rc.Close()
				return err
			}
			c.Redis = rc
			return nil
		}, 5, time.Second, log, "Redis connection")
		if err != nil {
			c.Close()
			return nil, err
		}
		deliveryLedger = ledger.NewRedisLedger(c.Redis.Client, config.GetDuration(cfg.Notifications.LedgerTTL))
		log.Info("Redis delivery ledger enabled", nil)
	} else {
		log.Warn("Redis not configured, delivery ledger disabled", nil)
	}

	router, err := buildDispatcher(ctx, cfg, log)
	if err != nil {
		c.Close()
		return nil, err
	}

	if len(cfg.Events.Kafka.Brokers) > 0 {
		c.Publisher = events.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, log)
		log.Info("outcome events enabled", map[string]interface{}{
			"brokers": cfg.Events.Kafka.Brokers,
			"topic":   cfg.Events.Kafka.Topic,
		})
	} else {
		c.Publisher = events.NoopPublisher{}
	}

	resolver, err := recipient.NewResolver(cfg.Notifications.DefaultCountryCode)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Obs = observability.New(serviceName)
	c.Worker = processdue.LoadConfig(cfg.Notifications)

	c.Handler, err = processdue.NewHandler(c.Worker, processdue.Dependencies{
		Store:         c.Store,
		Bookings:      store.NewBookingReader(c.Postgres.DB),
		Renderer:      render.NewFromConfig(cfg.Notifications.StrictTemplates),
		Resolver:      resolver,
		Dispatcher:    router,
		Ledger:        deliveryLedger,
		Publisher:     c.Publisher,
		Observability: c.Obs,
		Logger:        log,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	log.Info("notification worker assembled", map[string]interface{}{
		"workerId":    c.Worker.WorkerID,
		"channels":    router.Channels(),
		"concurrency": c.Worker.Concurrency,
		"batchSize":   c.Worker.BatchSize,
		"strict":      cfg.Notifications.StrictTemplates,
	})
	return c, nil
}

func buildDispatcher(ctx context.Context, cfg *config.Config, log logger.Logger) (*dispatch.Router, error) {
	router := dispatch.NewRouter()
	ch := cfg.Channels

	if ch.WhatsApp.Enabled {
		router.Register(models.ChannelWhatsApp, dispatch.NewWhatsAppClient(dispatch.WhatsAppConfig{
			BaseURL:         ch.WhatsApp.BaseURL,
			PhoneNumberID:   ch.WhatsApp.PhoneNumberID,
			AccessToken:     ch.WhatsApp.AccessToken,
			DefaultLanguage: ch.WhatsApp.DefaultLanguage,
			Timeout:         config.GetDuration(cfg.Notifications.DispatchTimeout),
		}))
	}

	if ch.SMS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, ch.SMS.Region)
		if err != nil {
			return nil, fmt.Errorf("sms channel: %w", err)
		}
		router.Register(models.ChannelSMS, dispatch.NewSMSClient(snsClient, ch.SMS.SenderID))
	}

	if ch.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, ch.Email.Region)
		if err != nil {
			return nil, fmt.Errorf("email channel: %w", err)
		}
		router.Register(models.ChannelEmail, dispatch.NewEmailClient(sesClient, ch.Email.FromEmail))
	}

	if len(router.Channels()) == 0 {
		log.Warn("no messaging channel enabled, every job will fail", nil)
	}
	return router, nil
}

// Close releases connections in reverse order of creation. Safe on a
// partially built Components.
func (c *Components) Close() {
	if c.Obs != nil {
		c.Obs.Shutdown()
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.logger.Warn("failed to close event publisher", map[string]interface{}{"error": err})
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Warn("failed to close redis", map[string]interface{}{"error": err})
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			c.logger.Warn("failed to close postgres", map[string]interface{}{"error": err})
		}
	}
}

// RetryWithBackoff retries operation with exponential backoff.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
