package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/aggregator"
	"github.com/insight-back/internal/api"
	"github.com/insight-back/internal/cache"
	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/internal/messaging"
	"github.com/insight-back/internal/stream"
	"github.com/insight-back/internal/vendors"
	"github.com/insight-back/internal/websocket"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

// App represents the application with all its dependencies
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	cache  cache.Cache
	nats   *messaging.NATSClient
	creds  *credentials.Store
	hub    *websocket.Hub
	stream *stream.Client
	agg    *aggregator.Service
	server *api.Server

	cancel context.CancelFunc
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Initialize wires up all application components
func (a *App) Initialize(ctx context.Context) error {
	a.logger.Info("Initializing application")

	// Cache: Redis when enabled, in-process fallback otherwise. The Redis
	// client also backs credential persistence and dashboard sessions.
	var credBackend credentials.Backend
	if a.cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.cache = redisClient
		credBackend = redisClient
		a.logger.Info("Redis cache initialized")
	} else {
		a.cache = cache.NewMemoryCache()
		credBackend = credentials.NewMemoryBackend()
		a.logger.Warn("Redis disabled, using in-memory cache; credentials will not survive restart")
	}

	// NATS is optional. Without it, stream news goes to the hub directly.
	if a.cfg.NATS.URL != "" {
		natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		a.nats = natsClient
	}

	// Credential store seeded with defaults from the environment.
	defaults := map[models.Vendor]models.Credential{
		models.VendorPredictions: {Key: a.cfg.Vendors.Predictions.APIKey},
		models.VendorFinance:     {Key: a.cfg.Vendors.Finance.APIKey},
		models.VendorNews:        {Key: a.cfg.Vendors.News.APIKey, Secret: a.cfg.Vendors.News.APISecret},
		models.VendorTextGen:     {Key: a.cfg.Vendors.TextGen.APIKey},
		models.VendorSpeech:      {Key: a.cfg.Vendors.Speech.APIKey},
	}
	a.creds = credentials.NewStore(credBackend, defaults, a.logger)
	if err := a.creds.Load(ctx); err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	// Vendor clients share the credential store.
	predictionsClient := vendors.NewPredictionsClient(&a.cfg.Vendors.Predictions, a.creds, a.logger)
	financeClient := vendors.NewFinanceClient(&a.cfg.Vendors.Finance, a.creds, a.logger)
	newsClient := vendors.NewNewsClient(&a.cfg.Vendors.News, a.creds, a.logger)
	textgenClient := vendors.NewTextGenClient(&a.cfg.Vendors.TextGen, a.creds, a.logger)
	speechClient := vendors.NewSpeechClient(&a.cfg.Vendors.Speech, a.creds, a.logger)

	a.hub = websocket.NewHub(a.logger)

	// Stream news fans out through NATS when available so every instance's
	// hub sees it; otherwise it goes straight to the local hub.
	onNews := a.hub.Publish
	if a.nats != nil {
		onNews = func(item models.NewsItem) {
			if err := a.nats.PublishNews(item); err != nil {
				a.logger.WithError(err).Warn("Failed to publish news to NATS, delivering locally")
				a.hub.Publish(item)
			}
		}
	}
	a.stream = stream.NewClient(&a.cfg.Vendors.News, &a.cfg.Stream, a.creds, onNews, a.logger)
	a.stream.SetErrorHandler(func(err error) {
		a.logger.WithError(err).Error("News stream terminated")
	})

	a.agg = aggregator.NewService(
		predictionsClient,
		financeClient,
		newsClient,
		textgenClient,
		speechClient,
		a.cache,
		a.cfg.Cache,
		a.logger,
	)

	a.server = api.NewServer(a.cfg, a.logger, a.agg, a.creds, a.cache, a.hub, a.stream)

	a.logger.Info("Application initialized successfully")
	return nil
}

// Start starts all application services
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("Starting application services")

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.hub.Run(runCtx)

	if a.nats != nil {
		if _, err := a.nats.SubscribeNews(a.hub.Publish); err != nil {
			return fmt.Errorf("failed to subscribe to news subject: %w", err)
		}
	}

	// Open the news stream when configured. A failure here is logged, not
	// fatal: the dashboard can trigger a connect later.
	if a.cfg.Stream.Enabled {
		if err := a.stream.Connect(ctx); err != nil {
			a.logger.WithError(err).Warn("News stream unavailable at startup")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down all application services
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("Stopping application services")

	if a.stream != nil {
		a.stream.Disconnect()
	}

	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.nats != nil {
		a.nats.Close()
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close cache")
		}
	}

	a.logger.Info("Application stopped")
	return nil
}
