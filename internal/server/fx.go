// Package server builds the application graph from configuration and runs
// it until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/api"
	"github.com/JakeFAU/pinfetch/internal/cache/memory"
	redisstore "github.com/JakeFAU/pinfetch/internal/cache/redis"
	"github.com/JakeFAU/pinfetch/internal/channel/telegram"
	"github.com/JakeFAU/pinfetch/internal/clock/system"
	"github.com/JakeFAU/pinfetch/internal/config"
	"github.com/JakeFAU/pinfetch/internal/dispatcher"
	"github.com/JakeFAU/pinfetch/internal/extractor"
	collyfetcher "github.com/JakeFAU/pinfetch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pinfetch/internal/fetcher/headless"
	"github.com/JakeFAU/pinfetch/internal/headless/detector"
	"github.com/JakeFAU/pinfetch/internal/id/uuid"
	"github.com/JakeFAU/pinfetch/internal/logging"
	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/metrics"
	"github.com/JakeFAU/pinfetch/internal/offload"
	"github.com/JakeFAU/pinfetch/internal/pipeline"
	"github.com/JakeFAU/pinfetch/internal/policy"
	"github.com/JakeFAU/pinfetch/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/pinfetch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pinfetch/internal/publisher/pubsub"
	"github.com/JakeFAU/pinfetch/internal/resolver"
	"github.com/JakeFAU/pinfetch/internal/telemetry"
)

const (
	redisPingTimeout      = 3 * time.Second
	shutdownTimeout       = 10 * time.Second
	tracerShutdownTimeout = 5 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	port     int
	handler  http.Handler
	pipeline *pipeline.Pipeline

	redis          *redisstore.Store
	headless       *headlessfetcher.Fetcher
	publisher      *gcppublisher.Publisher
	tracerShutdown func(context.Context) error
}

// NewApp creates an empty App; the Build functions fill it in.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	type sanitizedConfig struct {
		ServerPort  int    `json:"server_port"`
		OffloadPort int    `json:"offload_port"`
		SizePolicy  string `json:"size_policy"`
		Headless    bool   `json:"headless"`
		RedisCache  bool   `json:"redis_cache"`
	}
	logger.Info("creating application", zap.Any("config", sanitizedConfig{
		ServerPort:  cfg.Server.Port,
		OffloadPort: cfg.Offload.ListenPort,
		SizePolicy:  cfg.Delivery.SizePolicy,
		Headless:    cfg.Headless.Enabled,
		RedisCache:  cfg.Cache.RedisURL != "",
	}))
	return &App{cfg: cfg, logger: logger}
}

// Handler returns the HTTP handler the App serves.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Pipeline returns the request pipeline, or nil for the offload worker.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP and blocks until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	if a.handler == nil {
		return errors.New("app has no http handler")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure clients, flushes pending spans and the
// logger.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
		cancel()
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

// Build creates the webhook server: admission, the full pipeline, and the
// bot-facing HTTP routes.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app, err := newLoggedApp(cfg)
	if err != nil {
		return nil, err
	}
	app.port = cfg.Server.Port
	metrics.Init()
	if err := setupTracing(ctx, app); err != nil {
		return nil, err
	}

	deps, err := setupResolution(ctx, app)
	if err != nil {
		return nil, err
	}
	channel, err := setupChannel(app, cfg.RequestTimeout())
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	deps.Dispatcher = setupDispatcher(app, channel, deps.Fetcher)
	deps.Channel = channel
	deps.Publisher = publisher
	app.pipeline, err = pipeline.New(pipeline.Config{
		CacheTTL:          cfg.CacheTTL(),
		Topic:             cfg.PubSub.TopicName,
		SupportChannelURL: cfg.Delivery.SupportChannelURL,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	admission := policy.NewAdmission(cfg.Policy.BlockedChats, ratelimit.New(ratelimit.Config{
		RPS:   cfg.Policy.ChatRPS,
		Burst: cfg.Policy.ChatBurst,
	}))
	app.logger.Info("admission control",
		zap.Int("blocked_chats", len(cfg.Policy.BlockedChats)),
		zap.Float64("chat_rps", cfg.Policy.ChatRPS),
		zap.Int("chat_burst", cfg.Policy.ChatBurst),
	)

	apiServer := api.NewServer(api.Config{
		Token:          cfg.Telegram.Token,
		WebhookURL:     cfg.Telegram.WebhookURL,
		RequestTimeout: cfg.ServerRequestTimeout(),
	}, app.pipeline, admission, channel, channel, uuid.New(), app.logger)
	app.handler = apiServer.Handler()
	return app, nil
}

// BuildWorker creates the offload worker service.
func BuildWorker(ctx context.Context, cfg *config.Config) (*App, error) {
	app, err := newLoggedApp(cfg)
	if err != nil {
		return nil, err
	}
	app.port = cfg.Offload.ListenPort
	metrics.Init()
	if err := setupTracing(ctx, app); err != nil {
		return nil, err
	}

	channel, err := setupChannel(app, cfg.OffloadTimeout())
	if err != nil {
		return nil, err
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		Headers: cfg.IdentityHeaders(),
		Timeout: cfg.OffloadTimeout(),
	})
	worker := offload.NewServer(offload.ServerConfig{
		APIKey:  cfg.Offload.APIKey,
		Timeout: cfg.OffloadTimeout(),
	}, fetcher, channel, app.logger)
	if cfg.Offload.APIKey == "" {
		app.logger.Warn("offload worker runs without an api key")
	}
	app.handler = worker.Handler()
	return app, nil
}

// BuildResolve creates a pipeline that can describe links but not deliver
// them. It needs no bot credentials.
func BuildResolve(ctx context.Context, cfg *config.Config) (*App, error) {
	app, err := newLoggedApp(cfg)
	if err != nil {
		return nil, err
	}
	metrics.Init()
	deps, err := setupResolution(ctx, app)
	if err != nil {
		return nil, err
	}
	app.pipeline, err = pipeline.New(pipeline.Config{CacheTTL: cfg.CacheTTL()}, deps)
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return app, nil
}

func newLoggedApp(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return NewApp(cfg, logger), nil
}

func setupTracing(ctx context.Context, app *App) error {
	cfg := app.cfg.Telemetry
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		ProjectID:   cfg.ProjectID,
		SampleRatio: cfg.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	if cfg.ProjectID == "" {
		app.logger.Info("tracing enabled without exporter")
	} else {
		app.logger.Info("exporting traces to cloud trace", zap.String("project", cfg.ProjectID))
	}
	return nil
}

// setupResolution wires everything from cache lookup to extraction.
func setupResolution(ctx context.Context, app *App) (pipeline.Deps, error) {
	cfg := app.cfg
	headers := cfg.IdentityHeaders()

	fetcher := collyfetcher.New(collyfetcher.Config{
		Headers: headers,
		Timeout: cfg.RequestTimeout(),
	})
	app.logger.Info("using colly fetcher",
		zap.String("user_agent", headers.Get("User-Agent")),
		zap.Duration("timeout", cfg.RequestTimeout()),
	)

	cache, err := setupCache(ctx, app)
	if err != nil {
		return pipeline.Deps{}, err
	}

	ext := extractor.New()
	deps := pipeline.Deps{
		Cache: cache,
		Resolver: resolver.New(fetcher, resolver.Config{
			ProviderLabel: cfg.Provider.Domain,
			APIBase:       cfg.Provider.APIBase,
			Headers:       headers,
		}, app.logger.Named("resolver")),
		Fetcher:   fetcher,
		Extractor: ext,
		Logger:    app.logger,
	}

	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			Headers:           headers,
			NavigationTimeout: cfg.NavigationTimeout(),
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			app.headless = hf
			deps.Headless = hf
			deps.Detector = detector.NewStateMarker(ext)
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}
	return deps, nil
}

func setupCache(ctx context.Context, app *App) (media.Cache, error) {
	if app.cfg.Cache.RedisURL == "" {
		app.logger.Warn("no redis url configured, using in-memory cache")
		return memory.New(system.New()), nil
	}
	store, err := redisstore.NewFromURL(app.cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache init failed: %w", err)
	}
	app.redis = store

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		// Lookups degrade to misses while Redis is down.
		app.logger.Warn("redis unreachable at startup", zap.Error(err))
	}
	app.logger.Info("using redis cache", zap.Duration("ttl", app.cfg.CacheTTL()))
	return store, nil
}

func setupChannel(app *App, timeout time.Duration) (*telegram.Channel, error) {
	bot, err := telegram.NewBot(app.cfg.Telegram.Token, app.cfg.Telegram.APIEndpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	app.logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return telegram.New(bot, app.logger), nil
}

func setupDispatcher(app *App, channel media.Channel, fetcher media.Fetcher) *dispatcher.Dispatcher {
	cfg := app.cfg
	var offloader media.Offloader
	if cfg.Offload.URL != "" {
		offloader = offload.NewClient(offload.ClientConfig{
			URL:     cfg.Offload.URL,
			APIKey:  cfg.Offload.APIKey,
			Timeout: cfg.OffloadTimeout(),
		}, app.logger)
	} else if cfg.Delivery.SizePolicy == config.SizePolicyOffload {
		app.logger.Warn("offload policy without offload.url; refused videos will fail")
	}
	app.logger.Info("delivery config",
		zap.String("size_policy", cfg.Delivery.SizePolicy),
		zap.Int64("max_video_duration_ms", cfg.Delivery.MaxVideoDurationMS),
		zap.Bool("offload", offloader != nil),
	)
	return dispatcher.New(dispatcher.Config{
		SizePolicy:         dispatcher.SizePolicy(cfg.Delivery.SizePolicy),
		MaxVideoDurationMS: cfg.Delivery.MaxVideoDurationMS,
		SupportMessage:     cfg.SupportMessage(),
	}, channel, offloader, fetcher, app.logger)
}

func setupPublisher(ctx context.Context, app *App) (media.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no pub/sub topic configured, using in-memory publisher")
		return memorypublisher.New(0), nil
	}
	publisher, err := gcppublisher.NewFromProject(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.publisher = publisher
	app.logger.Info("pub/sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return publisher, nil
}
