package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/conversation"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/notifications"
	"github.com/Ramsey-B/clover/pkg/profiles"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

// infra is what the startup graph brings up. redis and kafka stay nil when
// they are switched off.
type infra struct {
	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	tp, err := exporters.NewTracerProvider(ctx, cfg.AppName, exporters.OTLPConfig{
		Enabled:  cfg.OTLPEnabled,
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	in := &infra{}
	deps := startupGraph(cfg, logger, in)
	if err := deps.Start(ctx); err != nil {
		return err
	}

	e, checker, err := newServer(ctx, cfg, logger, in)
	if err != nil {
		_ = deps.Stop(context.Background())
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-serverErr:
		logger.WithError(err).Error("HTTP server failed")
	}
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.WithError(shutdownErr).Error("Failed to drain HTTP server")
	}
	if stopErr := deps.Stop(shutdownCtx); stopErr != nil {
		logger.WithError(stopErr).Error("Failed to stop dependencies")
	}
	if tpErr := tp.Shutdown(shutdownCtx); tpErr != nil {
		logger.WithError(tpErr).Warn("Failed to flush traces")
	}
	return err
}

func startupGraph(cfg *config.Config, logger ectologger.Logger, in *infra) *startup.Startup {
	deps := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	deps.AddDependency(&startup.Dependency{
		Name: "postgres",
		OnStart: func(ctx context.Context) error {
			db, err := database.Connect(ctx, connectionConfig(cfg), logger)
			if err != nil {
				return err
			}
			in.db = db
			return nil
		},
		OnStop: func(context.Context) error {
			if in.db == nil {
				return nil
			}
			return in.db.Close()
		},
	})

	if cfg.DatabaseMigrateOnStart {
		deps.AddDependency(&startup.Dependency{
			Name:     "migrations",
			Requires: []string{"postgres"},
			OnStart: func(context.Context) error {
				return migrationService(cfg, logger).MigratePostgres(in.db, cfg.DatabaseName)
			},
		})
	}

	if cfg.RedisEnabled {
		deps.AddDependency(&startup.Dependency{
			Name: "redis",
			OnStart: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				in.redis = client
				return nil
			},
			OnStop: func(context.Context) error {
				if in.redis == nil {
					return nil
				}
				return in.redis.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		deps.AddDependency(&startup.Dependency{
			Name: "kafka",
			OnStart: func(context.Context) error {
				in.producer = kafka.NewProducer(kafka.Config{
					Brokers: kafka.ParseBrokers(cfg.KafkaBrokers),
					Topic:   cfg.KafkaEventsTopic,
				}, logger)
				return nil
			},
			OnStop: func(context.Context) error {
				if in.producer == nil {
					return nil
				}
				return in.producer.Close()
			},
		})
	}

	return deps
}

func newServer(ctx context.Context, cfg *config.Config, logger ectologger.Logger, in *infra) (*echo.Echo, *health.Checker, error) {
	policy := gate.DefaultPolicy()
	if cfg.GatePolicyFile != "" {
		loaded, err := gate.LoadPolicy(cfg.GatePolicyFile)
		if err != nil {
			return nil, nil, err
		}
		policy = loaded
	}
	policy.FailClosed = policy.FailClosed || cfg.GateFailClosed

	profileRepo := repositories.NewProfileRepository(in.db, logger)
	blockRepo := repositories.NewBlockRepository(in.db, logger)
	threadRepo := repositories.NewThreadRepository(in.db, logger)
	messageRepo := repositories.NewMessageRepository(in.db, logger)
	requestRepo := repositories.NewAccessRequestRepository(in.db, logger)
	for _, repo := range []interface{ SetQueryTimeout(time.Duration) }{profileRepo, blockRepo, threadRepo, messageRepo, requestRepo} {
		repo.SetQueryTimeout(cfg.DatabaseQueryTimeout)
	}
	tx := database.NewTransactor(in.db)

	var (
		events         profiles.Publisher
		badgeCache     notifications.Cache
		convOpts       []conversation.Option
		accessOpts     []access.Option
		readinessCheck = health.NewChecker(Version).Require("postgres", health.PingFunc(in.db.PingContext))
	)
	if in.producer != nil {
		events = in.producer
		accessOpts = append(accessOpts, access.WithPublisher(in.producer))
	}
	if in.redis != nil {
		cache := redis.NewBadgeCache(in.redis, cfg.BadgeCacheTTL)
		badgeCache = cache
		convOpts = append(convOpts, conversation.WithBadgeInvalidator(cache))
		accessOpts = append(accessOpts, access.WithBadgeInvalidator(cache))
		if cfg.MessageRateLimit > 0 {
			limiter := redis.NewRateLimiter(in.redis, "", int64(cfg.MessageRateLimit), cfg.MessageRateWindow)
			convOpts = append(convOpts, conversation.WithRateLimiter(limiter))
		}
		if cfg.ReviewLockEnabled {
			accessOpts = append(accessOpts, access.WithReviewLocker(redis.NewLocker(in.redis, "")))
		}
		readinessCheck.Optional("redis", in.redis)
	}

	profileSvc := profiles.NewService(logger, profileRepo, blockRepo, events)
	conv := conversation.NewService(logger, tx, threadRepo, messageRepo, blockRepo, convOpts...)
	accessSvc := access.NewService(logger, tx, requestRepo, profileRepo, blockRepo, conv, accessOpts...)
	aggregator := notifications.NewAggregator(logger, conv, requestRepo, badgeCache)

	auth, err := authMiddleware(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	handlers.Mount(e, handlers.Deps{
		Logger:        logger,
		Gate:          gate.New(policy),
		Profiles:      profileSvc,
		Conversations: conv,
		Access:        accessSvc,
		Badges:        aggregator,
	}, auth)
	readinessCheck.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e, readinessCheck, nil
}

type authMode int

const (
	authOIDC authMode = iota
	authTrustedHeaders
)

// selectAuthMode picks how callers are identified. Header trust is never a
// fallback: it needs AUTH_ENABLED=false and AUTH_TRUST_HEADERS=true together.
func selectAuthMode(cfg *config.Config) (authMode, error) {
	switch {
	case cfg.AuthEnabled:
		return authOIDC, nil
	case cfg.AuthTrustHeaders:
		return authTrustedHeaders, nil
	default:
		return 0, errors.New("AUTH_ENABLED is false and AUTH_TRUST_HEADERS is not set, refusing to serve without authentication")
	}
}

func authMiddleware(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (echo.MiddlewareFunc, error) {
	mode, err := selectAuthMode(cfg)
	if err != nil {
		return nil, err
	}
	if mode == authTrustedHeaders {
		logger.Warn("Authentication is disabled, trusting identity headers")
		return middleware.TrustedHeaders(logger), nil
	}

	if cfg.AuthIssuerURL == "" {
		return nil, errors.New("AUTH_ISSUER_URL is required when AUTH_ENABLED is true")
	}
	verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID, cfg.AuthStaffExpression)
	if err != nil {
		return nil, err
	}
	return middleware.Authentication(logger, verifier), nil
}
