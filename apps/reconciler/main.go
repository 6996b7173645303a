package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	accesshandler "github.com/netpesa/hotspot-billing/domains/access/be/handler"
	accessrepo "github.com/netpesa/hotspot-billing/domains/access/be/repo"
	accessscheduler "github.com/netpesa/hotspot-billing/domains/access/be/scheduler"
	accessservice "github.com/netpesa/hotspot-billing/domains/access/be/service"
	tenantsrepo "github.com/netpesa/hotspot-billing/domains/tenants/be/repo"
	tenantsservice "github.com/netpesa/hotspot-billing/domains/tenants/be/service"
	platformauth "github.com/netpesa/hotspot-billing/platform/go/auth"
	platformlogging "github.com/netpesa/hotspot-billing/platform/go/logging"
	platformmiddleware "github.com/netpesa/hotspot-billing/platform/go/middleware"
	"github.com/netpesa/hotspot-billing/platform/go/persistence"
	"github.com/netpesa/hotspot-billing/platform/go/routeraccess"
	"github.com/netpesa/hotspot-billing/platform/go/sms"
	"github.com/netpesa/hotspot-billing/platform/go/storage"
)

type config struct {
	Port              string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	OpsAPITokens      string        `env:"OPS_API_TOKENS"`
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DatabaseSchema    string        `env:"DATABASE_SCHEMA" envDefault:"hotspot"`
	DBConnectAttempts uint          `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	BootstrapSchema   bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`

	Schedule     string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 5m"`
	CallTimeout  time.Duration `env:"RECONCILE_CALL_TIMEOUT" envDefault:"10s"`
	Workers      int           `env:"RECONCILE_WORKERS" envDefault:"4"`
	NotifyLegacy bool          `env:"RECONCILE_NOTIFY_LEGACY" envDefault:"true"`

	LegacyRouterID      string `env:"LEGACY_ROUTER_ID"`
	LegacyRouterName    string `env:"LEGACY_ROUTER_NAME" envDefault:"legacy"`
	LegacyRouterAddress string `env:"LEGACY_ROUTER_ADDRESS"`

	RouterAgentURL   string `env:"ROUTER_AGENT_URL,required"`
	RouterAgentToken string `env:"ROUTER_AGENT_TOKEN"`

	SMSGatewayURL string `env:"SMS_GATEWAY_URL"`
	SMSAPIKey     string `env:"SMS_API_KEY"`
	SMSSenderID   string `env:"SMS_SENDER_ID"`
	ExpiryMessage string `env:"EXPIRY_MESSAGE"`

	ReportBackend     string `env:"REPORT_BACKEND" envDefault:"local"`             // local | gcs | none
	ReportBucket      string `env:"REPORT_BUCKET"`                                 // required when REPORT_BACKEND=gcs
	ReportPrefix      string `env:"REPORT_PREFIX"`                                 // optional object key prefix
	ReportGCSEndpoint string `env:"REPORT_GCS_ENDPOINT"`                           // optional, e.g. a fake-gcs-server URL
	ReportLocalDir    string `env:"REPORT_LOCAL_DIR" envDefault:"./.data/reports"` // used when REPORT_BACKEND=local
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "access-reconciler",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		ConnectAttempts: cfg.DBConnectAttempts,
		ConnectDelay:    time.Second,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapSchema {
		if err := persistence.BootstrapSchema(ctx, pool, cfg.DatabaseSchema); err != nil {
			logger.Fatal("bootstrap schema", zap.Error(err))
		}
	}

	db := persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: cfg.DatabaseSchema})

	tenantStore, err := persistence.NewTenantStore(db)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	tenantService := tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore))

	grantStore, err := persistence.NewGrantStore(db)
	if err != nil {
		logger.Fatal("init grant store", zap.Error(err))
	}

	legacyRouter, err := buildLegacyRouter(cfg)
	if err != nil {
		logger.Fatal("invalid legacy router config", zap.Error(err))
	}
	if legacyRouter == nil {
		logger.Warn("no legacy router configured; grants without a tenant are only deactivated locally")
	}

	var notifier accessservice.Notifier = sms.Disabled{}
	if strings.TrimSpace(cfg.SMSGatewayURL) != "" {
		notifier = sms.New(sms.Config{
			BaseURL:       cfg.SMSGatewayURL,
			APIKey:        cfg.SMSAPIKey,
			SenderID:      cfg.SMSSenderID,
			ExpiryMessage: cfg.ExpiryMessage,
			Timeout:       cfg.CallTimeout,
		})
	} else {
		logger.Warn("SMS_GATEWAY_URL not set; expiry notices will be counted as failed")
	}

	accessService := accessservice.New(
		accessrepo.NewPostgresRepository(grantStore),
		accessservice.Deps{
			Tenants: tenantService,
			Routers: routeraccess.New(routeraccess.Config{
				BaseURL: cfg.RouterAgentURL,
				Token:   cfg.RouterAgentToken,
				Timeout: cfg.CallTimeout,
			}),
			Notifier: notifier,
		},
		accessservice.Config{
			CallTimeout:  cfg.CallTimeout,
			Workers:      cfg.Workers,
			LegacyRouter: legacyRouter,
			NotifyLegacy: cfg.NotifyLegacy,
		},
		logger,
	)

	var archive storage.Writer
	switch cfg.ReportBackend {
	case "gcs":
		if cfg.ReportBucket == "" {
			logger.Fatal("report bucket required when REPORT_BACKEND=gcs")
		}
		gcsClient, err := storage.NewGCSClient(ctx, cfg.ReportGCSEndpoint)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
		archive = storage.NewGCSWriter(gcsClient, cfg.ReportBucket, cfg.ReportPrefix)
	case "local":
		if strings.TrimSpace(cfg.ReportLocalDir) == "" {
			logger.Fatal("report local dir required when REPORT_BACKEND=local")
		}
		archive = storage.NewLocalWriter(cfg.ReportLocalDir, cfg.ReportPrefix)
	case "none":
		archive = storage.Discard{}
	default:
		logger.Fatal("invalid REPORT_BACKEND (use gcs, local or none)", zap.String("backend", cfg.ReportBackend))
	}

	runner := accessscheduler.NewRunner(accessscheduler.RunnerConfig{
		Reconciler: accessService,
		Archive:    archive,
		Logger:     logger,
	})

	sched := accessscheduler.New(runner, logger)
	if err := sched.Start(ctx, cfg.Schedule); err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}

	accessHTTPHandler := accesshandler.New(runner, accessService, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readyHandler(pool))

	contract, err := accesshandler.LoadContract()
	if err != nil {
		logger.Fatal("load ops contract", zap.Error(err))
	}

	apiRouter := chi.NewRouter()
	tokens := platformauth.ParseTokens(cfg.OpsAPITokens)
	if len(tokens) > 0 {
		apiRouter.Use(platformauth.RequireToken(tokens))
	} else {
		logger.Warn("OPS_API_TOKENS not set; ops API is unauthenticated")
	}
	apiRouter.Use(platformmiddleware.NewSpecValidator(contract, platformmiddleware.OperatorAuthentication(len(tokens) > 0)))
	accessHTTPHandler.Routes(apiRouter)
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting reconciler ops server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler did not stop in time", zap.Error(err))
	}
}

func buildLegacyRouter(cfg config) (*tenantsservice.Router, error) {
	address := strings.TrimSpace(cfg.LegacyRouterAddress)
	if address == "" {
		return nil, nil
	}

	id := uuid.Nil
	if raw := strings.TrimSpace(cfg.LegacyRouterID); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	return &tenantsservice.Router{ID: id, Name: cfg.LegacyRouterName, Address: address}, nil
}

func readyHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
