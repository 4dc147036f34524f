package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dideher/secondments/pkg/audit"
	"github.com/dideher/secondments/pkg/auth"
	"github.com/dideher/secondments/pkg/cas"
	"github.com/dideher/secondments/pkg/config"
	"github.com/dideher/secondments/pkg/httputil"
	"github.com/dideher/secondments/pkg/middleware"
	"github.com/dideher/secondments/pkg/observability"
	"github.com/dideher/secondments/pkg/session"
	"github.com/dideher/secondments/pkg/storage"
	"github.com/dideher/secondments/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting secondments auth service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Storage
	db, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Storage.PostgresURL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Storage.PostgresReplicaURLs),
		MaxConns:    cfg.Storage.PostgresMaxConns,
		MinConns:    cfg.Storage.PostgresMinConns,
		Timeout:     cfg.Storage.PostgresTimeout,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := storage.NewRedisClient(cfg.Storage.RedisURL, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	// Stores
	users := auth.NewPostgresUserStore(db.Primary())
	sessions := session.NewCachedStore(
		session.NewRedisStore(redisClient, cfg.Storage.SessionTTL, logger),
		cfg.Storage.CacheSize, cfg.Storage.CacheTTL, metrics)
	cookies := session.NewCookieManager(cfg.Storage.SessionCookie, cfg.Storage.SessionTTL, false)
	ledger := cas.NewSessionTicketLedger(db.Primary(), logger, metrics)

	// Events: audit trail plus last-login stamping
	broker := cas.NewEventBroker()
	auditSink := audit.NewMultiLogger(logger,
		audit.NewDBLogger(db.Primary(), logger),
		audit.NewLogSink(logger))
	broker.Subscribe(audit.NewBrokerListener(auditSink, logger))
	broker.Subscribe(cas.ListenerFunc(func(ctx context.Context, event *cas.Event) {
		if event.Type != cas.EventAuthenticated || event.User == nil {
			return
		}
		if err := users.TouchLastLogin(ctx, event.User.ID, event.OccurredAt); err != nil {
			logger.WithError(err).Warn("failed to stamp last login")
		}
	}))

	// Protocol components
	signer := cas.NewSignatureGenerator(cfg.CAS.AppName, cfg.CAS.SecretKey)
	endpoints := cas.NewProviderEndpoints(cfg.CAS.ProviderURL, cfg.CAS.AppName)
	resolver := cas.NewRedirectResolver(cfg.CAS.RedirectURL, cfg.CAS.IgnoreReferer, cfg.CAS.CheckNext)
	verifier := cas.NewTicketVerifier(signer, endpoints.VerifyURL(), cfg.CAS.VerifyTimeout, logger, metrics)
	binder := cas.NewIdentityBinder(users, cfg.CAS, broker, logger)
	handlers := cas.NewHandlers(cfg.CAS, signer, resolver, endpoints, verifier, binder,
		ledger, sessions, cookies, broker, logger, metrics)

	// Routing
	sessionAuth := middleware.NewSessionAuth(sessions, cookies, users, logger)
	router := mux.NewRouter()
	router.Use(middleware.RequestID(logger))
	handlers.RegisterRoutes(router)
	router.Handle("/accounts/me", sessionAuth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, middleware.UserFromContext(r.Context()))
	}))).Methods(http.MethodGet)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "secondments"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes and scrapes
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := db.HealthCheck(checkCtx); err != nil {
			httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if err := redisClient.Ping(checkCtx).Err(); err != nil {
			httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler(registry))
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	// Background maintenance
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.CAS.CleanupSchedule, func() {
		defer observability.RecoverPanic(logger, "orphan sweep")
		sweepCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := ledger.CleanupOrphans(sweepCtx, sessions); err != nil {
			logger.WithError(err).Error("orphan sweep failed")
		}
		db.UpdateMetrics(metrics)
	})
	if err != nil {
		logger.WithError(err).Error("invalid cleanup schedule")
		os.Exit(1)
	}
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("http server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		scheduler.Stop()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("http server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("health server shutdown failed")
		}
		return observability.ShutdownOTel(shutdownCtx, tp, logger)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
