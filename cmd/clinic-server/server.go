package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dentaldesk/clinic/internal/config"
	"github.com/dentaldesk/clinic/internal/domain/billing"
	"github.com/dentaldesk/clinic/internal/domain/catalog"
	"github.com/dentaldesk/clinic/internal/domain/dashboard"
	"github.com/dentaldesk/clinic/internal/domain/identity"
	"github.com/dentaldesk/clinic/internal/domain/imaging"
	"github.com/dentaldesk/clinic/internal/domain/patient"
	"github.com/dentaldesk/clinic/internal/domain/scheduling"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/blobstore"
	"github.com/dentaldesk/clinic/internal/platform/db"
	"github.com/dentaldesk/clinic/internal/platform/middleware"
	"github.com/dentaldesk/clinic/internal/platform/websocket"
)

const (
	relayChannel     = "clinic:events"
	revocationPrefix = "clinic:revoked:"
	requestTimeout   = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
	defaultBodyLimit = "1M"
)

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis is optional; without it revocations and events stay in-process
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = db.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		logger.Info().Msg("connected to redis")
	}

	hub := websocket.NewHub(logger)
	var publisher websocket.EventPublisher = hub
	var revocations auth.RevocationStore
	if rdb != nil {
		relay := websocket.NewRedisRelay(rdb, relayChannel, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("event relay stopped")
			}
		}()
		publisher = relay
		revocations = auth.NewRedisRevocationStore(rdb, revocationPrefix, cfg.TokenTTL())
	} else {
		store := auth.NewTokenRevocationStore(cfg.TokenTTL())
		defer store.Close()
		revocations = store
	}
	notifier := websocket.NewNotifier(publisher, logger)

	// Services
	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL())
	identitySvc := identity.NewService(identity.NewUserRepo(pool), issuer, revocations, logger)
	catalogSvc := catalog.NewService(catalog.NewProcedureRepo(pool), logger)
	patientSvc := patient.NewService(patient.NewPatientRepo(pool), identitySvc)
	billingSvc := billing.NewService(billing.NewHistoryRepo(pool), billing.NewPaymentRepo(pool),
		patientSvc, catalogSvc, notifier, logger)
	patientSvc.SetLedgerSource(billingSvc)
	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepo(pool),
		patientSvc, identitySvc, billingSvc, notifier, loc)
	blobs := blobstore.NewPGStore(pool, blobstore.Limits{
		MaxBytes:     cfg.XRayMaxBytes,
		ContentTypes: imaging.AllowedContentTypes,
	})
	imagingSvc := imaging.NewService(blobs, patientSvc, notifier)
	dashboardSvc := dashboard.NewService(dashboard.NewPGLoader(pool), loc)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	jwtCfg := auth.JWTConfig{
		Issuer:      cfg.JWTIssuer,
		SigningKey:  []byte(cfg.JWTSecret),
		Revocations: revocations,
		Logger:      logger,
	}
	useMiddleware(e, cfg, jwtCfg, pool, logger)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, redisOrNil(rdb)))

	api := e.Group("/api")
	identity.NewHandler(identitySvc).RegisterRoutes(api)
	auth.RegisterRevocationRoutes(api, revocations)
	catalog.NewHandler(catalogSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	billing.NewHandler(billingSvc).RegisterRoutes(api)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)
	imaging.NewHandler(imagingSvc).RegisterRoutes(api)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(api)

	canAccessPatient := func(ctx context.Context, tenant, id string) bool {
		var ok bool
		err := db.WithTenantConn(ctx, pool, tenant, func(ctx context.Context) error {
			ok = patientSvc.CanAccess(ctx, id)
			return nil
		})
		return err == nil && ok
	}
	websocket.NewWebSocketHandler(hub, topicAuthorizer(canAccessPatient), cfg.CORSOrigins, logger).
		RegisterRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func useMiddleware(e *echo.Echo, cfg *config.Config, jwtCfg auth.JWTConfig, pool *pgxpool.Pool, logger zerolog.Logger) {
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(defaultBodyLimit, fmt.Sprint(cfg.XRayMaxBytes+64<<10)))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}

	// Auth before rate limiting so buckets are keyed by user
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(middleware.Audit(logger))
}

// redisOrNil keeps a nil *redis.Client from becoming a non-nil interface.
func redisOrNil(rdb *redis.Client) redis.UniversalClient {
	if rdb == nil {
		return nil
	}
	return rdb
}

// topicAuthorizer gates websocket subscriptions. The dashboard topic carries
// payment amounts, so it needs the finance capability. A patient topic needs
// the same access as the patient's REST endpoints.
func topicAuthorizer(canAccessPatient func(ctx context.Context, tenant, id string) bool) websocket.TopicAuthorizer {
	return func(ctx context.Context, topic string) bool {
		role := auth.RoleFromContext(ctx)
		if !role.Valid() {
			return false
		}
		switch {
		case topic == websocket.TopicDashboard:
			return role.Can(auth.CapViewClinicFinance)
		case topic == websocket.TopicSchedule:
			return true
		case strings.HasPrefix(topic, "patient/"):
			id := strings.TrimPrefix(topic, "patient/")
			return id != "" && canAccessPatient(ctx, db.TenantFromContext(ctx), id)
		}
		return false
	}
}
