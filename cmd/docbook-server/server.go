package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/config"
	"github.com/docbook/docbook/internal/domain/directory"
	"github.com/docbook/docbook/internal/domain/scheduling"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/db"
	"github.com/docbook/docbook/internal/platform/events"
	"github.com/docbook/docbook/internal/platform/middleware"
	"github.com/docbook/docbook/internal/platform/telemetry"
	"github.com/docbook/docbook/internal/platform/validate"
)

const version = "0.1.0"

// store is the persistence backend chosen by STORE_DRIVER. pool is nil for
// the in-memory store.
type store struct {
	doctors directory.DoctorRepository
	appts   scheduling.AppointmentRepository
	pool    *pgxpool.Pool
}

func (s *store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return &store{
			doctors: directory.NewMemoryRepo(),
			appts:   scheduling.NewMemoryRepo(),
		}, nil
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &store{
		doctors: directory.NewDoctorRepoPG(pool),
		appts:   scheduling.NewAppointmentRepoPG(pool),
		pool:    pool,
	}, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "docbook",
	})
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).Level(cfg.Level()).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(cfg.Level()).With().Timestamp().Logger()
	}
	return logger
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

// services are the domain services behind the HTTP API.
type services struct {
	directory  *directory.Service
	scheduling *scheduling.Service
}

func newServices(cfg *config.Config, logger zerolog.Logger, st *store, publisher events.Publisher) (*services, error) {
	clinic, err := cfg.ClinicLocation()
	if err != nil {
		return nil, err
	}
	dirSvc := directory.NewService(st.doctors, clinic)
	schedSvc := scheduling.NewService(bookingDirectory{svc: dirSvc}, st.appts,
		scheduling.WithWindowDays(cfg.SlotWindowDays),
		scheduling.WithPublisher(publisher),
		scheduling.WithLogger(logger.With().Str("component", "scheduling").Logger()),
	)
	return &services{directory: dirSvc, scheduling: schedSvc}, nil
}

// newServer builds the echo instance with middleware and every route.
func newServer(cfg *config.Config, logger zerolog.Logger, st *store, hub *events.Hub, publisher events.Publisher) (*echo.Echo, error) {
	metrics := telemetry.NewMetrics(runtimeGauges(st, hub)...)
	svcs, err := newServices(cfg, logger, st, metrics.Publisher(publisher))
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	// Auth middleware
	jwtCfg := jwtConfig(cfg)
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Audit(logger))

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"store":   cfg.StoreDriver,
		})
	})
	if st.pool != nil {
		pool := st.pool
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	}
	e.GET("/metrics", metrics.Handler(), auth.RequireRole(auth.RoleAdmin))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	api := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))

	directory.NewHandler(svcs.directory).RegisterRoutes(api)
	scheduling.NewHandler(svcs.scheduling, cfg.CurrencySymbol).RegisterRoutes(api)
	events.NewHandler(hub, topicPolicy).RegisterRoutes(e)

	return e, nil
}

func runtimeGauges(st *store, hub *events.Hub) []telemetry.Gauge {
	gauges := []telemetry.Gauge{{
		Name:  "websocket_clients",
		Help:  "Connected websocket clients.",
		Value: func() float64 { return float64(hub.ClientCount()) },
	}}
	if pool := st.pool; pool != nil {
		gauges = append(gauges,
			telemetry.Gauge{
				Name:  "db_pool_acquired_connections",
				Help:  "Database connections in use.",
				Value: func() float64 { return float64(pool.Stat().AcquiredConns()) },
			},
			telemetry.Gauge{
				Name:  "db_pool_idle_connections",
				Help:  "Idle database connections.",
				Value: func() float64 { return float64(pool.Stat().IdleConns()) },
			},
		)
	}
	return gauges
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer st.Close()
	logger.Info().Str("store", cfg.StoreDriver).Msg("store ready")
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn().Msg("in-memory store: bookings are lost on restart and not shared between instances")
	}

	hub := events.NewHub(logger.With().Str("component", "events").Logger())
	var publisher events.Publisher = hub
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		bridge := events.NewRedisBridge(client, hub, logger)
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("event bridge stopped")
			}
		}()
	}

	e, err := newServer(cfg, logger, st, hub, publisher)
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
