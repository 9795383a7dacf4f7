package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hans/hans/internal/config"
	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/domain/carerecipient"
	"github.com/hans/hans/internal/platform/auth"
	"github.com/hans/hans/internal/platform/db"
	"github.com/hans/hans/internal/platform/flash"
	"github.com/hans/hans/internal/platform/managementapi"
	"github.com/hans/hans/internal/platform/metrics"
	"github.com/hans/hans/internal/platform/middleware"
	"github.com/hans/hans/internal/platform/pseudonym"
)

const version = "0.1.0"

type services struct {
	providers  *careprovider.Service
	recipients *carerecipient.Service
}

func newServices(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, reg prometheus.Registerer) (*services, error) {
	m := metrics.New(reg)

	gateway, err := managementapi.NewClient(cfg.ManagementAPI(),
		managementapi.WithLogger(logger.With().Str("component", "managementapi").Logger()),
		managementapi.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	var beginner db.Beginner
	if pool != nil {
		beginner = pool
	}
	providers := careprovider.NewService(beginner,
		careprovider.NewManagerRepo(pool), careprovider.NewLocationRepo(pool), logger)

	recipients, err := carerecipient.NewService(
		carerecipient.NewRepo(pool),
		providers,
		pseudonym.NewHasher(cfg.HashingMode()),
		gateway,
		carerecipient.WithLogger(logger),
		carerecipient.WithMetrics(m),
		carerecipient.WithMaxImportLines(cfg.CSVImportMaxLines),
	)
	if err != nil {
		return nil, err
	}
	return &services{providers: providers, recipients: recipients}, nil
}

// newFlashStore uses Redis when REDIS_URL is set so every instance sees the
// same queue.
func newFlashStore(ctx context.Context, cfg *config.Config) (flash.Store, func(), error) {
	if cfg.RedisURL == "" {
		return flash.NewMemoryStore(flash.DefaultLimit), func() {}, nil
	}
	client, err := flash.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return flash.NewRedisStore(client), func() { _ = client.Close() }, nil
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(), nil
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	})
}

func newServer(cfg *config.Config, logger zerolog.Logger, svcs *services, store flash.Store, pinger db.Pinger, reg *prometheus.Registry) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", cfg.ImportMaxUpload))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"hashing": cfg.HashingMode().String(),
		})
	})
	e.GET("/health/db", db.HealthHandler(pinger))

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, fmt.Errorf("auth middleware: %w", err)
	}
	apiV1 := e.Group("/api/v1", authMW, middleware.Audit(logger))

	careprovider.NewHandler(svcs.providers).RegisterRoutes(apiV1)
	carerecipient.NewHandler(svcs.recipients, store).RegisterRoutes(apiV1)
	apiV1.GET("/messages", flash.PopHandler(store))

	return e, nil
}

var insecureBanner = []string{
	"****************************************************************",
	"WARNING: NHS numbers are hashed with the insecure work factors.",
	"Pseudonyms produced in this mode can be reversed by brute force.",
	"Never run with this setting against real patient data.",
	"****************************************************************",
}

// warnIfInsecure makes the fast hashing mode impossible to miss in the logs.
func warnIfInsecure(logger zerolog.Logger, cfg *config.Config) {
	if cfg.HashingMode() != pseudonym.ModeInsecure {
		return
	}
	for _, line := range insecureBanner {
		logger.Warn().Str("env", pseudonym.InsecureSentinelEnv).Msg(line)
	}
}

func writeTemplate(path string) error {
	buf, err := carerecipient.ImportTemplate()
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
