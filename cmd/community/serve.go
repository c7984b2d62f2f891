package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/totegamma/community-server/internal/config"
	"github.com/totegamma/community-server/internal/infra/cache"
	"github.com/totegamma/community-server/internal/infra/database"
	"github.com/totegamma/community-server/internal/infra/repository"
	"github.com/totegamma/community-server/internal/metrics"
	"github.com/totegamma/community-server/internal/present/rest"
	"github.com/totegamma/community-server/internal/present/socket"
	"github.com/totegamma/community-server/internal/service"
	"github.com/totegamma/community-server/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		dataDir    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the community server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				conf = loaded
			}
			if listen != "" {
				conf.Server.Listen = listen
			}
			if dataDir != "" {
				conf.Server.DataDir = dataDir
			}
			if err := conf.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory (overrides server.dataDir)")
	return cmd
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func serve(ctx context.Context, conf config.Config) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(conf.Server.LogLevel),
	})))

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer shutdown(context.Background())
	}

	checks := map[string]rest.HealthCheck{}

	var records usecase.RecordRepository
	switch conf.Server.RecordStore {
	case config.RecordStorePostgres:
		db, err := database.NewPostgres(conf.Server.PostgresDsn)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := database.MigratePostgres(db); err != nil {
			return fmt.Errorf("migrating postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		checks["postgres"] = sqlDB.PingContext
		records = repository.NewPostgresRecordRepository(db)
	default:
		fsRecords, err := repository.NewFileRecordRepository(filepath.Join(conf.Server.DataDir, "structs"))
		if err != nil {
			return err
		}
		records = fsRecords
	}

	logs, err := repository.NewFileActivityRepository(
		filepath.Join(conf.Server.DataDir, "log"),
		conf.Community.ReadChunkSize,
	)
	if err != nil {
		return err
	}
	checks["dataDir"] = func(ctx context.Context) error {
		_, err := os.Stat(conf.Server.DataDir)
		return err
	}

	var utterances usecase.UtteranceCache
	if conf.Server.MemcachedAddr != "" {
		mc := database.NewMemcached(conf.Server.MemcachedAddr)
		checks["memcached"] = func(ctx context.Context) error {
			return mc.Ping()
		}
		utterances = cache.NewMemcachedCache(mc, conf.Community.CacheTTL)
	} else {
		utterances = cache.NewLocalCache(conf.Community.CacheTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	hub := socket.NewHub(m)

	if conf.Server.RedisAddr != "" {
		rdb, err := database.NewRedis(ctx, conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}

		hub.UseSignal(service.NewSignalService(rdb, service.DefaultSignalChannel))
		done, err := hub.Start(ctx)
		if err != nil {
			return fmt.Errorf("subscribing to the signal channel: %w", err)
		}
		go func() {
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				slog.Error(
					"Signal subscription ended",
					slog.String("error", err.Error()),
					slog.String("module", "main"),
				)
			}
		}()
	}

	clock := usecase.RealClock{}
	activity := usecase.NewActivityUsecase(logs, utterances, clock).
		WithReplayLimits(conf.Community.ReplayIdentities, conf.Community.ReplayUtterances)
	communityUC := usecase.NewCommunityUsecase(
		usecase.NewRecordUsecase(records, clock),
		activity,
		hub,
	)

	e := echo.New()
	e.HideBanner = true
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName, otelecho.WithSkipper(func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/healthz"
		})))
	}
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(conf.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: conf.Server.AllowedOrigins,
		}))
	} else {
		e.Use(middleware.CORS())
	}

	handler := rest.NewHandler(
		socket.NewServer(hub, communityUC, m),
		reg,
		conf.Server.AllowedOrigins,
		checks,
	)
	handler.RegisterRoutes(e)

	slog.Info(
		"Starting community server",
		slog.String("listen", conf.Server.Listen),
		slog.String("recordStore", conf.Server.RecordStore),
		slog.Bool("redis", conf.Server.RedisAddr != ""),
		slog.String("module", "main"),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(conf.Server.Listen)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
