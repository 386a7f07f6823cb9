// Command heraldd runs the Herald management API as a standalone service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald"
	"github.com/xraph/herald/api"
	"github.com/xraph/herald/auth"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/memory"
	redisstore "github.com/xraph/herald/store/redis"
)

func main() {
	configPath := flag.String("config", os.Getenv("HERALD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("heraldd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := append(cfg.ToHeraldOptions(),
		herald.WithStore(st),
		herald.WithLogger(logger),
		herald.WithTracer(observability.NewTracer()),
	)

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, herald.WithMetrics(observability.NewMetrics(reg)))
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	h, err := herald.New(opts...)
	if err != nil {
		return fmt.Errorf("create herald: %w", err)
	}

	authn, err := newAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}
	mux.Handle("/", api.NewHandler(h, authn, logger))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening",
			"addr", cfg.Server.Addr,
			"store", cfg.Store.Type,
			"auth", cfg.Auth.Mode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Herald.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server forced to shutdown", "error", err)
	}
	if err := h.Stop(shutdownCtx); err != nil {
		logger.Error("in-flight deliveries abandoned", "error", err)
	}

	logger.Info("heraldd exited gracefully")
	return nil
}

func newLogger(cfg LogConfig) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, hopts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, hopts))
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	var st store.Store
	switch cfg.Type {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		st = redisstore.NewFromClient(rdb)
	default:
		st = memory.New()
	}

	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Type, err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Type, err)
	}
	return st, nil
}

func newAuthenticator(cfg AuthConfig) (api.Authenticator, error) {
	switch cfg.Mode {
	case "jwt":
		var opts []auth.JWTOption
		if cfg.JWTIssuer != "" {
			opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
		}
		return auth.NewJWTAuthenticator([]byte(cfg.JWTSecret), opts...), nil
	case "header":
		return auth.HeaderAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
