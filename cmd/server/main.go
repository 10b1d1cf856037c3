package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"nle-playback/internal/platform/config"
	"nle-playback/internal/platform/logger"
	"nle-playback/internal/platform/metrics"
	"nle-playback/internal/playback"
	"nle-playback/internal/proxycache"
	"nle-playback/internal/timeline"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var demo bool

	root := &cobra.Command{
		Use:          "nle-playback",
		Short:        "Playback core of a non-linear video editor",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(demo)
		},
	}
	root.PersistentFlags().BoolVar(&demo, "demo", false, "load a demo project of simulated media")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the playback session and its HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(demo)
		},
	})
	return root
}

func serve(demo bool) error {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	var logFile *logger.FileOptions
	if path := config.GetEnv("LOG_FILE", ""); path != "" {
		logFile = &logger.FileOptions{
			Path:       path,
			MaxSizeMB:  config.GetEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: config.GetEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: config.GetEnvInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   config.GetEnvBool("LOG_COMPRESS", false),
		}
	}
	log := logger.New(logLevel, logFormat, logFile)
	met := metrics.New()

	cacheOpts := proxycache.Options{
		Capacity: config.GetEnvInt("PROXY_CACHE_FRAMES", proxycache.DefaultCapacity),
		Logger:   log,
		Metrics:  met,
	}
	if addr := config.GetEnv("REDIS_ADDR", ""); addr != "" {
		client, err := proxycache.ConnectRedis(context.Background(), addr,
			config.GetEnv("REDIS_PASSWORD", ""), config.GetEnvInt("REDIS_DB", 0))
		if err != nil {
			log.Warn("redis unavailable, proxy frames stay in memory", "error", err)
		} else {
			defer client.Close()
			cacheOpts.Store = proxycache.NewRedisStore(client, config.GetEnvDuration("PROXY_REDIS_TTL", 10*time.Minute))
			log.Info("proxy frame store connected", "redis_addr", addr)
		}
	}
	cache, err := proxycache.New(newDemoDecoder(), cacheOpts)
	if err != nil {
		return err
	}

	repo := timeline.NewRepository()
	if demo {
		if err := buildDemo(repo); err != nil {
			return fmt.Errorf("build demo project: %w", err)
		}
	}

	sess, err := playback.NewSession(playback.Options{
		Config:   playback.ConfigFromEnv(),
		Timeline: repo,
		Renderer: logRenderer{log: log},
		Proxies:  cache,
		ResumeAudio: func() error {
			log.Debug("audio output resumed")
			return nil
		},
		Logger:  log,
		Metrics: met,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	h := playback.NewHandler(sess, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log, "/metrics", "/healthz"))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler(nil).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info("server starting",
		"port", port,
		"session_id", sess.ID(),
		"demo", demo,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		log.Error("server error", "error", err)
		return err
	}

	log.Info("shutdown signal received, draining connections")
	sess.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}
