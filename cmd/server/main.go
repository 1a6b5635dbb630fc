package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"dctwin/internal/app"
	"dctwin/internal/config"
	"dctwin/internal/handler"
	"dctwin/internal/hub"
	"dctwin/internal/logger"
	"dctwin/internal/service"
	"dctwin/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "dctwin: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, path, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, "dctwin")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting dctwin server",
		zap.String("config", path),
		zap.String("dialect", cfg.Database.Dialect),
	)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect event bus to SSE hub
	sseHub := hub.New(log)
	go sseHub.Run(ctx)

	eventChan := make(chan service.Event, 100)
	a.Events.Subscribe(eventChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventChan:
				sseHub.Broadcast(string(event.Type), event)
			}
		}
	}()

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, stream writes will fail until it recovers", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}

		streamChan := make(chan service.Event, 100)
		a.Events.Subscribe(streamChan)
		sink := service.NewStreamSink(client, cfg.Redis.Stream, cfg.Redis.MaxLen, log)
		go sink.Run(ctx, streamChan)
		log.Info("mirroring events to redis stream", zap.String("stream", cfg.Redis.Stream))
	}

	if cfg.Watch.ScanFile != "" {
		reloader, err := watcher.NewScanReloader(cfg.Watch.ScanFile, cfg.Watch.SiteID, a.Anomalies, log)
		if err != nil {
			return fmt.Errorf("scan watcher: %w", err)
		}
		w := watcher.New(cfg.Watch.ScanFile, reloader.OnChange, log).
			WithDebounce(cfg.Watch.Debounce.Duration())
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("scan watcher stopped", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	handler.New(a.Inventory, a.Anomalies, a.Capacity, log).Register(mux)
	mux.Handle("GET /events", sseHub)

	finalHandler := handler.Chain(mux,
		handler.Recover(log),
		handler.CORS,
		handler.Logger(log),
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
