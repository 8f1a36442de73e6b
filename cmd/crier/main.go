package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crierhq/crier/internal/app"
	"github.com/crierhq/crier/internal/config"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.SlogLevel(),
	}))
	slog.SetDefault(logger)

	res, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}()

	// The service starts even when the TTS backend is down; /health reports
	// degraded until it comes back.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := res.TTS.Probe(probeCtx); err != nil {
		logger.Warn("tts backend unreachable at startup", "error", err)
	}
	probeCancel()

	httpServer := &http.Server{
		Addr:    cfg.Server.BindAddr,
		Handler: res.API.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	res.Cache.StartJanitor(runCtx, cfg.Cache.SweepInterval())
	if res.Twitch != nil {
		go res.Twitch.Start(runCtx)
	}
	if res.YouTube != nil {
		go res.YouTube.Run(runCtx)
	}

	go func() {
		log.Printf("server listening on %s", cfg.Server.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

func defaultConfigPath() string {
	if p := os.Getenv("CRIER_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
