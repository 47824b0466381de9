package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/sleepstars/ollamabridge/internal/config"
	"github.com/sleepstars/ollamabridge/internal/logger"
	"github.com/sleepstars/ollamabridge/internal/metrics"
	"github.com/sleepstars/ollamabridge/internal/ollama"
	"github.com/sleepstars/ollamabridge/internal/router"
	"github.com/sleepstars/ollamabridge/internal/service"
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "Path to the configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	noWatch := flag.Bool("no-watch", false, "Disable config file watching")
	flag.Parse()

	// A .env next to the binary may carry overrides; absence is fine.
	_ = godotenv.Load()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		level = logger.INFO
	}
	logger.InitLogger(level, "server")
	log := logger.GetLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: %v", err)
	}
	cfg = config.WithEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config: %v", err)
	}

	store := config.NewStore(cfg)
	collector := metrics.NewCollector()

	// The handler factory builds a fresh upstream client and router per
	// server instance, bound to that instance's config.
	var ctrl *service.Controller
	build := func(cfg config.Config) http.Handler {
		upstream := ollama.NewClient(cfg.OllamaBaseURL, cfg.TimeoutDuration())
		return router.New(router.Options{
			Upstream: upstream,
			Running:  func() bool { return ctrl.Status() == service.Running },
			Metrics:  collector,
		})
	}
	ctrl = service.NewController(cfg, build)

	if err := ctrl.Start(); err != nil {
		log.Fatal("Failed to start service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Probe the upstream once at startup so a misconfigured base URL shows
	// up in the log immediately instead of on the first proxied request.
	go func() {
		probe := ollama.NewClient(cfg.OllamaBaseURL, cfg.TimeoutDuration())
		version, err := probe.Version(ctx)
		if err != nil {
			log.WithError(err).Warn("Upstream Ollama not reachable at %s", cfg.OllamaBaseURL)
			return
		}
		log.Info("Upstream Ollama %s at %s", version, cfg.OllamaBaseURL)
	}()

	// Config file changes flow through the store into the controller.
	if !*noWatch {
		watcher, err := config.NewWatcher(*configPath)
		if err != nil {
			log.Warn("Config watching disabled: %v", err)
		} else {
			defer watcher.Close()
			go watcher.Watch(ctx, func(cfg config.Config) {
				if err := store.Replace(config.WithEnvOverrides(cfg)); err != nil {
					log.WithError(err).Warn("Rejected config change")
				}
			})
		}
	}
	go func() {
		for cfg := range store.Subscribe() {
			if err := ctrl.Reconfigure(cfg); err != nil {
				log.WithError(err).Error("Reconfigure failed")
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Received %s, shutting down", sig)
	cancel()

	if err := ctrl.Stop(); err != nil {
		log.Error("Shutdown error: %v", err)
	}
}
