package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inboxhub/realtime/internal/config"
	"github.com/inboxhub/realtime/internal/logging"
	"github.com/inboxhub/realtime/internal/mock"
	"github.com/inboxhub/realtime/internal/realtime"
	"github.com/inboxhub/realtime/internal/sysstats"
	"github.com/inboxhub/realtime/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Generate synthetic CRM traffic")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	watch := flag.Bool("watch", true, "Reload tuning settings when the config file changes")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	log := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cfg.HubOptions()
	opts.Logger = log
	hub := realtime.New(opts)
	go hub.Run(ctx)

	if *watch {
		go func() {
			err := config.Watch(ctx, *configPath, log, func(next *config.Config) {
				hub.SetTuning(next.Realtime.HighWatermark, next.Realtime.NonCritical())
			})
			if err != nil {
				log.Warn().Err(err).Str("path", *configPath).Msg("config watch disabled")
			}
		}()
	}

	sampler, err := sysstats.NewSampler()
	if err != nil {
		log.Warn().Err(err).Msg("process stats unavailable")
	}

	if *mockMode {
		log.Info().Msg("starting in mock mode")
		gen := mock.NewGenerator(hub, cfg.Mock.Tenants, cfg.Mock.Interval, time.Now().UnixNano(), log)
		gen.Start(ctx)
	}

	server := ws.NewServer(cfg, hub, sampler, log)
	if err := ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(), log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("shut down")
}
