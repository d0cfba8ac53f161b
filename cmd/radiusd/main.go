package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitalvas/radiusd/pkg/log"
	"github.com/vitalvas/radiusd/pkg/server"
	"github.com/vitalvas/radiusd/pkg/session"
)

func main() {
	configPath := flag.String("config", "/etc/radiusd/radiusd.yml", "path to configuration file")
	flag.Parse()

	logger := log.NewDefaultLogger()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load configuration: %v", err)
	}

	logger = log.NewLoggerWithLevel(cfg.LogLevel)

	opts := []server.Option{server.WithServerLogger(logger)}

	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sink, err := session.NewRedisSink(ctx, session.RedisSinkConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      time.Duration(cfg.Redis.TTLHours) * time.Hour,
		})
		cancel()
		if err != nil {
			logger.Fatalf("connect redis sink: %v", err)
		}
		defer sink.Close()

		opts = append(opts, server.WithSessionSink(sink))
		logger.Infof("accounting sink: redis at %s", cfg.Redis.Addr)
	}

	srv, err := server.New(cfg, opts...)
	if err != nil {
		logger.Fatalf("build server: %v", err)
	}

	if err := srv.Start(); err != nil {
		logger.Fatalf("start server: %v", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signals
	logger.Infof("received %s, shutting down", sig)

	if err := srv.Stop(); err != nil {
		logger.Errorf("shutdown: %v", err)
		os.Exit(1)
	}
}
