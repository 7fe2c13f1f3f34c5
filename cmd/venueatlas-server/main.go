package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"venueatlas/database"
	"venueatlas/internal/config"
	"venueatlas/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("open venue store")
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("migrate venue store")
	}

	srv := server.New(cfg, store, log)
	if err := srv.Start(ctx); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server shut down cleanly")
}
