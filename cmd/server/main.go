package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/kvreplica/kvreplica/internal/configuration"
	"github.com/kvreplica/kvreplica/internal/initialization"
	"github.com/kvreplica/kvreplica/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configuration.NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	logging.Init(&cfg.Logging)
	logging.Info("Parse config")

	initializer, err := initialization.NewInitializer(cfg)
	if err != nil {
		logging.Fatal(err.Error())
	}

	logging.Info("Start database")
	if err := initializer.StartDatabase(ctx); err != nil {
		logging.Fatal(err.Error())
	}
}
