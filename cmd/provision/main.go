// Command provision loads a YAML catalog of resources and their capacity
// calendars into the booking store.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/bootstrap"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/config"
	"github.com/iliyamo/tourism-booking/internal/logging"
	"github.com/iliyamo/tourism-booking/internal/provision"
	"github.com/iliyamo/tourism-booking/internal/service"
)

func main() {
	file := flag.String("file", "catalog.yaml", "path to the YAML catalog")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env")
	}
	storeCfg := config.LoadStoreConfig()
	rcfg := config.LoadReservationConfig()

	logger, err := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal("open catalog", zap.Error(err))
	}
	catalog, err := provision.Parse(f)
	_ = f.Close()
	if err != nil {
		logger.Fatal("parse catalog", zap.String("file", *file), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, storeCfg, rcfg.LockTimeout, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", storeCfg.Driver), zap.Error(err))
	}
	defer st.Close()

	inv := service.NewInventoryService(st.Store, clock.NewSystem(), logger)
	res, err := provision.Apply(ctx, inv, catalog, logger)
	if err != nil {
		logger.Error("provisioning stopped", zap.Int("resources_applied", res.Resources), zap.Error(err))
		st.Close()
		os.Exit(1)
	}
	logger.Info("catalog applied",
		zap.String("file", *file),
		zap.Int("resources", res.Resources),
		zap.Int("dates", res.Dates),
	)
}
