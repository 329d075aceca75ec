package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-feed/src/config"
	"market-feed/src/engine"
	"market-feed/src/grpc_control"
	"market-feed/src/helpers"
	"market-feed/src/interfaces"
	"market-feed/src/logger"
	"market-feed/src/server"
	"market-feed/src/storage"
	"market-feed/src/stream"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config, config.Name)

	// 2. Setup Persistence
	var db interfaces.ICandleStore

	switch config.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(config.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewAsyncSQLiteDB(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}

	// A cold database container can take a moment to accept connections.
	if _, err := helpers.RetryWithBackoff("database initialize", 3, time.Second, func() (interface{}, error) {
		return nil, db.Initialize()
	}); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// 3. Setup the feed core
	clusterEngine := engine.NewClusterEngine(config.MConfig, appLogger)
	hub := stream.NewStreamHub(config.MConfig, clusterEngine, db, appLogger)
	hub.Start()

	// 4. Transport
	var srv interfaces.IDataExchanger = server.NewFeedServer(config.MConfig, hub, appLogger)

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 5. grpc control plane (optional, enabled when a port is configured)
	var control *grpc_control.ControlService
	if config.GrpcPort > 0 {
		control = grpc_control.NewControlService(config.MConfig, hub, appLogger)
		if err := control.Start(); err != nil {
			appLogger.Warning("grpc control disabled: %v", err)
			control = nil
		}
	}

	appLogger.Info("Market feed ready: %d symbols, %d intervals", len(config.Symbols), len(config.Intervals))

	// 6. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	if control != nil {
		control.Stop()
	}
	hub.Stop()
	if err := srv.Stop(); err != nil {
		appLogger.Error("Server shutdown failed: %v", err)
	}
}
