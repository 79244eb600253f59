package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aureliax/dexcore/internal/config"
	"github.com/aureliax/dexcore/internal/dex/processor"
	"github.com/aureliax/dexcore/internal/engine"
	"github.com/aureliax/dexcore/internal/ledger"
	"github.com/aureliax/dexcore/internal/server"
	"github.com/aureliax/dexcore/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	programID, err := cfg.Program()
	if err != nil {
		zapLogger.Fatal("Invalid program id", zap.Error(err))
	}

	var store ledger.Store
	if cfg.DBPath == "" {
		store = ledger.NewMemStore()
		zapLogger.Info("Using in-memory ledger store")
	} else {
		gs, err := ledger.OpenSQLite(cfg.DBPath, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to open ledger store", zap.Error(err))
		}
		store = gs
		zapLogger.Info("Ledger store ready", zap.String("path", cfg.DBPath))
	}

	eng := engine.NewInProcess(zapLogger)
	proc := processor.New(zapLogger, programID, eng)
	srv := server.New(zapLogger, store, proc, programID)

	zapLogger.Info("dexcore gateway starting",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("program_id", programID.String()))
	if err := srv.Run(cfg.ListenAddr); err != nil {
		zapLogger.Fatal("Server exited", zap.Error(err))
	}
}
