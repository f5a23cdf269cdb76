package main

import (
	"context"
	"os"

	"github.com/agenthands/storyline/internal/app"
	"github.com/agenthands/storyline/internal/config"
	"github.com/agenthands/storyline/internal/logging"
	"github.com/agenthands/storyline/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logging.Info("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		logging.Fatal("Failed to load configuration", "path", cfgPath, "err", err)
	}

	if err := logging.Init(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		logging.Fatal("Failed to initialize logging", "err", err)
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logging.Fatal("Failed to initialize pipeline", "err", err)
	}
	defer a.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	r := server.NewServer(a).SetupRouter()
	logging.Info("Starting server", "port", port, "store", cfg.Store.Driver, "llm", cfg.LLM.Provider)
	if err := r.Run(":" + port); err != nil {
		logging.Error("Server stopped", "err", err)
	}
}
