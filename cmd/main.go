package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"tvbridge/internal/api"
	"tvbridge/internal/bridge"
	"tvbridge/internal/config"
	"tvbridge/internal/dimming"
	"tvbridge/internal/ha"
	"tvbridge/internal/mirror"
	"tvbridge/internal/registry"
	"tvbridge/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultConfigPath = "config/tvbridge.yaml"

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("TVBRIDGE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.String("path", configPath), zap.Error(err))
	}

	port := cfg.ListenPort
	if raw := os.Getenv("TVBRIDGE_PORT"); raw != "" {
		port, err = strconv.Atoi(raw)
		if err != nil {
			logger.Fatal("Invalid TVBRIDGE_PORT", zap.String("value", raw), zap.Error(err))
		}
	}

	logger.Info("Starting TV Bridge",
		zap.String("config", configPath),
		zap.Int("port", port),
		zap.Int("devices", len(cfg.Devices)))

	// Load persisted device state
	st := store.New(filepath.Join(cfg.DataDir, "tvbridge_state.json"), logger)
	if err := st.Load(); err != nil {
		logger.Fatal("Failed to load state store", zap.Error(err))
	}

	// Device registry and bridge service
	reg := registry.New(logger)
	reg.SetDevices(cfg.Devices)
	service := bridge.New(logger, reg, st)

	// Mirror Home Assistant entities onto device controls when bindings
	// are configured. The HA connection is only needed for this.
	var mirrorManager *mirror.Manager
	if len(cfg.Controls) > 0 {
		haURL := os.Getenv("HA_URL")
		if haURL == "" && cfg.HomeAssistant != nil {
			haURL = cfg.HomeAssistant.URL
		}
		haToken := os.Getenv("HA_TOKEN")
		if haURL == "" || haToken == "" {
			logger.Fatal("Control bindings require home_assistant.url (or HA_URL) and HA_TOKEN")
		}

		client := ha.NewClient(haURL, haToken, logger)
		if err := client.Connect(); err != nil {
			logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
		}
		defer client.Disconnect()

		logger.Info("Connected to Home Assistant", zap.String("url", haURL))

		mirrorManager = mirror.NewManager(logger, client, service, cfg.Controls)
		if err := mirrorManager.Start(); err != nil {
			logger.Fatal("Failed to start control mirror", zap.Error(err))
		}
	}

	// Sun-scheduled overlay dimming
	var dimmer *dimming.Manager
	if cfg.Dimming != nil && cfg.Dimming.Enabled {
		dimmer = dimming.NewManager(logger, service, cfg.Dimming)
		dimmer.Start()
	}

	// Apply config edits without a restart. Device rows and dimming targets
	// take effect immediately; the rest only on the next start.
	prev := cfg
	watcher := config.NewWatcher(configPath, logger, func(next *config.Config) {
		reg.SetDevices(next.Devices)
		if dimmer != nil && next.Dimming != nil {
			dimmer.SetDevices(next.Dimming.Devices)
		}
		if next.ListenPort != prev.ListenPort {
			logger.Info("listen_port changed, restart to apply",
				zap.Int("active", port),
				zap.Int("configured", next.ListenPort))
		}
		if !bindingsEqual(next.Controls, prev.Controls) {
			logger.Info("Control bindings changed, restart to apply")
		}
		prev = next
	})
	if err := watcher.Start(); err != nil {
		logger.Warn("Config watching unavailable", zap.Error(err))
	}

	// HTTP API
	server := api.NewServer(service, logger, port)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("TV Bridge running. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutting down gracefully...")

	if err := server.Stop(); err != nil {
		logger.Warn("API server shutdown error", zap.Error(err))
	}
	watcher.Stop()
	if dimmer != nil {
		dimmer.Stop()
	}
	if mirrorManager != nil {
		mirrorManager.Stop()
	}
}

func bindingsEqual(a, b []config.ControlBinding) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
