package app

import (
	"log/slog"
	"strconv"
	"time"

	"market_sim/internal/infra"
	"market_sim/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB)
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping market simulation...", slog.String("config", configPath))

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Journal initialized")

	// 4. Record run metadata
	meta := map[string]string{
		"app_version": cfg.App.Version,
		"seed":        strconv.FormatUint(cfg.Simulation.Seed, 10),
		"started_at":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if err := store.SaveMeta(k, v); err != nil {
			slog.Warn("Failed to save run metadata", slog.String("key", k), slog.Any("error", err))
		}
	}

	return nil
}

// Close releases resources acquired by Initialize.
func (b *Bootstrap) Close() {
	if b.Storage == nil {
		return
	}
	if err := b.Storage.Close(); err != nil {
		slog.Error("Failed to close journal", slog.Any("error", err))
	}
}
