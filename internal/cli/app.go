package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/engram-memory/engram/internal/adapter"
	"github.com/engram-memory/engram/internal/config"
	"github.com/engram-memory/engram/internal/db"
	"github.com/engram-memory/engram/internal/hydrate"
	"github.com/engram-memory/engram/internal/memory"
)

// app bundles everything a command needs: config, open database, and the
// memory service on top.
type app struct {
	cfg    *config.Config
	db     *db.DB
	svc    *memory.Service
	hyd    *hydrate.Hydrator
	logger *slog.Logger
}

// openApp loads configuration, opens the database, and wires the service.
func openApp() (*app, error) {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	registry := adapter.NewRegistry(func() (adapter.Embedder, error) {
		return adapter.New(adapter.Config{
			Provider:   cfg.EmbeddingProvider,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDim,
			OllamaHost: cfg.OllamaHost,
			APIKey:     cfg.OpenAIKey,
		})
	})

	svc := memory.NewService(memory.Options{
		Store:       memory.NewStore(database),
		Embeddings:  registry,
		Flags:       cfg.Flags(),
		Logger:      logger,
		Decay:       memory.NewDecay(cfg.DecayRate),
		AccessBoost: cfg.AccessBoostStrength,
		Dimensions:  cfg.EmbeddingDim,
		Version:     version,
	})

	hyd, err := hydrate.New(svc)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("init hydrator: %w", err)
	}

	return &app{cfg: cfg, db: database, svc: svc, hyd: hyd, logger: logger}, nil
}

// Close releases the database.
func (a *app) Close() {
	_ = a.db.Close()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
