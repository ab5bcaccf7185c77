// Package config loads Engram configuration. Environment variables are the
// primary interface; an optional TOML file (~/.config/engram/config.toml)
// supplies the same settings underneath, except the data directory and the
// OpenAI key, which come from the environment only. Feature flags from that
// file can be reloaded live (see Watch).
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Defaults.
const (
	DefaultHTTPPort       = 7749
	DefaultHTTPHost       = "127.0.0.1"
	DefaultEmbeddingModel = "bge-small-en-v1.5"
	DefaultDecayRate      = 0.95
	DefaultAccessBoost    = 1.0
)

// Config holds the resolved runtime configuration.
type Config struct {
	DataDir string
	DBPath  string

	HTTPPort int
	HTTPHost string

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
	OllamaHost        string
	OpenAIKey         string

	DecayRate           float64
	AccessBoostStrength float64
	PruneThreshold      float64

	LogLevel string

	flags *FlagSet
}

// fileConfig mirrors the TOML file layout.
type fileConfig struct {
	DBPath              string  `toml:"db_path"`
	HTTPPort            int     `toml:"http_port"`
	HTTPHost            string  `toml:"http_host"`
	EmbeddingProvider   string  `toml:"embedding_provider"`
	EmbeddingModel      string  `toml:"embedding_model"`
	EmbeddingDim        int     `toml:"embedding_dim"`
	OllamaHost          string  `toml:"ollama_host"`
	DecayRate           float64 `toml:"decay_rate"`
	AccessBoostStrength float64 `toml:"access_boost_strength"`
	PruneThreshold      float64 `toml:"prune_threshold"`
	LogLevel            string  `toml:"log_level"`
	Flags               struct {
		Scopes           *bool `toml:"scopes"`
		Idempotency      *bool `toml:"idempotency"`
		ContextHydration *bool `toml:"context_hydration"`
		WorkItems        *bool `toml:"work_items"`
	} `toml:"flags"`
}

// DefaultDataDir returns the default state directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".engram"
	}
	return filepath.Join(home, ".local", "share", "engram")
}

// FilePath returns the path of the optional config file.
func FilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "engram", "config.toml")
}

// Load resolves the configuration: defaults, then the config file if one
// exists, then environment variables on top.
func Load() *Config {
	cfg := &Config{
		DataDir:             DefaultDataDir(),
		HTTPPort:            DefaultHTTPPort,
		HTTPHost:            DefaultHTTPHost,
		EmbeddingProvider:   "ollama",
		EmbeddingModel:      DefaultEmbeddingModel,
		EmbeddingDim:        384,
		OllamaHost:          "http://localhost:11434",
		DecayRate:           DefaultDecayRate,
		AccessBoostStrength: DefaultAccessBoost,
		PruneThreshold:      0.1,
		LogLevel:            "info",
		flags:               newFlagSet(),
	}

	if path := FilePath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			var fc fileConfig
			if _, err := toml.DecodeFile(path, &fc); err != nil {
				slog.Warn("config: cannot parse config file, ignoring", "path", path, "error", err)
			} else {
				cfg.applyFile(fc)
			}
		}
	}

	cfg.DataDir = envStr("ENGRAM_DATA_DIR", cfg.DataDir)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "engram.db")
	}
	cfg.DBPath = envStr("ENGRAM_DB_PATH", cfg.DBPath)

	cfg.HTTPPort = envPort("ENGRAM_HTTP_PORT", cfg.HTTPPort)
	cfg.HTTPHost = envStr("ENGRAM_HTTP_HOST", cfg.HTTPHost)

	cfg.EmbeddingProvider = envStr("ENGRAM_EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.EmbeddingModel = envStr("ENGRAM_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDim = envInt("ENGRAM_EMBEDDING_DIM", cfg.EmbeddingDim)
	cfg.OllamaHost = envStr("ENGRAM_OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIKey = envStr("OPENAI_API_KEY", cfg.OpenAIKey)

	cfg.DecayRate = envFloat("ENGRAM_DECAY_RATE", cfg.DecayRate)
	cfg.AccessBoostStrength = envFloat("ENGRAM_ACCESS_BOOST_STRENGTH", cfg.AccessBoostStrength)
	cfg.PruneThreshold = envFloat("ENGRAM_PRUNE_THRESHOLD", cfg.PruneThreshold)

	cfg.LogLevel = envStr("ENGRAM_LOG_LEVEL", cfg.LogLevel)

	cfg.flags.applyEnv()

	return cfg
}

func (c *Config) applyFile(fc fileConfig) {
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.HTTPPort > 0 && fc.HTTPPort <= 65535 {
		c.HTTPPort = fc.HTTPPort
	}
	if fc.HTTPHost != "" {
		c.HTTPHost = fc.HTTPHost
	}
	if fc.EmbeddingProvider != "" {
		c.EmbeddingProvider = fc.EmbeddingProvider
	}
	if fc.EmbeddingModel != "" {
		c.EmbeddingModel = fc.EmbeddingModel
	}
	if fc.EmbeddingDim > 0 {
		c.EmbeddingDim = fc.EmbeddingDim
	}
	if fc.OllamaHost != "" {
		c.OllamaHost = fc.OllamaHost
	}
	if fc.DecayRate > 0 {
		c.DecayRate = fc.DecayRate
	}
	if fc.AccessBoostStrength > 0 {
		c.AccessBoostStrength = fc.AccessBoostStrength
	}
	if fc.PruneThreshold > 0 {
		c.PruneThreshold = fc.PruneThreshold
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	c.flags.applyFile(fc)
}

// Flags returns the live feature-flag view.
func (c *Config) Flags() *FlagSet {
	return c.flags
}

// PIDPath returns the daemon PID file path.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "engram.pid")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "engram.log")
}

// ---- Env helpers ----

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid integer, using default", "var", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envPort(key string, fallback int) int {
	n := envInt(key, fallback)
	if n < 0 || n > 65535 {
		slog.Warn("config: port out of range, using default", "var", key, "value", n, "default", fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config: invalid number, using default", "var", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	slog.Warn("config: invalid boolean, using default", "var", key, "value", v, "default", fallback)
	return fallback
}
