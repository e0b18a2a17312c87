package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/raffchen/inventory/internal/db"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Config is the full service configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Log      LogConfig
	Store    StoreConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string
	Pretty bool
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Backend string
	Badger  db.BadgerConfig
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8000",
			AllowedOrigins:  []string{"http://localhost:5173"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:   LogConfig{Level: "info"},
		Store: StoreConfig{Backend: BackendPostgres, Badger: db.BadgerConfig{Dir: "data/badger", SyncWrites: true, GCInterval: 5 * time.Minute}},
	}
}

// Load reads config.yaml from configPath, an optional .env file next to it, and
// INVENTORY_* environment variables (INVENTORY_DATABASE_HOST overrides database.host).
// A missing config file is not an error.
func Load(configPath string) (Config, error) {
	cfg := Default()

	envFile := filepath.Join(configPath, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("INVENTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Str("path", configPath).Msg("no config.yaml found, using defaults and env vars")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	}

	cfg.Database = db.Config{
		Host:     v.GetString("database.host"),
		Port:     v.GetInt("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		DBName:   v.GetString("database.dbname"),
		SSLMode:  v.GetString("database.sslmode"),
		MaxConns: v.GetInt32("database.max_conns"),
	}
	cfg.Server = ServerConfig{
		Addr:            v.GetString("server.addr"),
		AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
		ReadTimeout:     v.GetDuration("server.read_timeout"),
		WriteTimeout:    v.GetDuration("server.write_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Pretty: v.GetBool("log.pretty"),
	}
	cfg.Store = StoreConfig{
		Backend: strings.ToLower(v.GetString("store.backend")),
		Badger: db.BadgerConfig{
			Dir:        v.GetString("store.badger.dir"),
			InMemory:   v.GetBool("store.badger.in_memory"),
			SyncWrites: v.GetBool("store.badger.sync_writes"),
			GCInterval: v.GetDuration("store.badger.gc_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.allowed_origins", cfg.Server.AllowedOrigins)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.pretty", cfg.Log.Pretty)

	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.badger.dir", cfg.Store.Badger.Dir)
	v.SetDefault("store.badger.in_memory", cfg.Store.Badger.InMemory)
	v.SetDefault("store.badger.sync_writes", cfg.Store.Badger.SyncWrites)
	v.SetDefault("store.badger.gc_interval", cfg.Store.Badger.GCInterval)
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres, BackendBadger:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	return nil
}
