package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig configures the hotseat bridge.
type WebSocketConfig struct {
	Address   string `mapstructure:"address"`
	ReadLimit int64  `mapstructure:"read_limit"`
}

// GameConfig configures new tables.
type GameConfig struct {
	Players   []string `mapstructure:"players"`
	ReplayDir string   `mapstructure:"replay_dir"`
}

// DatabaseConfig selects the save-game store. An empty driver disables
// persistence.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// EnvPrefix prefixes environment overrides, e.g. KARMA_DATABASE_DSN.
const EnvPrefix = "KARMA"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.read_limit", 4096)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("game.players", []string{"Blue", "Green", "Red"})
	v.SetDefault("game.replay_dir", "replays")
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "data/karma.sqlite")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads the YAML file at path, falling back to defaults when the
// file does not exist, and applies KARMA_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Game.Players = splitPlayers(cfg.Game.Players)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if len(c.Game.Players) < 2 {
		return fmt.Errorf("game.players: need at least 2 seats, got %d", len(c.Game.Players))
	}
	for i, name := range c.Game.Players {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("game.players[%d]: empty name", i)
		}
	}
	if c.Server.WebSocket.Address == "" {
		return errors.New("server.websocket.address is required")
	}
	if c.Server.WebSocket.ReadLimit <= 0 {
		return fmt.Errorf("server.websocket.read_limit must be positive, got %d", c.Server.WebSocket.ReadLimit)
	}
	switch c.Database.Driver {
	case "":
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	return nil
}

// splitPlayers accepts both a YAML list and a comma separated env value.
func splitPlayers(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, name := range strings.Split(entry, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
