// Package showcase holds the shared pieces of the demo hosts: configuration
// loading, the console adapter and logging setup.
package showcase

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config is the demo host configuration. Values come from config.yml, a
// .env file and LOOM_-prefixed environment variables, later sources
// winning.
type Config struct {
	// DebugPort is the inspection server port, 0 for ephemeral, -1 to
	// disable.
	DebugPort int `mapstructure:"debug_port"`
	// SnapshotPath is the snapshot database file, "" to disable
	// persistence.
	SnapshotPath string `mapstructure:"snapshot_path"`
	// SnapshotDriver selects "bolt" or "sqlite".
	SnapshotDriver string `mapstructure:"snapshot_driver"`
	// Placeholder replaces failed interpolation spans.
	Placeholder string `mapstructure:"placeholder"`
	// LogLevel is a zerolog level name.
	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig reads the host configuration, searching for config.yml and
// .env next to the binary and in the working directory.
func LoadConfig(host string) (Config, error) {
	for _, env := range []string{".env." + host, ".env"} {
		if _, err := os.Stat(env); err == nil {
			if err := godotenv.Load(env); err != nil {
				fmt.Fprintf(os.Stderr, "showcase: load %s: %v\n", env, err)
			}
			break
		}
	}

	v := viper.New()
	v.SetDefault("debug_port", -1)
	v.SetDefault("snapshot_driver", "bolt")
	v.SetDefault("log_level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./cmd/" + host)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("showcase: read config: %w", err)
		}
	}

	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("showcase: unmarshal config: %w", err)
	}
	return cfg, nil
}

// NewLogger builds a console logger at the configured level.
func NewLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
