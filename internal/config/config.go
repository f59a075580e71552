package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API     APIConfig
	Session SessionConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// APIConfig locates the Query Service the client talks to.
type APIConfig struct {
	BaseURL string
	UserID  int
	Timeout string
}

// TimeoutDuration parses Timeout. Validation in Load guarantees it parses.
func (c APIConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

type SessionConfig struct {
	MaxInFlight int
	Greeting    bool
}

// ServerConfig is the listen port of the reference Query Service.
type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// MetricsConfig is the Prometheus listen address. Empty disables the
// standalone listener.
type MetricsConfig struct {
	Addr string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			UserID:  1,
			Timeout: "30s",
		},
		Session: SessionConfig{
			MaxInFlight: 8,
			Greeting:    true,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file in the working directory, the
// platform-native backend and environment variables.
//
// On macOS the backend is UserDefaults (domain: com.querybot.app).
// On Linux the backend is a dotenv file at $XDG_CONFIG_HOME/querybot/config.env.
//
// Environment variables (QUERYBOT_*) override backend values on all
// platforms. Variables from .env never replace ones already set.
func Load() (Config, error) {
	loadDotEnv(".env")
	return loadWith(newPlatformBackend())
}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read %s: %v. Ignoring it.\n", path, err)
	}
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("missing required config: api.base_url. Set it via environment variable QUERYBOT_API_URL")
	}
	if c.API.UserID <= 0 {
		return fmt.Errorf("invalid api.user_id %d: must be positive", c.API.UserID)
	}
	if d, err := time.ParseDuration(c.API.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid api.timeout %q: want a positive duration such as 30s", c.API.Timeout)
	}
	if c.Session.MaxInFlight <= 0 {
		return fmt.Errorf("invalid session.max_in_flight %d: must be positive", c.Session.MaxInFlight)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}
