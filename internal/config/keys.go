package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "QUERYBOT_API_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.user_id", typ: kInt, env: "QUERYBOT_API_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.API.UserID = v.(int) },
		extract: func(cfg Config) any { return cfg.API.UserID },
	},
	{
		key: "api.timeout", typ: kString, env: "QUERYBOT_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "session.max_in_flight", typ: kInt, env: "QUERYBOT_SESSION_MAX_IN_FLIGHT",
		apply:   func(cfg *Config, v any) { cfg.Session.MaxInFlight = v.(int) },
		extract: func(cfg Config) any { return cfg.Session.MaxInFlight },
	},
	{
		key: "session.greeting", typ: kBool, env: "QUERYBOT_SESSION_GREETING",
		apply:   func(cfg *Config, v any) { cfg.Session.Greeting = v.(bool) },
		extract: func(cfg Config) any { return cfg.Session.Greeting },
	},
	{
		key: "server.port", typ: kInt, env: "QUERYBOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QUERYBOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "QUERYBOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "metrics.addr", typ: kString, env: "QUERYBOT_METRICS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Metrics.Addr },
	},
}

// parse converts raw to the Go type of s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return i, nil
	case kBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", raw)
		}
		return b, nil
	}
	return raw, nil
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// envName is the environment variable overriding key, or key itself if it
// has none.
func envName(key string) string {
	if s, ok := lookupSpec(key); ok && s.env != "" {
		return s.env
	}
	return key
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		raw, ok, err := b.Get(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring env var %s: %v. Using configured value.\n", s.env, err)
			continue
		}
		s.apply(cfg, v)
	}
}
