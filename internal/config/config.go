// Package config loads service configuration from the environment, with an
// optional YAML file for per-route orchestrator policies.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/driveline/platform/internal/orchestrator"
)

// Config is the full service configuration.
type Config struct {
	Server struct {
		Addr            string        `env:"SERVER_ADDR,default=:8080"`
		ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
		IPRatePerSecond float64       `env:"SERVER_IP_RATE,default=50"`
		IPBurst         int           `env:"SERVER_IP_BURST,default=100"`
	}

	Auth struct {
		JWTSecret string `env:"AUTH_JWT_SECRET,default="`
	}

	// Database selects the backing store: a Postgres DSN, a Supabase
	// project, or neither (in-memory, for development and tests).
	Database struct {
		PostgresDSN string `env:"DATABASE_URL,default="`
	}
	Supabase struct {
		URL        string `env:"SUPABASE_URL,default="`
		ServiceKey string `env:"SUPABASE_SERVICE_KEY,default="`
	}
	Redis struct {
		URL string `env:"REDIS_URL,default="`
	}

	Payments struct {
		GatewayURL string `env:"PAYMENT_GATEWAY_URL,default="`
		APIKey     string `env:"PAYMENT_GATEWAY_KEY,default="`
	}

	Content struct {
		PageTTL time.Duration `env:"CONTENT_PAGE_TTL,default=5m"`
	}
	Booking struct {
		AvailabilityTTL time.Duration `env:"AVAILABILITY_TTL,default=1m"`
		SlotLength      time.Duration `env:"SLOT_LENGTH,default=1h"`
	}
	Reminders struct {
		Schedule string        `env:"REMINDER_SCHEDULE,default=0 * * * *"`
		Horizon  time.Duration `env:"REMINDER_HORIZON,default=24h"`
	}

	Orchestrator struct {
		MaxConcurrent  int           `env:"ORCH_MAX_CONCURRENT,default=64"`
		BaseBackoff    time.Duration `env:"ORCH_BASE_BACKOFF,default=100ms"`
		MaxBackoff     time.Duration `env:"ORCH_MAX_BACKOFF,default=5s"`
		DefaultTimeout time.Duration `env:"ORCH_DEFAULT_TIMEOUT,default=10s"`
		RateCeiling    int           `env:"ORCH_RATE_CEILING,default=20"`
		RateWindow     time.Duration `env:"ORCH_RATE_WINDOW,default=1m"`
	}

	// RoutePolicyFile points at an optional YAML file overriding per-route
	// orchestrator policies.
	RoutePolicyFile string `env:"ROUTE_POLICY_FILE,default="`
}

// Load reads .env (when present) and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// routePolicy is the YAML shape of one route override. Durations are written
// as Go duration strings ("30s", "1m").
type routePolicy struct {
	Priority    string `yaml:"priority"`
	MaxRetries  int    `yaml:"max_retries"`
	RequireAuth *bool  `yaml:"require_auth"`
	Timeout     string `yaml:"timeout"`
	RateCeiling int    `yaml:"rate_ceiling"`
	RateWindow  string `yaml:"rate_window"`
}

func parseDuration(name, field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("route %s: %s: %w", name, field, err)
	}
	return d, nil
}

// LoadRoutePolicies merges YAML route overrides into the given defaults. The
// file maps route name to policy; unknown routes are added as-is.
func LoadRoutePolicies(path string, defaults map[string]orchestrator.RouteConfig) (map[string]orchestrator.RouteConfig, error) {
	merged := make(map[string]orchestrator.RouteConfig, len(defaults))
	for name, cfg := range defaults {
		merged[name] = cfg
	}
	if path == "" {
		return merged, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route policy file: %w", err)
	}
	var overrides map[string]routePolicy
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse route policy file: %w", err)
	}

	for name, rp := range overrides {
		cfg, ok := merged[name]
		if !ok {
			cfg = orchestrator.RouteConfig{Route: name, RequireAuth: true}
		}
		if rp.Priority != "" {
			p, err := parsePriority(rp.Priority)
			if err != nil {
				return nil, fmt.Errorf("route %s: %w", name, err)
			}
			cfg.Priority = p
		}
		if rp.MaxRetries > 0 {
			cfg.MaxRetries = rp.MaxRetries
		}
		if rp.RequireAuth != nil {
			cfg.RequireAuth = *rp.RequireAuth
		}
		timeout, err := parseDuration(name, "timeout", rp.Timeout)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		window, err := parseDuration(name, "rate_window", rp.RateWindow)
		if err != nil {
			return nil, err
		}
		if rp.RateCeiling > 0 && window > 0 {
			cfg.RateLimit = orchestrator.RatePolicy{Ceiling: rp.RateCeiling, Window: window}
		}
		merged[name] = cfg
	}
	return merged, nil
}

func parsePriority(s string) (orchestrator.Priority, error) {
	switch s {
	case "low":
		return orchestrator.PriorityLow, nil
	case "medium":
		return orchestrator.PriorityMedium, nil
	case "high":
		return orchestrator.PriorityHigh, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}
