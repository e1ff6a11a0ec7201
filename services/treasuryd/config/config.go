package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Collaborator modes.
const (
	ModeSandbox = "sandbox"
	ModeRemote  = "remote"
)

// Config captures runtime configuration for treasuryd.
type Config struct {
	ListenAddress     string          `yaml:"listen"`
	GRPCListenAddress string          `yaml:"grpc_listen"`
	Deployment        string          `yaml:"deployment"`
	Mode              string          `yaml:"mode"`
	MaxOperations     int             `yaml:"max_operations"`
	Auth              AuthConfig      `yaml:"auth"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	Journal           JournalConfig   `yaml:"journal"`
	Keeper            KeeperConfig    `yaml:"keeper"`
	Remote            RemoteConfig    `yaml:"remote"`
	Logging           LoggingConfig   `yaml:"logging"`
}

// AuthConfig configures HMAC bearer tokens. The token subject is the caller's
// address.
type AuthConfig struct {
	HMACSecret    string   `yaml:"hmac_secret"`
	HMACSecretEnv string   `yaml:"hmac_secret_env"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	ClockSkew     Duration `yaml:"clock_skew"`
}

// Secret resolves the signing secret, preferring the environment.
func (a AuthConfig) Secret() string {
	if env := strings.TrimSpace(a.HMACSecretEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(a.HMACSecret)
}

// RateLimitConfig bounds invocations per caller.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// JournalConfig selects the receipt journal database.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// KeeperConfig drives periodic maker trades.
type KeeperConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Interval    Duration `yaml:"interval"`
	Address     string   `yaml:"address"`
	Controllers []string `yaml:"controllers"`
}

// RemoteConfig points treasuryd at live oracle views and an operation
// injector.
type RemoteConfig struct {
	OracleEndpoint   string               `yaml:"oracle_endpoint"`
	InjectorEndpoint string               `yaml:"injector_endpoint"`
	APIKey           string               `yaml:"api_key"`
	Timeout          Duration             `yaml:"timeout"`
	Collaborators    []RemoteCollaborator `yaml:"collaborators"`
}

// RemoteCollaborator is a contract whose operations are forwarded to the
// injector.
type RemoteCollaborator struct {
	Address     string   `yaml:"address"`
	Entrypoints []string `yaml:"entrypoints"`
}

// LoggingConfig controls the service logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.GRPCListenAddress == "" {
		cfg.GRPCListenAddress = ":7081"
	}
	if cfg.Deployment == "" {
		cfg.Deployment = "./treasury.toml"
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = ModeSandbox
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.PerSecond <= 0 {
		cfg.RateLimit.PerSecond = 5
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	if cfg.Journal.DSN == "" && cfg.Journal.Driver == "sqlite" {
		cfg.Journal.DSN = "./treasury-data/journal.sqlite"
	}
	if cfg.Keeper.Interval.Duration == 0 {
		cfg.Keeper.Interval.Duration = time.Minute
	}
	if cfg.Remote.Timeout.Duration == 0 {
		cfg.Remote.Timeout.Duration = 10 * time.Second
	}
}

func validate(cfg Config) error {
	switch cfg.Mode {
	case ModeSandbox:
	case ModeRemote:
		if strings.TrimSpace(cfg.Remote.OracleEndpoint) == "" {
			return fmt.Errorf("remote mode requires remote.oracle_endpoint")
		}
		if len(cfg.Remote.Collaborators) > 0 && strings.TrimSpace(cfg.Remote.InjectorEndpoint) == "" {
			return fmt.Errorf("remote collaborators require remote.injector_endpoint")
		}
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	switch cfg.Journal.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown journal driver %q", cfg.Journal.Driver)
	}
	if cfg.Journal.Driver == "postgres" && strings.TrimSpace(cfg.Journal.DSN) == "" {
		return fmt.Errorf("postgres journal requires a dsn")
	}
	if cfg.Auth.Secret() == "" {
		return fmt.Errorf("auth secret must be configured")
	}
	if cfg.Keeper.Enabled {
		if strings.TrimSpace(cfg.Keeper.Address) == "" {
			return fmt.Errorf("keeper address required when keeper is enabled")
		}
		if len(cfg.Keeper.Controllers) == 0 {
			return fmt.Errorf("keeper requires at least one controller")
		}
	}
	return nil
}
