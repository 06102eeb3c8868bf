package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document: one or more named
// upstream MySQL targets, pool tuning, and the admin API bind address
// (§10.2).
type Config struct {
	Targets map[string]TargetConfig `yaml:"targets"`
	Pool    PoolConfig              `yaml:"pool"`
	API     APIConfig               `yaml:"api"`
}

// TargetConfig describes one upstream MySQL server.
type TargetConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Database           string `yaml:"database"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TLS                string `yaml:"tls"` // none | trusted | system
	UseCursorFetch     bool   `yaml:"use_cursor_fetch"`
	UseServerPrepStmts bool   `yaml:"use_server_prep_stmts"`
}

// PoolConfig mirrors pool.Options' tunables in YAML form (§6 Pool
// configuration options).
type PoolConfig struct {
	MinConnections         int           `yaml:"min_connections"`
	MaxConnections         int           `yaml:"max_connections"`
	ConnectionTimeout      time.Duration `yaml:"connection_timeout"`
	IdleTimeout            time.Duration `yaml:"idle_timeout"`
	MaxLifetime            time.Duration `yaml:"max_lifetime"`
	ValidationTimeout      time.Duration `yaml:"validation_timeout"`
	LeakDetectionThreshold time.Duration `yaml:"leak_detection_threshold"`
	MaintenanceInterval    time.Duration `yaml:"maintenance_interval"`
	AdaptiveSizing         bool          `yaml:"adaptive_sizing"`
	AdaptiveInterval       time.Duration `yaml:"adaptive_interval"`
	AliveBypassWindow      time.Duration `yaml:"alive_bypass_window"`
	KeepaliveTime          time.Duration `yaml:"keepalive_time"`
	ConnectionTestQuery    string        `yaml:"connection_test_query"`
	LogPoolState           bool          `yaml:"log_pool_state"`
	PoolStateLogInterval   time.Duration `yaml:"pool_state_log_interval"`
}

// APIConfig controls the admin HTTP surface (§11 Domain stack, gorilla/mux).
type APIConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Redacted returns a copy of t with the password masked, for logging.
func (t TargetConfig) Redacted() TargetConfig {
	c := t
	if c.Password != "" {
		c.Password = "***REDACTED***"
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, with ${VAR_NAME} environment
// substitution applied before unmarshalling (§10.2).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func validate(cfg *Config) error {
	for name, t := range cfg.Targets {
		if t.Host == "" {
			return fmt.Errorf("target %q: host is required", name)
		}
		if t.Port == 0 {
			return fmt.Errorf("target %q: port is required", name)
		}
		if t.Database == "" {
			return fmt.Errorf("target %q: database is required", name)
		}
		if t.Username == "" {
			return fmt.Errorf("target %q: username is required", name)
		}
		switch t.TLS {
		case "", "none", "trusted", "system":
		default:
			return fmt.Errorf("target %q: unsupported tls mode %q", name, t.TLS)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	for name, t := range cfg.Targets {
		if t.Port == 0 {
			t.Port = 3306
		}
		cfg.Targets[name] = t
	}
	if cfg.Pool.MinConnections == 0 {
		cfg.Pool.MinConnections = 2
	}
	if cfg.Pool.MaxConnections == 0 {
		cfg.Pool.MaxConnections = 20
	}
	if cfg.Pool.ConnectionTimeout == 0 {
		cfg.Pool.ConnectionTimeout = 10 * time.Second
	}
	if cfg.Pool.IdleTimeout == 0 {
		cfg.Pool.IdleTimeout = 5 * time.Minute
	}
	if cfg.Pool.MaxLifetime == 0 {
		cfg.Pool.MaxLifetime = 30 * time.Minute
	}
	if cfg.Pool.ValidationTimeout == 0 {
		cfg.Pool.ValidationTimeout = 5 * time.Second
	}
	if cfg.Pool.MaintenanceInterval == 0 {
		cfg.Pool.MaintenanceInterval = 30 * time.Second
	}
	if cfg.Pool.AdaptiveInterval == 0 {
		cfg.Pool.AdaptiveInterval = time.Minute
	}
	if cfg.API.Bind == "" {
		cfg.API.Bind = "127.0.0.1"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
}
