package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/selectd/internal/domain/view"
	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

// Config holds the selectd server configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Cache         CacheConfig         `yaml:"cache"`
	Auth          AuthConfig          `yaml:"auth"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Sources       []SourceConfig      `yaml:"sources"`
	Views         []ViewConfig        `yaml:"views"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// CacheConfig holds the permission cache settings. Caching is on only when
// TimeoutSec is positive.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: memory)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Namespace        string   `yaml:"namespace"`
	Strategy         string   `yaml:"strategy"` // auto, generation, pattern, ttl
	DevEnabled       bool     `yaml:"dev_enabled"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// APIKeyConfig maps a static bearer token to an identity.
type APIKeyConfig struct {
	Key       string   `yaml:"key"`
	User      string   `yaml:"user"`
	Groups    []string `yaml:"groups"`
	Superuser bool     `yaml:"superuser"`
}

// AuthConfig holds request authentication settings.
type AuthConfig struct {
	APIKeys   []APIKeyConfig `yaml:"api_keys"`
	JWTSecret string         `yaml:"jwt_secret"`
	JWTIssuer string         `yaml:"jwt_issuer"`
	LoginURL  string         `yaml:"login_url"`
}

// RuleConfig grants actions on a view.
type RuleConfig struct {
	View          string   `yaml:"view"`
	Actions       []string `yaml:"actions"`
	Users         []string `yaml:"users"`
	Groups        []string `yaml:"groups"`
	Authenticated bool     `yaml:"authenticated"`
}

// AuthorizationConfig holds the permission policy.
type AuthorizationConfig struct {
	Superusers []string     `yaml:"superusers"`
	Rules      []RuleConfig `yaml:"rules"`
}

// SourceConfig declares a named collection.
type SourceConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"` // memory, postgres, sqlite, mysql
	// SQL sources
	DSN            string   `yaml:"dsn"`
	Table          string   `yaml:"table"`
	Columns        []string `yaml:"columns"`
	MaxOpenConns   int      `yaml:"max_open_conns"`
	ConnectTimeout int      `yaml:"connect_timeout_sec"`
	// memory sources
	Records []map[string]any `yaml:"records"`
}

// ViewConfig is a view definition plus its filter declarations in any
// shape filterspec.Normalize accepts.
type ViewConfig struct {
	view.Definition `yaml:",inline"`
	Filters         any `yaml:"filters"`
	Excludes        any `yaml:"excludes"`
}

var (
	cacheDrivers  = []string{"memory", "redis", "valkey"}
	sourceDrivers = []string{"memory", "postgres", "sqlite", "mysql"}
	devEnvs       = []string{"local", "dev"}
)

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Strategy == "" {
		c.Cache.Strategy = "auto"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	for i := range c.Sources {
		if c.Sources[i].ConnectTimeout <= 0 {
			c.Sources[i].ConnectTimeout = 30
		}
	}
}

// Validate checks the configuration for correctness. View and filter
// declarations are checked in depth by ViewDefinitions.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Cache.TimeoutSec < 0 {
		return fmt.Errorf("cache.timeout_sec must not be negative, got %d", c.Cache.TimeoutSec)
	}
	if !slices.Contains(cacheDrivers, c.Cache.Driver) {
		return fmt.Errorf("cache.driver must be one of %v, got %q", cacheDrivers, c.Cache.Driver)
	}
	if c.Cache.Driver != "memory" && c.Cache.TimeoutSec > 0 && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required for driver %q", c.Cache.Driver)
	}
	switch c.Cache.Strategy {
	case "auto", "generation", "pattern", "ttl":
	default:
		return fmt.Errorf("cache.strategy must be auto, generation, pattern or ttl, got %q", c.Cache.Strategy)
	}

	for i, k := range c.Auth.APIKeys {
		if k.Key == "" || k.User == "" {
			return fmt.Errorf("auth.api_keys[%d]: key and user are required", i)
		}
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("sources[%d]: duplicate source %q", i, s.Name)
		}
		seen[s.Name] = struct{}{}
		if !slices.Contains(sourceDrivers, s.Driver) {
			return fmt.Errorf("sources.%s.driver must be one of %v, got %q", s.Name, sourceDrivers, s.Driver)
		}
		if s.Driver != "memory" && (s.DSN == "" || s.Table == "" || len(s.Columns) == 0) {
			return fmt.Errorf("sources.%s: dsn, table and columns are required for driver %q", s.Name, s.Driver)
		}
	}

	for i, v := range c.Views {
		if _, ok := seen[v.Source]; !ok {
			return fmt.Errorf("views[%d] (%s): unknown source %q", i, v.Name, v.Source)
		}
	}
	return nil
}

// CacheTTL returns the permission cache TTL for env. Zero disables caching,
// which is the default for development environments.
func (c *Config) CacheTTL(env string) time.Duration {
	if c.Cache.TimeoutSec <= 0 {
		return 0
	}
	if slices.Contains(devEnvs, env) && !c.Cache.DevEnabled {
		return 0
	}
	return time.Duration(c.Cache.TimeoutSec) * time.Second
}

// ViewDefinitions normalizes the filter declarations of every view.
func (c *Config) ViewDefinitions() ([]view.Definition, error) {
	defs := make([]view.Definition, 0, len(c.Views))
	for _, vc := range c.Views {
		d := vc.Definition
		var err error
		if d.Filters, err = filterspec.Normalize(vc.Filters); err != nil {
			return nil, fmt.Errorf("views.%s.filters: %w", d.Name, err)
		}
		if d.Excludes, err = filterspec.Normalize(vc.Excludes); err != nil {
			return nil, fmt.Errorf("views.%s.excludes: %w", d.Name, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
