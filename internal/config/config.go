package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/indexsync/internal/domain/search/strategy"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/routing"
)

// Config holds the indexsync configuration shared by the API server, the stream
// handler and the CLI.
type Config struct {
	HTTP       HTTPConfig        `yaml:"http"`
	Logging    LoggingConfig     `yaml:"logging"`
	Stage      string            `yaml:"stage"` // stage served by the search API
	Stages     []string          `yaml:"stages"`
	Sources    map[string]string `yaml:"sources"` // source table -> stage
	Tenants    []TenantConfig    `yaml:"tenants"`
	Engine     EngineConfig      `yaml:"engine"`
	Search     SearchConfig      `yaml:"search"`
	Ingest     IngestConfig      `yaml:"ingest"`
	Cache      CacheConfig       `yaml:"cache"`
	DeadLetter DeadLetterConfig  `yaml:"dead_letter"`
	Auth       AuthConfig        `yaml:"auth"`
	NATS       NATSConfig        `yaml:"nats"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// TenantConfig is one allow-listed tenant. Endpoint wins over Port.
type TenantConfig struct {
	ID       string `yaml:"id"`
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"` // applied to engine.base_url
}

// EngineConfig holds search engine connection and index settings.
type EngineConfig struct {
	BaseURL         string `yaml:"base_url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	APIKey          string `yaml:"api_key"`
	Refresh         string `yaml:"refresh"` // false, true, wait_for
	MaxRetries      int    `yaml:"max_retries"`
	Shards          int    `yaml:"shards"`
	Replicas        int    `yaml:"replicas"`
	WarmOnStart     bool   `yaml:"warm_on_start"`
	WarmConcurrency int    `yaml:"warm_concurrency"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	// TimeoutsMS overrides the engine timeout per strategy name.
	TimeoutsMS map[string]int `yaml:"timeouts_ms"`
}

// IngestConfig holds dispatcher settings.
type IngestConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// CacheConfig selects the index-existence cache.
type CacheConfig struct {
	Driver string      `yaml:"driver"` // memory, redis, none (default: memory)
	Size   int         `yaml:"size"`
	TTLSec int         `yaml:"ttl_sec"`
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the shared cache.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// DeadLetterConfig selects where terminal failures are archived.
type DeadLetterConfig struct {
	Driver string   `yaml:"driver"` // s3, log, none (default: log)
	S3     S3Config `yaml:"s3"`
}

// S3Config holds dead-letter bucket settings.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// AuthConfig holds caller authentication settings.
type AuthConfig struct {
	Mode        string `yaml:"mode"` // remote, jwt, none (default: remote)
	ValidateURL string `yaml:"validate_url"`
	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`
	CacheSize   int    `yaml:"cache_size"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // 0 disables validation caching
}

// NATSConfig holds the JetStream change feed settings.
type NATSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Stream      string `yaml:"stream"`
	Subject     string `yaml:"subject"`
	Durable     string `yaml:"durable"`
	NakDelaySec int    `yaml:"nak_delay_sec"`
	MaxDeliver  int    `yaml:"max_deliver"`
}

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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 15
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.Stages) == 0 {
		c.Stages = []string{"dev", "test", "prod"}
	}
	if c.Stage == "" {
		c.Stage = "dev"
	}
	if c.Engine.Refresh == "" {
		c.Engine.Refresh = "false"
	}
	if c.Engine.Shards <= 0 {
		c.Engine.Shards = 1
	}
	if c.Engine.WarmConcurrency <= 0 {
		c.Engine.WarmConcurrency = 4
	}
	if c.Ingest.PoolSize <= 0 {
		c.Ingest.PoolSize = 8
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 1024
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 600
	}
	if c.Cache.Redis.KeyPrefix == "" {
		c.Cache.Redis.KeyPrefix = "indexsync:index:"
	}
	if c.DeadLetter.Driver == "" {
		c.DeadLetter.Driver = "log"
	}
	if c.DeadLetter.S3.Prefix == "" {
		c.DeadLetter.S3.Prefix = "dead-letters"
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "remote"
	}
	if c.Auth.CacheSize <= 0 {
		c.Auth.CacheSize = 4096
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "cdc.>"
	}
	if c.NATS.NakDelaySec <= 0 {
		c.NATS.NakDelaySec = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Tenants) == 0 {
		return fmt.Errorf("tenants must not be empty")
	}

	// index names lower-case the tenant id
	seen := make(map[string]string, len(c.Tenants))
	for i, t := range c.Tenants {
		if err := tenant.ValidateID(t.ID); err != nil {
			return fmt.Errorf("tenants[%d]: %w", i, err)
		}
		if prev, dup := seen[strings.ToLower(t.ID)]; dup {
			return fmt.Errorf("tenants[%d]: id %q collides with %q", i, t.ID, prev)
		}
		seen[strings.ToLower(t.ID)] = t.ID
		if t.Endpoint == "" && (t.Port <= 0 || c.Engine.BaseURL == "") {
			return fmt.Errorf("tenants[%d]: endpoint or engine.base_url with port is required", i)
		}
	}

	stages := make(map[string]bool, len(c.Stages))
	for _, s := range c.Stages {
		if err := tenant.ValidateStage(tenant.Stage(s)); err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		stages[s] = true
	}
	if !stages[c.Stage] {
		return fmt.Errorf("stage %q is not one of stages %v", c.Stage, c.Stages)
	}
	for table, s := range c.Sources {
		if !stages[s] {
			return fmt.Errorf("sources.%s: unknown stage %q", table, s)
		}
	}

	switch c.Engine.Refresh {
	case "false", "true", "wait_for":
	default:
		return fmt.Errorf("engine.refresh must be \"false\", \"true\" or \"wait_for\", got %q", c.Engine.Refresh)
	}

	for name, ms := range c.Search.TimeoutsMS {
		if !strategy.Strategy(name).IsValid() {
			return fmt.Errorf("search.timeouts_ms: unknown strategy %q", name)
		}
		if ms <= 0 {
			return fmt.Errorf("search.timeouts_ms.%s must be positive, got %d", name, ms)
		}
	}

	switch c.Cache.Driver {
	case "memory", "none":
	case "redis":
		if len(c.Cache.Redis.Addrs) == 0 {
			return fmt.Errorf("cache.redis.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be \"memory\", \"redis\" or \"none\", got %q", c.Cache.Driver)
	}

	switch c.DeadLetter.Driver {
	case "log", "none":
	case "s3":
		if c.DeadLetter.S3.Bucket == "" {
			return fmt.Errorf("dead_letter.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("dead_letter.driver must be \"s3\", \"log\" or \"none\", got %q", c.DeadLetter.Driver)
	}

	switch c.Auth.Mode {
	case "none":
	case "remote":
		if c.Auth.ValidateURL == "" {
			return fmt.Errorf("auth.validate_url is required for remote auth")
		}
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required for jwt auth")
		}
	default:
		return fmt.Errorf("auth.mode must be \"remote\", \"jwt\" or \"none\", got %q", c.Auth.Mode)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	return nil
}

// Routing converts the tenant and stage sections to a router configuration.
func (c *Config) Routing() routing.Config {
	rc := routing.Config{
		BaseURL: c.Engine.BaseURL,
		Tenants: make([]routing.Tenant, 0, len(c.Tenants)),
		Stages:  make([]tenant.Stage, 0, len(c.Stages)),
		Sources: make(map[string]tenant.Stage, len(c.Sources)),
	}
	for _, t := range c.Tenants {
		rc.Tenants = append(rc.Tenants, routing.Tenant{ID: t.ID, Endpoint: t.Endpoint, Port: t.Port})
	}
	for _, s := range c.Stages {
		rc.Stages = append(rc.Stages, tenant.Stage(s))
	}
	for table, s := range c.Sources {
		rc.Sources[table] = tenant.Stage(s)
	}
	return rc
}

// Timeouts returns the per-strategy engine timeout overrides.
func (c *Config) Timeouts() map[strategy.Strategy]time.Duration {
	out := make(map[strategy.Strategy]time.Duration, len(c.Search.TimeoutsMS))
	for name, ms := range c.Search.TimeoutsMS {
		out[strategy.Strategy(name)] = time.Duration(ms) * time.Millisecond
	}
	return out
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
