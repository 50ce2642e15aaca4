package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache backends
const (
	CacheBackendFile   = "file"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Remote order store configuration
	Remote RemoteConfig `mapstructure:"remote"`

	// Local durable cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Redis configuration, used when cache.backend is redis
	Redis RedisConfig `mapstructure:"redis"`

	// Database configuration for the order store service
	Database DatabaseConfig `mapstructure:"database"`

	// Admin gate configuration for the order store service
	Admin AdminConfig `mapstructure:"admin"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	StorePort    int    `mapstructure:"store_port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`

	// Browser origins allowed by CORS; empty allows any
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Per-client submission limit; 0 disables it
	SubmitRatePerMinute int `mapstructure:"submit_rate_per_minute"`
	SubmitBurst         int `mapstructure:"submit_burst"`
}

// RemoteConfig holds settings for talking to the remote order store
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Bound on the startup health probe, in milliseconds
	ProbeTimeoutMS int `mapstructure:"probe_timeout_ms"`
	// Bound on each create/get/list call, in milliseconds
	RequestTimeoutMS int `mapstructure:"request_timeout_ms"`
	// Admin bearer token sent with every call, if set
	AdminToken string `mapstructure:"admin_token"`
}

// ProbeTimeout returns the probe bound as a duration
func (r RemoteConfig) ProbeTimeout() time.Duration {
	return time.Duration(r.ProbeTimeoutMS) * time.Millisecond
}

// RequestTimeout returns the per-call bound as a duration
func (r RemoteConfig) RequestTimeout() time.Duration {
	return time.Duration(r.RequestTimeoutMS) * time.Millisecond
}

// CacheConfig holds local durable cache configuration
type CacheConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	ListLimit int    `mapstructure:"list_limit"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// AdminConfig holds the location-based admin gate
type AdminConfig struct {
	AllowedCIDRs []string `mapstructure:"allowed_cidrs"`
	// HS256 secret for admin bearer tokens; empty disables them
	TokenSecret string `mapstructure:"token_secret"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	MetricsPath  string  `mapstructure:"metrics_path"`
	HealthPath   string  `mapstructure:"health_path"`
	Tracing      bool    `mapstructure:"tracing"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medrex")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFile loads configuration from an explicit YAML file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.store_port", 8090)
	v.SetDefault("server.submit_rate_per_minute", 30)
	v.SetDefault("server.submit_burst", 10)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	// Remote store defaults
	v.SetDefault("remote.base_url", "http://localhost:8090")
	v.SetDefault("remote.probe_timeout_ms", 650)
	v.SetDefault("remote.request_timeout_ms", 5000)

	// Cache defaults
	v.SetDefault("cache.backend", CacheBackendFile)
	v.SetDefault("cache.dir", "./data")
	v.SetDefault("cache.list_limit", 200)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "medrex")
	v.SetDefault("database.user", "medrex")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	// Admin gate defaults: loopback and private ranges only
	v.SetDefault("admin.allowed_cidrs", []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "192.168.0.0/16"})

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")
	v.SetDefault("monitoring.tracing", false)
	v.SetDefault("monitoring.sampling_rate", 1.0)

	// Logging defaults
	v.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if remoteURL := os.Getenv("REMOTE_STORE_URL"); remoteURL != "" {
		config.Remote.BaseURL = remoteURL
	}

	if dbPassword := os.Getenv("DATABASE_PASSWORD"); dbPassword != "" {
		config.Database.Password = dbPassword
	}

	if secret := os.Getenv("ADMIN_TOKEN_SECRET"); secret != "" {
		config.Admin.TokenSecret = secret
	}

	if token := os.Getenv("REMOTE_ADMIN_TOKEN"); token != "" {
		config.Remote.AdminToken = token
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.StorePort <= 0 || config.Server.StorePort > 65535 {
		return fmt.Errorf("invalid order store port: %d", config.Server.StorePort)
	}

	if config.Server.SubmitRatePerMinute > 0 && config.Server.SubmitBurst < 1 {
		return fmt.Errorf("submit burst must be at least 1 when rate limiting is on")
	}

	if config.Remote.ProbeTimeoutMS <= 0 {
		return fmt.Errorf("remote probe timeout must be positive")
	}

	if config.Remote.RequestTimeoutMS <= 0 {
		return fmt.Errorf("remote request timeout must be positive")
	}

	switch config.Cache.Backend {
	case CacheBackendFile:
		if config.Cache.Dir == "" {
			return fmt.Errorf("cache directory is required for the file backend")
		}
	case CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend: %q", config.Cache.Backend)
	}

	for _, cidr := range config.Admin.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid admin CIDR %q: %w", cidr, err)
		}
	}

	return nil
}
