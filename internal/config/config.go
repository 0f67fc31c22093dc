package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Chain    ChainConfig    `yaml:"chain"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test

	AllowedOrigins []string `yaml:"allowed_origins"` // empty allows any origin
	WriteRPS       float64  `yaml:"write_rps"`       // per-caller budget on write routes
	WriteBurst     int      `yaml:"write_burst"`
	ShutdownSecs   int      `yaml:"shutdown_seconds"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`

	// Pool settings; zero leaves the driver default.
	MaxOpenConns    int `yaml:"max_open_conns"`
	MaxIdleConns    int `yaml:"max_idle_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime_minutes"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type LogConfig struct {
	Level         string `yaml:"level"`          // debug, info, warn, error
	RetentionDays int    `yaml:"retention_days"` // system_logs rows older than this are purged, 0 keeps everything
}

// RedisConfig for the optional async task queue and distributed chain locks
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ChainConfig tunes the role-chain engine.
type ChainConfig struct {
	LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
	LockWaitSeconds int    `yaml:"lock_wait_seconds"`
	AuditEnabled    bool   `yaml:"audit_enabled"`
	AuditCron       string `yaml:"audit_cron"`
	AutoRepair      bool   `yaml:"auto_repair"`

	WorkerConcurrency int `yaml:"worker_concurrency"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyServerDefaults()
	cfg.applyChainDefaults()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",

			WriteRPS:     5,
			WriteBurst:   10,
			ShutdownSecs: 15,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "emergex.db",
		},
		JWT: JWTConfig{
			Secret: "emergex-secret-key-change-in-production",
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 90,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Chain: ChainConfig{
			LockTTLSeconds:  30,
			LockWaitSeconds: 10,
			AuditEnabled:    true,
			AuditCron:       "0 3 * * *",
			AutoRepair:      false,

			WorkerConcurrency: 4,
		},
	}
}

func (c *Config) overrideFromEnv() error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, o)
			}
		}
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if spec := os.Getenv("CHAIN_AUDIT_CRON"); spec != "" {
		c.Chain.AuditCron = spec
	}
	if repair := os.Getenv("CHAIN_AUTO_REPAIR"); repair != "" {
		if v, err := strconv.ParseBool(repair); err == nil {
			c.Chain.AutoRepair = v
		}
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := c.parseRedisURL(redisURL); err != nil {
			return err
		}
		c.Redis.Enabled = true
	}
	return nil
}

func (c *Config) applyServerDefaults() {
	if c.Server.WriteRPS <= 0 {
		c.Server.WriteRPS = 5
	}
	if c.Server.WriteBurst <= 0 {
		c.Server.WriteBurst = 10
	}
	if c.Server.ShutdownSecs <= 0 {
		c.Server.ShutdownSecs = 15
	}
}

func (c *Config) applyChainDefaults() {
	if c.Chain.LockTTLSeconds <= 0 {
		c.Chain.LockTTLSeconds = 30
	}
	if c.Chain.LockWaitSeconds <= 0 {
		c.Chain.LockWaitSeconds = 10
	}
	if c.Chain.WorkerConcurrency <= 0 {
		c.Chain.WorkerConcurrency = 4
	}
	if c.Chain.AuditCron == "" {
		c.Chain.AuditCron = "0 3 * * *"
	}
}

// parseRedisURL applies a redis:// or rediss:// URL to the Redis section.
func (c *Config) parseRedisURL(redisURL string) error {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	c.Redis.Addr = opt.Addr
	c.Redis.Username = opt.Username
	c.Redis.Password = opt.Password
	c.Redis.DB = opt.DB
	return nil
}
