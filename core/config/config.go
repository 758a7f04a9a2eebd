package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Log       LogConfig      `mapstructure:"log"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	JWT       JWTConfig      `mapstructure:"jwt"`
	Crypto    CryptoConfig   `mapstructure:"crypto"`
	GoogleAPI OAuthConfig    `mapstructure:"google"`
	Microsoft OAuthConfig    `mapstructure:"microsoft"`
	Calendly  OAuthConfig    `mapstructure:"calendly"`
	Square    OAuthConfig    `mapstructure:"square"`
	Mindbody  MindbodyConfig `mapstructure:"mindbody"`
	Stripe    StripeConfig   `mapstructure:"stripe"`
	Payout    PayoutConfig   `mapstructure:"payout"`
	Sync      SyncConfig     `mapstructure:"sync"`
	S3        S3Config       `mapstructure:"s3"`
	Worker    WorkerConfig   `mapstructure:"worker"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // minutes
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type CryptoConfig struct {
	// TokenKey is a base64 encoded 32 byte key for provider tokens at rest.
	TokenKey string `mapstructure:"token_key"`
}

type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	TokenURL     string `mapstructure:"token_url"`
}

type MindbodyConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PayoutConfig struct {
	CommissionBps     int64         `mapstructure:"commission_bps"`
	Currency          string        `mapstructure:"currency"`
	Concurrency       int           `mapstructure:"concurrency"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	Schedule          string        `mapstructure:"schedule"`
	ReconcileSchedule string        `mapstructure:"reconcile_schedule"`
}

type SyncConfig struct {
	Schedule    string        `mapstructure:"schedule"`
	PastDays    int           `mapstructure:"past_days"`
	FutureDays  int           `mapstructure:"future_days"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
}

type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	Timezone    string `mapstructure:"timezone"`
}

var (
	mu      sync.RWMutex
	current *Config
)

// Load reads config.yaml (or the file at path) plus HOBBYIST_* environment
// overrides and stores the result for Get/GetSafe.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("HOBBYIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7070)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "hobbyist")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("jwt.issuer", "hobbyist")

	v.SetDefault("google.base_url", "https://www.googleapis.com/calendar/v3/")
	v.SetDefault("microsoft.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("calendly.base_url", "https://api.calendly.com")
	v.SetDefault("calendly.token_url", "https://auth.calendly.com/oauth/token")
	v.SetDefault("square.base_url", "https://connect.squareup.com")
	v.SetDefault("square.token_url", "https://connect.squareup.com/oauth2/token")
	v.SetDefault("mindbody.base_url", "https://api.mindbodyonline.com/public/v6")

	v.SetDefault("payout.commission_bps", 1500)
	v.SetDefault("payout.currency", "usd")
	v.SetDefault("payout.concurrency", 4)
	v.SetDefault("payout.lock_ttl", "10m")
	v.SetDefault("payout.stale_after", "1h")
	v.SetDefault("payout.schedule", "0 6 * * *")
	v.SetDefault("payout.reconcile_schedule", "*/30 * * * *")

	v.SetDefault("sync.schedule", "0 * * * *")
	v.SetDefault("sync.past_days", 30)
	v.SetDefault("sync.future_days", 30)
	v.SetDefault("sync.concurrency", 3)
	v.SetDefault("sync.timeout", "30s")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.prefix", "calendar-imports")

	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.timezone", "UTC")
}

func (c *Config) Validate() error {
	if c.Payout.CommissionBps < 0 || c.Payout.CommissionBps > 10000 {
		return fmt.Errorf("payout.commission_bps must be between 0 and 10000, got %d", c.Payout.CommissionBps)
	}
	if c.Payout.Concurrency < 1 {
		c.Payout.Concurrency = 1
	}
	if c.Sync.Concurrency < 1 {
		c.Sync.Concurrency = 1
	}
	for name, spec := range map[string]string{
		"payout.schedule":           c.Payout.Schedule,
		"payout.reconcile_schedule": c.Payout.ReconcileSchedule,
		"sync.schedule":             c.Sync.Schedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: invalid cron spec %q: %w", name, spec, err)
		}
	}
	if c.Crypto.TokenKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Crypto.TokenKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("crypto.token_key must be 32 bytes of base64")
		}
	}
	return nil
}

// Get returns the loaded config and panics if Load has not run.
func Get() *Config {
	cfg, err := GetSafe()
	if err != nil {
		panic(err)
	}
	return cfg
}

func GetSafe() (*Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return current, nil
}
