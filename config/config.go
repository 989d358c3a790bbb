package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Gateway      GatewayConfig
	Auth         AuthConfig
	Scheduler    SchedulerConfig
	Referral     ReferralConfig
	RabbitMQ     RabbitMQConfig
	Notification NotificationConfig
	ProfileSync  ProfileSyncConfig
	R2           R2Config
	Log          LogConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type GatewayConfig struct {
	ServiceToken string
}

type AuthConfig struct {
	ServiceURL string
}

type SchedulerConfig struct {
	Enabled    bool
	CronSecret string
	LockDays   int
	RunAt      string // "HH:MM" UTC
}

type ReferralConfig struct {
	RewardMB                 int64
	DefaultCommissionPercent float64
}

type RabbitMQConfig struct {
	URL      string
	Queue    string
	Prefetch int
	Workers  int
}

type NotificationConfig struct {
	ServiceURL string
	Token      string
	PoolSize   int
}

type ProfileSyncConfig struct {
	URL      string
	Interval time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

type LogConfig struct {
	Level string
	File  string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	origins := strings.Split(v.GetString("ALLOWED_ORIGINS"), ",")
	for i, o := range origins {
		origins[i] = strings.TrimSpace(o)
	}

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			AllowedOrigins: origins,
		},
		Database: DatabaseConfig{
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Gateway: GatewayConfig{
			ServiceToken: v.GetString("GATEWAY_SERVICE_TOKEN"),
		},
		Auth: AuthConfig{
			ServiceURL: v.GetString("AUTH_SERVICE_URL"),
		},
		Scheduler: SchedulerConfig{
			Enabled:    v.GetBool("SCHEDULER_ENABLED"),
			CronSecret: v.GetString("CRON_SECRET"),
			LockDays:   v.GetInt("COMMISSION_LOCK_DAYS"),
			RunAt:      v.GetString("APPROVAL_RUN_AT"),
		},
		Referral: ReferralConfig{
			RewardMB:                 v.GetInt64("REFERRAL_REWARD_MB"),
			DefaultCommissionPercent: v.GetFloat64("DEFAULT_COMMISSION_PERCENT"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Queue:    v.GetString("ORDER_EVENTS_QUEUE"),
			Prefetch: v.GetInt("RABBITMQ_PREFETCH"),
			Workers:  v.GetInt("RABBITMQ_WORKERS"),
		},
		Notification: NotificationConfig{
			ServiceURL: v.GetString("NOTIFICATION_SERVICE_URL"),
			Token:      v.GetString("NOTIFICATION_SERVICE_TOKEN"),
			PoolSize:   v.GetInt("NOTIFY_POOL_SIZE"),
		},
		ProfileSync: ProfileSyncConfig{
			URL:      v.GetString("PROFILE_SYNC_URL"),
			Interval: v.GetDuration("PROFILE_SYNC_INTERVAL"),
		},
		R2: R2Config{
			AccountID:       v.GetString("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
			AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
			Bucket:          v.GetString("R2_BUCKET_NAME"),
			CDNBaseURL:      v.GetString("CDN_BASE_URL"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5200")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("COMMISSION_LOCK_DAYS", 14)
	v.SetDefault("APPROVAL_RUN_AT", "03:00")
	v.SetDefault("REFERRAL_REWARD_MB", 1024)
	v.SetDefault("DEFAULT_COMMISSION_PERCENT", 10)
	v.SetDefault("ORDER_EVENTS_QUEUE", "order_events")
	v.SetDefault("RABBITMQ_PREFETCH", 20)
	v.SetDefault("RABBITMQ_WORKERS", 4)
	v.SetDefault("NOTIFY_POOL_SIZE", 16)
	v.SetDefault("PROFILE_SYNC_INTERVAL", "1m")
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate checks the settings the HTTP server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Gateway.ServiceToken == "" {
		errs = append(errs, errors.New("GATEWAY_SERVICE_TOKEN is required"))
	}
	if c.Scheduler.CronSecret == "" {
		errs = append(errs, errors.New("CRON_SECRET is required"))
	}
	if c.Scheduler.LockDays < 0 {
		errs = append(errs, errors.New("COMMISSION_LOCK_DAYS must not be negative"))
	}
	if _, err := time.Parse("15:04", c.Scheduler.RunAt); err != nil {
		errs = append(errs, errors.New("APPROVAL_RUN_AT must be HH:MM"))
	}
	return errors.Join(errs...)
}
