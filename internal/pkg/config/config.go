package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// Config is the process-wide configuration. It is built once at startup and
// passed by pointer into every component; nothing mutates it afterwards.
type Config struct {
	AppEnv  string
	AppHost string
	AppPort string
	BaseURL string

	APIKeys []string

	// WebhookSecrets maps a lower-case provider name to its shared secret.
	WebhookSecrets       map[string]string
	DefaultWebhookSecret string

	DefaultCurrency string
	GatewayTimeout  time.Duration

	MobileMoney     MobileMoneyConfig
	CardCheckoutURL string

	Database DatabaseConfig
	Cache    CacheConfig

	RateLimitMax    int
	RateLimitWindow time.Duration

	MetricsUser     string
	MetricsPassword string

	Archive ArchiveConfig
}

// MobileMoneyConfig configures the mobile-money push provider. An empty URL
// runs the strategy in sandbox mode.
type MobileMoneyConfig struct {
	URL    string
	APIKey string
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// DSN returns the MySQL data source name used by GORM.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MigrateURL returns the golang-migrate database URL for the same server.
func (d DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type CacheConfig struct {
	Host     string
	Port     string
	Password string
	Enabled  bool
}

// Addr returns host:port of the cache server.
func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ArchiveConfig configures raw webhook body archiving to S3-compatible storage.
type ArchiveConfig struct {
	Enabled         bool
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string
}

// Load reads configuration through env.GetEnv.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:               env.GetEnv("APP_ENV", "prod"),
		AppHost:              env.GetEnv("APP_HOST", "localhost"),
		AppPort:              env.GetEnv("APP_PORT", "4000"),
		APIKeys:              splitList(env.GetEnv("API_KEYS", "")),
		WebhookSecrets:       map[string]string{},
		DefaultWebhookSecret: strings.TrimSpace(env.GetEnv("WEBHOOK_SECRET", "")),
		DefaultCurrency:      strings.ToUpper(env.GetEnv("DEFAULT_CURRENCY", "MZN")),
		MobileMoney: MobileMoneyConfig{
			URL:    strings.TrimSpace(env.GetEnv("MOBILE_MONEY_API_URL", "")),
			APIKey: env.GetEnv("MOBILE_MONEY_API_KEY", ""),
		},
		CardCheckoutURL: strings.TrimSpace(env.GetEnv("CARD_CHECKOUT_URL", "")),
		Database: DatabaseConfig{
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			Name:     env.GetEnv("DB_NAME", ""),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			Enabled:  env.GetEnv("CACHE_ENABLED", "true") == "true",
		},
		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
		Archive: ArchiveConfig{
			Enabled:         env.GetEnv("S3_ARCHIVE_ENABLED", "false") == "true",
			AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
			Region:          env.GetEnv("S3_REGION", "us-east-1"),
			BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
			EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		},
	}

	var err error
	if cfg.GatewayTimeout, err = parseDuration("GATEWAY_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = parseDuration("RATE_LIMIT_WINDOW", "1m"); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = strconv.Atoi(env.GetEnv("RATE_LIMIT_MAX", "120")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_MAX: %w", err)
	}

	for _, provider := range splitList(env.GetEnv("WEBHOOK_PROVIDERS", "mpesa,emola,card")) {
		key := "WEBHOOK_SECRET_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
		if secret := strings.TrimSpace(env.GetEnv(key, "")); secret != "" {
			cfg.WebhookSecrets[strings.ToLower(provider)] = secret
		}
	}

	cfg.BaseURL = ResolveBaseURL(env.GetEnv, cfg.AppHost, cfg.AppPort)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.DefaultCurrency) != 3 {
		return errors.New("DEFAULT_CURRENCY must be a 3-letter code")
	}
	if c.GatewayTimeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT must be positive")
	}
	if c.Archive.Enabled && (c.Archive.AccessKeyID == "" || c.Archive.SecretAccessKey == "" || c.Archive.BucketName == "") {
		return errors.New("S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY and S3_BUCKET_NAME are required when S3 archiving is enabled")
	}
	return nil
}

// WebhookSecret returns the secret for a provider, falling back to the
// default secret.
func (c *Config) WebhookSecret(provider string) string {
	if secret, ok := c.WebhookSecrets[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return secret
	}
	return c.DefaultWebhookSecret
}

// ResolveBaseURL returns the absolute public base URL of the service without a
// trailing slash. An explicit BASE_URL wins; otherwise hostname variables set
// by common hosting platforms are consulted, then the listen address.
func ResolveBaseURL(get func(key, def string) string, host, port string) string {
	if explicit := strings.TrimSpace(get("BASE_URL", "")); explicit != "" {
		return normalizeBaseURL(explicit)
	}
	if domain := strings.TrimSpace(get("RAILWAY_PUBLIC_DOMAIN", "")); domain != "" {
		return normalizeBaseURL(domain)
	}
	if external := strings.TrimSpace(get("RENDER_EXTERNAL_URL", "")); external != "" {
		return normalizeBaseURL(external)
	}
	if vercel := strings.TrimSpace(get("VERCEL_URL", "")); vercel != "" {
		return normalizeBaseURL(vercel)
	}
	if app := strings.TrimSpace(get("HEROKU_APP_NAME", "")); app != "" {
		return normalizeBaseURL(app + ".herokuapp.com")
	}
	return fmt.Sprintf("http://%s:%s", host, port)
}

func normalizeBaseURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(env.GetEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
