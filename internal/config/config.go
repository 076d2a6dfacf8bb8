package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinAccessCodeLength is the shortest access code the issuer may be configured to mint.
const MinAccessCodeLength = 6

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	AuthMode             string        `mapstructure:"AUTH_MODE"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	MQTTBroker           string        `mapstructure:"MQTT_BROKER"`
	MQTTClientID         string        `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername         string        `mapstructure:"MQTT_USERNAME"`
	MQTTPassword         string        `mapstructure:"MQTT_PASSWORD"`
	MQTTTopicPrefix      string        `mapstructure:"MQTT_TOPIC_PREFIX"`
	SMSGatewayURL        string        `mapstructure:"SMS_GATEWAY_URL"`
	SMSGatewayToken      string        `mapstructure:"SMS_GATEWAY_TOKEN"`
	SMSSenderID          string        `mapstructure:"SMS_SENDER_ID"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL          string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant        string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	AccessRateLimitRPS   float64       `mapstructure:"ACCESS_RATE_LIMIT_RPS"`
	AccessRateLimitBurst int           `mapstructure:"ACCESS_RATE_LIMIT_BURST"`
	AccessCodeTTL        time.Duration `mapstructure:"ACCESS_CODE_TTL"`
	AccessCodeLength     int           `mapstructure:"ACCESS_CODE_LENGTH"`
	MigrationsDir        string        `mapstructure:"MIGRATIONS_DIR"`
	MemoryStore          bool          `mapstructure:"MEMORY_STORE"`
	LabName              string        `mapstructure:"LAB_NAME"`
	// TrustProxy reads client IPs from X-Forwarded-For set by a proxy on a
	// private or loopback address. Off means the socket peer address.
	TrustProxy           bool          `mapstructure:"TRUST_PROXY"`
}

var envKeys = []string{
	"PORT", "ENV", "AUTH_MODE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL",
	"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_TOPIC_PREFIX",
	"SMS_GATEWAY_URL", "SMS_GATEWAY_TOKEN", "SMS_SENDER_ID",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"DEFAULT_TENANT", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"ACCESS_RATE_LIMIT_RPS", "ACCESS_RATE_LIMIT_BURST",
	"ACCESS_CODE_TTL", "ACCESS_CODE_LENGTH",
	"MIGRATIONS_DIR", "MEMORY_STORE",
	"LAB_NAME", "TRUST_PROXY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MQTT_CLIENT_ID", "seeklab-server")
	v.SetDefault("MQTT_TOPIC_PREFIX", "seeklab")
	v.SetDefault("SMS_SENDER_ID", "SEEKLAB")
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("ACCESS_RATE_LIMIT_RPS", 0.2)
	v.SetDefault("ACCESS_RATE_LIMIT_BURST", 5)
	v.SetDefault("ACCESS_CODE_TTL", "72h")
	v.SetDefault("ACCESS_CODE_LENGTH", 10)
	v.SetDefault("MIGRATIONS_DIR", "")
	v.SetDefault("LAB_NAME", "Seeklab")

	// Bind explicitly so Unmarshal picks env vars up without a config file.
	for _, k := range envKeys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" && !cfg.MemoryStore {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, unauthenticated requests act as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. An explicit AUTH_MODE wins;
// otherwise ENV=development means "development" and everything else "external".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "external" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when AUTH_MODE is \"external\" (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}
	if c.AccessCodeLength < MinAccessCodeLength {
		return fmt.Errorf("ACCESS_CODE_LENGTH must be at least %d, got %d", MinAccessCodeLength, c.AccessCodeLength)
	}
	if c.AccessCodeTTL <= 0 {
		return fmt.Errorf("ACCESS_CODE_TTL must be positive, got %s", c.AccessCodeTTL)
	}
	if c.AccessRateLimitRPS < 0 || c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}
