package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const devJWTSecret = "dev-secret-change-me"

type Config struct {
	HTTPPort       string
	GRPCPort       string
	Environment    string
	LogLevel       string
	RequestTimeout time.Duration
	Database       DatabaseConfig
	Cart           CartConfig
	Kafka          KafkaConfig
	Payment        PaymentConfig
	Pricing        pricing.Rules
	Auth           AuthConfig
	// ReconcilePolicy is flag or correct.
	ReconcilePolicy string
}

type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

type CartConfig struct {
	Backend       string // redis, mongo or cached
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDBName   string
}

type KafkaConfig struct {
	// Brokers is empty when orphan reports should only be logged.
	Brokers        []string
	ReconcileTopic string
}

type PaymentConfig struct {
	GatewayURL   string
	GatewayToken string
	Currency     string
	// Sandbox is always, random or off. Anything but off ignores GatewayURL.
	Sandbox string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads an optional .env file and the environment. Environment
// variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.SetConfigName(".env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GRPC_PORT", "50051")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "storefront")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "storefront.db")

	v.SetDefault("CART_BACKEND", "redis")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "cartdb")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("RECONCILE_TOPIC", "orders-reconciliation")
	v.SetDefault("RECONCILE_POLICY", "flag")

	v.SetDefault("PAYMENT_GATEWAY_URL", "")
	v.SetDefault("PAYMENT_GATEWAY_TOKEN", "")
	v.SetDefault("PAYMENT_CURRENCY", "INR")
	v.SetDefault("PAYMENT_SANDBOX", "always")

	v.SetDefault("FREE_SHIPPING_THRESHOLD", "500")
	v.SetDefault("FLAT_SHIPPING_FEE", "50")
	v.SetDefault("PROMO_CODES", "SAVE10=0.10")

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("TOKEN_TTL", "24h")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:       v.GetString("HTTP_PORT"),
		GRPCPort:       v.GetString("GRPC_PORT"),
		Environment:    v.GetString("ENVIRONMENT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("DB_DRIVER")),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetInt("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			DBName:     v.GetString("DB_NAME"),
			SSLMode:    v.GetString("DB_SSLMODE"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		Cart: CartConfig{
			Backend:       strings.ToLower(v.GetString("CART_BACKEND")),
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			MongoURI:      v.GetString("MONGO_URI"),
			MongoDBName:   v.GetString("MONGO_DB_NAME"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(v.GetString("KAFKA_BROKERS")),
			ReconcileTopic: v.GetString("RECONCILE_TOPIC"),
		},
		Payment: PaymentConfig{
			GatewayURL:   strings.TrimSpace(v.GetString("PAYMENT_GATEWAY_URL")),
			GatewayToken: strings.TrimSpace(v.GetString("PAYMENT_GATEWAY_TOKEN")),
			Currency:     strings.ToUpper(v.GetString("PAYMENT_CURRENCY")),
			Sandbox:      strings.ToLower(v.GetString("PAYMENT_SANDBOX")),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			TokenTTL:  v.GetDuration("TOKEN_TTL"),
		},
		ReconcilePolicy: strings.ToLower(v.GetString("RECONCILE_POLICY")),
	}

	rules, err := pricingRules(v)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = rules

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Cart.Backend {
	case "redis", "mongo", "cached":
	default:
		return fmt.Errorf("CART_BACKEND must be redis, mongo or cached, got %q", c.Cart.Backend)
	}
	switch c.Payment.Sandbox {
	case "always", "random":
	case "off":
		if c.Payment.GatewayURL == "" {
			return fmt.Errorf("PAYMENT_GATEWAY_URL is required when PAYMENT_SANDBOX=off")
		}
	default:
		return fmt.Errorf("PAYMENT_SANDBOX must be always, random or off, got %q", c.Payment.Sandbox)
	}
	switch c.ReconcilePolicy {
	case "flag", "correct":
	default:
		return fmt.Errorf("RECONCILE_POLICY must be flag or correct, got %q", c.ReconcilePolicy)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && c.Auth.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func pricingRules(v *viper.Viper) (pricing.Rules, error) {
	threshold, err := decimal.NewFromString(v.GetString("FREE_SHIPPING_THRESHOLD"))
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("FREE_SHIPPING_THRESHOLD: %w", err)
	}
	fee, err := decimal.NewFromString(v.GetString("FLAT_SHIPPING_FEE"))
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("FLAT_SHIPPING_FEE: %w", err)
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return pricing.Rules{}, fmt.Errorf("shipping threshold and fee must not be negative")
	}
	codes, err := parsePromoCodes(v.GetString("PROMO_CODES"))
	if err != nil {
		return pricing.Rules{}, err
	}
	return pricing.Rules{
		FreeShippingThreshold: threshold,
		FlatShippingFee:       fee,
		PromoCodes:            codes,
	}, nil
}

// parsePromoCodes reads "CODE=rate,CODE=rate". Codes are upper-cased; rates
// must lie in [0, 1].
func parsePromoCodes(s string) (map[string]decimal.Decimal, error) {
	codes := make(map[string]decimal.Decimal)
	for _, entry := range splitList(s) {
		code, rate, ok := strings.Cut(entry, "=")
		code = strings.ToUpper(strings.TrimSpace(code))
		if !ok || code == "" {
			return nil, fmt.Errorf("PROMO_CODES: malformed entry %q", entry)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil {
			return nil, fmt.Errorf("PROMO_CODES: %s: %w", code, err)
		}
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("PROMO_CODES: %s: rate %s out of range", code, r)
		}
		codes[code] = r
	}
	return codes, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
