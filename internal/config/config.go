package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/decimal"
	"github.com/spf13/viper"

	"paycrypt/internal/vtpass"
)

// Config holds runtime settings for the gateway and the maintenance CLI.
type Config struct {
	AppEnv    string
	LogLevel  string
	LogFormat string

	HTTPListenAddr     string
	PublicBasePath     string
	CORSAllowedOrigins []string

	DatabaseURL    string
	DatabaseSchema string
	SQLitePath     string
	RunMigrations  bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	VTpassBaseURL    string
	VTpassAPIKey     string
	VTpassPublicKey  string
	VTpassSecretKey  string
	VTpassTimeout    time.Duration
	VTpassCatalogTTL time.Duration

	FulfillmentTimeout time.Duration
	PurchaseMinAmount  decimal.Decimal
	PurchaseMaxAmount  decimal.Decimal
	SupportedChainIDs  []int64

	AdminJWTSecret   string
	MetricsNamespace string
}

// IsProduction reports whether APP_ENV names the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// UsePostgres reports whether orders live in Postgres rather than SQLite.
func (c Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("database_schema", "public")
	v.SetDefault("sqlite_path", "paycrypt.db")
	v.SetDefault("run_migrations", true)
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_tls", false)
	v.SetDefault("vtpass_timeout", "30s")
	v.SetDefault("vtpass_catalog_ttl", "30m")
	v.SetDefault("fulfillment_timeout", "45s")
	v.SetDefault("purchase_min_amount", "100")
	v.SetDefault("purchase_max_amount", "50000")
	v.SetDefault("supported_chain_ids", "8453,1135,42220")
	v.SetDefault("metrics_namespace", "paycrypt")
}

// Load reads configuration from the environment, optionally layered over the
// file named by CONFIG_FILE. Environment variables always win.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		AppEnv:             strings.TrimSpace(v.GetString("app_env")),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		HTTPListenAddr:     v.GetString("http_listen_addr"),
		PublicBasePath:     v.GetString("public_base_path"),
		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
		DatabaseURL:        strings.TrimSpace(v.GetString("database_url")),
		DatabaseSchema:     v.GetString("database_schema"),
		SQLitePath:         strings.TrimSpace(v.GetString("sqlite_path")),
		RunMigrations:      v.GetBool("run_migrations"),
		RedisAddr:          strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:      v.GetString("redis_password"),
		RedisDB:            v.GetInt("redis_db"),
		RedisTLS:           v.GetBool("redis_tls"),
		VTpassBaseURL:      strings.TrimSpace(v.GetString("vtpass_base_url")),
		VTpassAPIKey:       v.GetString("vtpass_api_key"),
		VTpassPublicKey:    v.GetString("vtpass_public_key"),
		VTpassSecretKey:    v.GetString("vtpass_secret_key"),
		VTpassTimeout:      v.GetDuration("vtpass_timeout"),
		VTpassCatalogTTL:   v.GetDuration("vtpass_catalog_ttl"),
		FulfillmentTimeout: v.GetDuration("fulfillment_timeout"),
		AdminJWTSecret:     v.GetString("admin_jwt_secret"),
		MetricsNamespace:   v.GetString("metrics_namespace"),
	}

	var err error
	if cfg.PurchaseMinAmount, err = decimal.Parse(v.GetString("purchase_min_amount")); err != nil {
		return Config{}, fmt.Errorf("parse PURCHASE_MIN_AMOUNT: %w", err)
	}
	if cfg.PurchaseMaxAmount, err = decimal.Parse(v.GetString("purchase_max_amount")); err != nil {
		return Config{}, fmt.Errorf("parse PURCHASE_MAX_AMOUNT: %w", err)
	}
	if cfg.SupportedChainIDs, err = parseChainIDs(v.GetString("supported_chain_ids")); err != nil {
		return Config{}, err
	}

	if cfg.VTpassBaseURL == "" {
		cfg.VTpassBaseURL = vtpass.BaseURLFor(cfg.IsProduction())
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		errs = append(errs, errors.New("one of DATABASE_URL or SQLITE_PATH is required"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if !c.PurchaseMinAmount.IsPos() {
		errs = append(errs, errors.New("PURCHASE_MIN_AMOUNT must be positive"))
	}
	if c.PurchaseMaxAmount.Cmp(c.PurchaseMinAmount) < 0 {
		errs = append(errs, errors.New("PURCHASE_MAX_AMOUNT must not be below PURCHASE_MIN_AMOUNT"))
	}
	if c.VTpassTimeout <= 0 {
		errs = append(errs, errors.New("VTPASS_TIMEOUT must be positive"))
	}
	if c.FulfillmentTimeout <= 0 {
		errs = append(errs, errors.New("FULFILLMENT_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseChainIDs(val string) ([]int64, error) {
	parts := splitList(val)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("SUPPORTED_CHAIN_IDS: invalid chain id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
