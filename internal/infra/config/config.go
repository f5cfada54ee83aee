package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddress   string
	GRPCAddress   string
	HTTPSCertFile string
	HTTPSKeyFile  string

	DatabaseURL        string
	DBMaxConns         int32
	DBMinConns         int32
	DBIdleTimeout      time.Duration
	DBConnectTimeout   time.Duration
	DBStatementTimeout time.Duration

	JWTSecret        string
	JWTRefreshSecret string
	Issuer           string
	Audience         string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	PasswordHashAlgorithm string
	BcryptCost            int

	AllowedOrigins   []string
	AllowCredentials bool
	RateLimitMax     int
	RateLimitWindow  time.Duration

	RedisAddress    string
	RedisPassword   string
	RedisDB         int
	ProfileCacheTTL time.Duration

	MonitorInterval time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

var defaults = map[string]any{
	"HTTP_ADDRESS":            ":3000",
	"GRPC_ADDRESS":            ":50051",
	"DB_HOST":                 "localhost",
	"DB_PORT":                 "5432",
	"DB_NAME":                 "agile_platform",
	"DB_USER":                 "postgres",
	"DB_MAX_CONNS":            20,
	"DB_MIN_CONNS":            2,
	"DB_IDLE_TIMEOUT":         "30s",
	"DB_CONNECT_TIMEOUT":      "2s",
	"DB_STATEMENT_TIMEOUT":    "30s",
	"ACCESS_TOKEN_TTL":        "15m",
	"REFRESH_TOKEN_TTL":       "168h",
	"PASSWORD_HASH_ALGORITHM": "bcrypt",
	"BCRYPT_COST":             12,
	"FRONTEND_URL":            "http://localhost:5173",
	"ALLOW_CREDENTIALS":       true,
	"RATE_LIMIT_MAX":          100,
	"RATE_LIMIT_WINDOW":       "15m",
	"REDIS_DB":                0,
	"PROFILE_CACHE_TTL":       "5m",
	"MONITOR_INTERVAL":        "1m",
	"SHUTDOWN_TIMEOUT":        "10s",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "console",
}

// Load reads configuration from the environment, falling back to an optional
// config.json in the working directory and then to built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range []string{
		"DATABASE_URL", "DB_PASSWORD", "JWT_SECRET", "JWT_REFRESH_SECRET",
		"JWT_ISSUER", "JWT_AUDIENCE", "HTTPS_CERT_FILE", "HTTPS_KEY_FILE",
		"REDIS_ADDRESS", "REDIS_PASSWORD",
	} {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPAddress:   v.GetString("HTTP_ADDRESS"),
		GRPCAddress:   v.GetString("GRPC_ADDRESS"),
		HTTPSCertFile: v.GetString("HTTPS_CERT_FILE"),
		HTTPSKeyFile:  v.GetString("HTTPS_KEY_FILE"),

		DatabaseURL:        v.GetString("DATABASE_URL"),
		DBMaxConns:         v.GetInt32("DB_MAX_CONNS"),
		DBMinConns:         v.GetInt32("DB_MIN_CONNS"),
		DBIdleTimeout:      v.GetDuration("DB_IDLE_TIMEOUT"),
		DBConnectTimeout:   v.GetDuration("DB_CONNECT_TIMEOUT"),
		DBStatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),

		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTRefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
		Issuer:           v.GetString("JWT_ISSUER"),
		Audience:         v.GetString("JWT_AUDIENCE"),
		AccessTokenTTL:   v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL:  v.GetDuration("REFRESH_TOKEN_TTL"),

		PasswordHashAlgorithm: v.GetString("PASSWORD_HASH_ALGORITHM"),
		BcryptCost:            v.GetInt("BCRYPT_COST"),

		AllowedOrigins:   splitList(v.GetString("FRONTEND_URL")),
		AllowCredentials: v.GetBool("ALLOW_CREDENTIALS"),
		RateLimitMax:     v.GetInt("RATE_LIMIT_MAX"),
		RateLimitWindow:  v.GetDuration("RATE_LIMIT_WINDOW"),

		RedisAddress:    v.GetString("REDIS_ADDRESS"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		RedisDB:         v.GetInt("REDIS_DB"),
		ProfileCacheTTL: v.GetDuration("PROFILE_CACHE_TTL"),

		MonitorInterval: v.GetDuration("MONITOR_INTERVAL"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = buildDatabaseURL(
			v.GetString("DB_HOST"), v.GetString("DB_PORT"), v.GetString("DB_NAME"),
			v.GetString("DB_USER"), v.GetString("DB_PASSWORD"),
		)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool bounds: min=%d max=%d", c.DBMinConns, c.DBMaxConns)
	}
	switch c.PasswordHashAlgorithm {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unsupported PASSWORD_HASH_ALGORITHM %q", c.PasswordHashAlgorithm)
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("invalid rate limit: %d per %s", c.RateLimitMax, c.RateLimitWindow)
	}
	return nil
}

func buildDatabaseURL(host, port, name, user, password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
