package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/storage/postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, a .env file or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Pool        PoolConfig
	OrderNumber OrderNumberConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// PoolConfig tunes the PostgreSQL connection pool.
type PoolConfig struct {
	MaxConns        int32         `default:"10" usage:"Maximum open connections"`
	MinConns        int32         `default:"1" usage:"Connections kept open when idle"`
	MaxConnLifetime time.Duration `default:"1h" usage:"Recycle connections after this long"`
	MaxConnIdleTime time.Duration `default:"30m" usage:"Close connections idle for this long"`
	ConnectAttempts int           `default:"5" usage:"Startup ping attempts before giving up"`
}

// OrderNumberConfig controls order number generation.
type OrderNumberConfig struct {
	Capacity uint `default:"1000000" usage:"Expected numbers issued per process, sizes the dedupe filter"`
	Attempts int  `default:"3" usage:"Create attempts when a generated number collides"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// RateLimitConfig controls per-client request rate limiting.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then configuration from YAML files, environment
// variables and flags, and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
	}
	if cfg.RateLimit.Max > 0 && cfg.RateLimit.Window <= 0 {
		return nil, errors.Errorf("rate limit window must be positive, got %s", cfg.RateLimit.Window)
	}
	if cfg.OrderNumber.Attempts < 1 {
		return nil, errors.Errorf("order number attempts must be positive, got %d", cfg.OrderNumber.Attempts)
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// PoolConfig converts the pool settings for postgres.NewPool.
func (c *Config) PoolConfig() postgres.PoolConfig {
	return postgres.PoolConfig{
		URL:             c.DatabaseURL,
		MaxConns:        c.Pool.MaxConns,
		MinConns:        c.Pool.MinConns,
		MaxConnLifetime: c.Pool.MaxConnLifetime,
		MaxConnIdleTime: c.Pool.MaxConnIdleTime,
		ConnectAttempts: c.Pool.ConnectAttempts,
	}
}
