package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	// DatabaseURL selects the PostgreSQL backend. Empty means the embedded
	// data file at DataFile.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DataFile    string `envconfig:"DATA_FILE" default:"paintstore-data.json"`
	SeedDemo    bool   `envconfig:"SEED_DEMO" default:"false"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	StatsCacheTTL      time.Duration `envconfig:"STATS_CACHE_TTL" default:"30s"`
	LowStockThreshold  int           `envconfig:"LOW_STOCK_THRESHOLD" default:"10"`
	AllowNegativeStock bool          `envconfig:"ALLOW_NEGATIVE_STOCK" default:"false"`
	PhoneRegion        string        `envconfig:"PHONE_REGION" default:"PK"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	RateLimitPerMinute int  `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`
	CSRFEnabled        bool `envconfig:"CSRF_ENABLED" default:"true"`
}

// Load reads an optional .env file, then the process environment.
// Variables already set in the environment win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.PhoneRegion = strings.ToUpper(strings.TrimSpace(cfg.PhoneRegion))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) UsePostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

func (c Config) UseRedis() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}
