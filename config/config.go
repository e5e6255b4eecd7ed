package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config represents the application configuration
type Config struct {
	Environment string        `env:"HOTDEAL_ENVIRONMENT" envDefault:"development"`
	LogLevel    string        `env:"LOG_LEVEL"`
	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	// DatabaseURL selects the Postgres store. Empty means the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`

	Redis    Redis
	Memcache Memcache
	RabbitMQ RabbitMQ
	Crawl    Crawl
	Schedule Schedule
	Sites    Sites
}

// Redis holds the stream publisher configuration
type Redis struct {
	Addr         string `env:"REDIS_ADDR"`
	DB           int    `env:"REDIS_DB" envDefault:"0"`
	StreamPrefix string `env:"REDIS_STREAM_PREFIX" envDefault:"hotdeals"`
	StreamCount  int    `env:"REDIS_STREAM_COUNT" envDefault:"1"`
	MaxLen       int64  `env:"REDIS_STREAM_MAX_LEN" envDefault:"1000"`
}

// Memcache holds the rate-limit block cache configuration
type Memcache struct {
	Addr string `env:"MEMCACHE_ADDR"`
}

// RabbitMQ holds the crawl command queue configuration
type RabbitMQ struct {
	URL      string `env:"RABBITMQ_URL"`
	Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"dealcrawler-ex"`
	Queue    string `env:"RABBITMQ_QUEUE" envDefault:"dealcrawler.commands"`
}

// Crawl holds engine limits and the defaults merged into every job
type Crawl struct {
	MaxPages             int           `env:"CRAWL_MAX_PAGES" envDefault:"1"`
	PageDelay            time.Duration `env:"CRAWL_PAGE_DELAY" envDefault:"1s"`
	DetailDelay          time.Duration `env:"CRAWL_DETAIL_DELAY" envDefault:"500ms"`
	RetryAttempts        int           `env:"CRAWL_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay           time.Duration `env:"CRAWL_RETRY_DELAY" envDefault:"1s"`
	BackoffMultiplier    float64       `env:"CRAWL_BACKOFF_MULTIPLIER" envDefault:"2"`
	MaxRetryDelay        time.Duration `env:"CRAWL_MAX_RETRY_DELAY" envDefault:"30s"`
	MaxConcurrentSources int           `env:"CRAWL_MAX_CONCURRENT_SOURCES" envDefault:"4"`
	PerSourceConcurrency int           `env:"CRAWL_PER_SOURCE_CONCURRENCY" envDefault:"1"`
	RequestsPerSecond    float64       `env:"CRAWL_REQUESTS_PER_SECOND" envDefault:"2"`
	BlockTime            time.Duration `env:"CRAWL_BLOCK_TIME" envDefault:"5m"`
}

// Schedule holds the recurring crawl job configuration
type Schedule struct {
	Cron     string   `env:"CRAWL_SCHEDULE" envDefault:"*/5 * * * *"`
	Sources  []string `env:"CRAWL_SCHEDULE_SOURCES" envSeparator:"," envDefault:"ppomppu,ruliweb,clien,quasarzone"`
	MaxPages int      `env:"CRAWL_SCHEDULE_MAX_PAGES" envDefault:"2"`
}

// Sites holds list page URL overrides per source
type Sites struct {
	PpomURL       string `env:"PPOM_URL" envDefault:"https://www.ppomppu.co.kr/zboard/zboard.php?id=ppomppu"`
	PpomEnURL     string `env:"PPOMEN_URL" envDefault:"https://www.ppomppu.co.kr/zboard/zboard.php?id=ppomppu4"`
	RuliwebURL    string `env:"RULIWEB_URL" envDefault:"https://bbs.ruliweb.com/market/board/1020?view=thumbnail"`
	ClienURL      string `env:"CLIEN_URL" envDefault:"https://www.clien.net/service/board/jirum"`
	QuasarURL     string `env:"QUASAR_URL" envDefault:"https://quasarzone.com/bbs/qb_saleinfo"`
	CoolandjoyURL string `env:"COOLANDJOY_URL" envDefault:"https://coolenjoy.net/bbs/jirum"`
	FMKoreaURL    string `env:"FMKOREA_URL" envDefault:"http://www.fmkorea.com/hotdeal"`
	DamoangURL    string `env:"DAMOANG_URL" envDefault:"https://damoang.net/economy"`
	ArcaURL       string `env:"ARCA_URL" envDefault:"https://arca.live/b/hotdeal"`
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Crawl.MaxPages < 1:
		return fmt.Errorf("CRAWL_MAX_PAGES must be at least 1, got %d", c.Crawl.MaxPages)
	case c.Crawl.RetryAttempts < 0:
		return fmt.Errorf("CRAWL_RETRY_ATTEMPTS must not be negative, got %d", c.Crawl.RetryAttempts)
	case c.Crawl.PageDelay < 0 || c.Crawl.DetailDelay < 0 || c.Crawl.RetryDelay < 0:
		return fmt.Errorf("crawl delays must not be negative")
	case c.Crawl.BackoffMultiplier < 1:
		return fmt.Errorf("CRAWL_BACKOFF_MULTIPLIER must be at least 1, got %v", c.Crawl.BackoffMultiplier)
	case c.Crawl.MaxConcurrentSources < 1:
		return fmt.Errorf("CRAWL_MAX_CONCURRENT_SOURCES must be at least 1, got %d", c.Crawl.MaxConcurrentSources)
	case c.Crawl.PerSourceConcurrency < 1:
		return fmt.Errorf("CRAWL_PER_SOURCE_CONCURRENCY must be at least 1, got %d", c.Crawl.PerSourceConcurrency)
	case c.Redis.StreamCount < 1:
		return fmt.Errorf("REDIS_STREAM_COUNT must be at least 1, got %d", c.Redis.StreamCount)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
