package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Site     SiteConfig
	Session  SessionConfig
	Crawl    CrawlConfig
	Category CategoryConfig
	Assets   AssetsConfig
	Output   OutputConfig
	Database DatabaseConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

type SiteConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type SessionConfig struct {
	Email            string
	Password         string
	CookiePath       string
	CaptchaImagePath string
	MaxLoginAttempts int
	LoginRetryDelay  time.Duration
}

type CrawlConfig struct {
	StartYear       int
	PageDelay       time.Duration
	CaptchaBackoff  time.Duration
	MaxPageDelay    time.Duration
	DetailAttempts  int
	DetailRetryWait time.Duration
}

type CategoryConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	CacheSize   int
}

type AssetsConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type OutputConfig struct {
	JSONPath       string
	ImageDir       string
	CheckpointPath string
}

type DatabaseConfig struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
}

type StatusConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Site: SiteConfig{
			BaseURL:   getEnvOrDefault("AMAZHIST_BASE_URL", "https://www.amazon.co.jp"),
			UserAgent: getEnvOrDefault("AMAZHIST_USER_AGENT", defaultUserAgent),
			Timeout:   getDurationOrDefault("AMAZHIST_HTTP_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			Email:            os.Getenv("AMAZHIST_EMAIL"),
			Password:         os.Getenv("AMAZHIST_PASSWORD"),
			CookiePath:       getEnvOrDefault("AMAZHIST_COOKIE_PATH", "cookies.json"),
			CaptchaImagePath: getEnvOrDefault("AMAZHIST_CAPTCHA_PATH", "captcha.jpg"),
			MaxLoginAttempts: getIntOrDefault("AMAZHIST_LOGIN_ATTEMPTS", 5),
			LoginRetryDelay:  getDurationOrDefault("AMAZHIST_LOGIN_RETRY_DELAY", 2*time.Second),
		},
		Crawl: CrawlConfig{
			StartYear:       getIntOrDefault("AMAZHIST_START_YEAR", 2000),
			PageDelay:       getDurationOrDefault("AMAZHIST_PAGE_DELAY", 5*time.Second),
			CaptchaBackoff:  getDurationOrDefault("AMAZHIST_CAPTCHA_BACKOFF", 10*time.Second),
			MaxPageDelay:    getDurationOrDefault("AMAZHIST_MAX_PAGE_DELAY", 60*time.Second),
			DetailAttempts:  getIntOrDefault("AMAZHIST_DETAIL_ATTEMPTS", 3),
			DetailRetryWait: getDurationOrDefault("AMAZHIST_DETAIL_RETRY_WAIT", 5*time.Second),
		},
		Category: CategoryConfig{
			MaxAttempts: getIntOrDefault("AMAZHIST_CATEGORY_ATTEMPTS", 5),
			RetryDelay:  getDurationOrDefault("AMAZHIST_CATEGORY_RETRY_DELAY", 3*time.Second),
			CacheSize:   getIntOrDefault("AMAZHIST_CATEGORY_CACHE_SIZE", 1024),
		},
		Assets: AssetsConfig{
			MaxAttempts: getIntOrDefault("AMAZHIST_ASSET_ATTEMPTS", 5),
			RetryDelay:  getDurationOrDefault("AMAZHIST_ASSET_RETRY_DELAY", 2*time.Second),
		},
		Output: OutputConfig{
			JSONPath:       getEnvOrDefault("AMAZHIST_OUTPUT", "amazhist.json"),
			ImageDir:       getEnvOrDefault("AMAZHIST_IMAGE_DIR", "img"),
			CheckpointPath: getEnvOrDefault("AMAZHIST_CHECKPOINT", "checkpoint.json"),
		},
		Database: DatabaseConfig{
			URL:         os.Getenv("AMAZHIST_DATABASE_URL"),
			MaxConns:    int32(getIntOrDefault("AMAZHIST_DB_MAX_CONNS", 4)),
			MinConns:    int32(getIntOrDefault("AMAZHIST_DB_MIN_CONNS", 1)),
			MaxConnLife: getDurationOrDefault("AMAZHIST_DB_MAX_CONN_LIFE", time.Hour),
		},
		Status: StatusConfig{
			Addr: os.Getenv("AMAZHIST_STATUS_ADDR"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("AMAZHIST_BASE_URL cannot be empty")
	}

	if c.Crawl.StartYear < 1995 || c.Crawl.StartYear > time.Now().Year() {
		return fmt.Errorf("AMAZHIST_START_YEAR must be between 1995 and the current year")
	}

	if c.Crawl.PageDelay < 0 {
		return fmt.Errorf("AMAZHIST_PAGE_DELAY cannot be negative")
	}

	if c.Crawl.PageDelay > c.Crawl.MaxPageDelay {
		return fmt.Errorf("AMAZHIST_PAGE_DELAY cannot be greater than AMAZHIST_MAX_PAGE_DELAY")
	}

	if c.Session.MaxLoginAttempts < 1 {
		return fmt.Errorf("AMAZHIST_LOGIN_ATTEMPTS must be at least 1")
	}

	if c.Category.MaxAttempts < 1 {
		return fmt.Errorf("AMAZHIST_CATEGORY_ATTEMPTS must be at least 1")
	}

	if c.Category.CacheSize < 1 {
		return fmt.Errorf("AMAZHIST_CATEGORY_CACHE_SIZE must be at least 1")
	}

	if c.Assets.MaxAttempts < 1 {
		return fmt.Errorf("AMAZHIST_ASSET_ATTEMPTS must be at least 1")
	}

	if c.Output.JSONPath == "" {
		return fmt.Errorf("output JSON path cannot be empty")
	}

	if c.Output.ImageDir == "" {
		return fmt.Errorf("image directory cannot be empty")
	}

	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
