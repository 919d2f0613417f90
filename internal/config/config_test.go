package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.amazon.co.jp", cfg.Site.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Site.Timeout)
	assert.Equal(t, 2000, cfg.Crawl.StartYear)
	assert.Equal(t, 5*time.Second, cfg.Crawl.PageDelay)
	assert.Equal(t, 60*time.Second, cfg.Crawl.MaxPageDelay)
	assert.Equal(t, 3, cfg.Crawl.DetailAttempts)
	assert.Equal(t, 5, cfg.Session.MaxLoginAttempts)
	assert.Equal(t, 5, cfg.Category.MaxAttempts)
	assert.Equal(t, 1024, cfg.Category.CacheSize)
	assert.Equal(t, "amazhist.json", cfg.Output.JSONPath)
	assert.Equal(t, "img", cfg.Output.ImageDir)
	assert.Equal(t, "checkpoint.json", cfg.Output.CheckpointPath)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AMAZHIST_BASE_URL", "https://www.amazon.com")
	t.Setenv("AMAZHIST_START_YEAR", "2015")
	t.Setenv("AMAZHIST_PAGE_DELAY", "2s")
	t.Setenv("AMAZHIST_LOGIN_ATTEMPTS", "7")
	t.Setenv("AMAZHIST_OUTPUT", "/tmp/orders.json")
	t.Setenv("AMAZHIST_DATABASE_URL", "postgres://localhost/amazhist")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.amazon.com", cfg.Site.BaseURL)
	assert.Equal(t, 2015, cfg.Crawl.StartYear)
	assert.Equal(t, 2*time.Second, cfg.Crawl.PageDelay)
	assert.Equal(t, 7, cfg.Session.MaxLoginAttempts)
	assert.Equal(t, "/tmp/orders.json", cfg.Output.JSONPath)
	assert.Equal(t, "postgres://localhost/amazhist", cfg.Database.URL)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("AMAZHIST_START_YEAR", "not-a-year")
	t.Setenv("AMAZHIST_PAGE_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.Crawl.StartYear)
	assert.Equal(t, 5*time.Second, cfg.Crawl.PageDelay)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty base url",
			mutate:  func(c *Config) { c.Site.BaseURL = "" },
			wantErr: "AMAZHIST_BASE_URL",
		},
		{
			name:    "start year before amazon existed",
			mutate:  func(c *Config) { c.Crawl.StartYear = 1990 },
			wantErr: "AMAZHIST_START_YEAR",
		},
		{
			name:    "start year in the future",
			mutate:  func(c *Config) { c.Crawl.StartYear = time.Now().Year() + 1 },
			wantErr: "AMAZHIST_START_YEAR",
		},
		{
			name:    "negative page delay",
			mutate:  func(c *Config) { c.Crawl.PageDelay = -time.Second },
			wantErr: "AMAZHIST_PAGE_DELAY",
		},
		{
			name:    "page delay above ceiling",
			mutate:  func(c *Config) { c.Crawl.PageDelay = 2 * time.Minute },
			wantErr: "AMAZHIST_MAX_PAGE_DELAY",
		},
		{
			name:    "zero login attempts",
			mutate:  func(c *Config) { c.Session.MaxLoginAttempts = 0 },
			wantErr: "AMAZHIST_LOGIN_ATTEMPTS",
		},
		{
			name:    "zero category cache",
			mutate:  func(c *Config) { c.Category.CacheSize = 0 },
			wantErr: "AMAZHIST_CATEGORY_CACHE_SIZE",
		},
		{
			name:    "empty output path",
			mutate:  func(c *Config) { c.Output.JSONPath = "" },
			wantErr: "output JSON path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
