package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration loaded from YAML.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Limits struct {
		MaxTemplateBytes int `yaml:"max_template_bytes"`
		MaxPDFBytes      int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Cache CacheConfig `yaml:"cache"`

	PDF struct {
		TimeoutSecs     int    `yaml:"timeout_secs"`
		ChromePath      string `yaml:"chrome_path"`
		ChromeNoSandbox bool   `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int    `yaml:"chrome_pool_size"`
		UserDataDir     string `yaml:"user_data_dir"`
	} `yaml:"pdf"`

	Template struct {
		DefaultPath string `yaml:"default_path"`
	} `yaml:"template"`

	Layout LayoutConfig `yaml:"layout"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// CacheConfig selects and sizes the label cache backend.
type CacheConfig struct {
	Enabled    bool           `yaml:"enabled"`
	Backend    string         `yaml:"backend"` // memory|redis|badger|postgres
	TTL        time.Duration  `yaml:"ttl"`
	MaxEntries int            `yaml:"max_entries"`
	KeyPrefix  string         `yaml:"key_prefix"`
	RedisHost  string         `yaml:"redis_host"`
	LabelDB    int            `yaml:"redis_label_db"`
	RateDB     int            `yaml:"redis_rate_db"`
	BadgerDir  string         `yaml:"badger_dir"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds connection settings for the Postgres cache backend.
// Host may also carry a full postgres:// URL.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// LayoutConfig places the overlay on the template, in millimetres.
type LayoutConfig struct {
	PageWidthMM   float64 `yaml:"page_width_mm"`
	PageHeightMM  float64 `yaml:"page_height_mm"`
	BarcodeXMM    float64 `yaml:"barcode_x_mm"`
	BarcodeYMM    float64 `yaml:"barcode_y_mm"`
	BarcodeSizeMM float64 `yaml:"barcode_size_mm"`
	BarcodePixels int     `yaml:"barcode_pixels"`
	TextXMM       float64 `yaml:"text_x_mm"`
	TextTopMM     float64 `yaml:"text_top_mm"`
	Font          string  `yaml:"font"`
	FontSize      int     `yaml:"font_size"`
}

var cacheBackends = map[string]bool{
	"memory":   true,
	"redis":    true,
	"badger":   true,
	"postgres": true,
}

var (
	// AppConfig is the process-wide configuration set by LoadConfig.
	AppConfig Config
	configMu  sync.RWMutex
)

// LoadConfig reads the file named by CONFIG_PATH (default config.yaml),
// stores it as AppConfig and returns it. It panics on invalid configuration.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg := LoadConfigFrom(path)

	configMu.Lock()
	AppConfig = cfg
	configMu.Unlock()
	return cfg
}

// LoadConfigFrom reads, defaults and validates the config at path.
func LoadConfigFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("failed to read config %q: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse config %q: %v", path, err))
	}

	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		panic(fmt.Sprintf("invalid config %q: %v", path, err))
	}
	return cfg
}

// GetConfig returns the configuration last stored by LoadConfig.
func GetConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return AppConfig
}

// DefaultLayout mirrors the 152.5 x 101.6 mm label stock.
func DefaultLayout() LayoutConfig {
	return LayoutConfig{
		PageWidthMM:   152.5,
		PageHeightMM:  101.6,
		BarcodeXMM:    121.5,
		BarcodeYMM:    5.7,
		BarcodeSizeMM: 25,
		BarcodePixels: 300,
		TextXMM:       5,
		TextTopMM:     28.6,
		Font:          "Helvetica",
		FontSize:      14,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Limits.MaxTemplateBytes == 0 {
		cfg.Limits.MaxTemplateBytes = 10 * 1024 * 1024
	}
	if cfg.Limits.MaxPDFBytes == 0 {
		cfg.Limits.MaxPDFBytes = 20 * 1024 * 1024
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	cfg.Cache.Backend = strings.ToLower(cfg.Cache.Backend)
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 512
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "labelcache"
	}
	if cfg.PDF.TimeoutSecs == 0 {
		cfg.PDF.TimeoutSecs = 30
	}

	def := DefaultLayout()
	l := &cfg.Layout
	if l.PageWidthMM == 0 {
		l.PageWidthMM = def.PageWidthMM
	}
	if l.PageHeightMM == 0 {
		l.PageHeightMM = def.PageHeightMM
	}
	if l.BarcodeXMM == 0 {
		l.BarcodeXMM = def.BarcodeXMM
	}
	if l.BarcodeYMM == 0 {
		l.BarcodeYMM = def.BarcodeYMM
	}
	if l.BarcodeSizeMM == 0 {
		l.BarcodeSizeMM = def.BarcodeSizeMM
	}
	if l.BarcodePixels == 0 {
		l.BarcodePixels = def.BarcodePixels
	}
	if l.TextXMM == 0 {
		l.TextXMM = def.TextXMM
	}
	if l.TextTopMM == 0 {
		l.TextTopMM = def.TextTopMM
	}
	if l.Font == "" {
		l.Font = def.Font
	}
	if l.FontSize == 0 {
		l.FontSize = def.FontSize
	}
}

func validate(cfg Config) error {
	if !cacheBackends[cfg.Cache.Backend] {
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries must not be negative")
	}
	if cfg.Cache.Enabled && cfg.Cache.Backend == "badger" && cfg.Cache.BadgerDir == "" {
		return fmt.Errorf("cache badger_dir is required for the badger backend")
	}
	if cfg.Cache.Enabled && cfg.Cache.Backend == "redis" && cfg.Cache.RedisHost == "" {
		return fmt.Errorf("cache redis_host is required for the redis backend")
	}
	if cfg.Cache.Enabled && cfg.Cache.Backend == "postgres" && cfg.Cache.Postgres.Host == "" {
		return fmt.Errorf("cache postgres.host is required for the postgres backend")
	}
	if cfg.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter user_limit must not be negative")
	}
	if cfg.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter interval must be positive")
	}
	if cfg.PDF.TimeoutSecs < 0 {
		return fmt.Errorf("pdf timeout_secs must not be negative")
	}
	l := cfg.Layout
	if l.PageWidthMM <= 0 || l.PageHeightMM <= 0 {
		return fmt.Errorf("layout page size must be positive")
	}
	if l.BarcodeSizeMM <= 0 || l.BarcodePixels <= 0 {
		return fmt.Errorf("layout barcode size must be positive")
	}
	if l.BarcodeXMM+l.BarcodeSizeMM > l.PageWidthMM || l.BarcodeYMM+l.BarcodeSizeMM > l.PageHeightMM {
		return fmt.Errorf("layout barcode does not fit on the page")
	}
	return nil
}
