package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Render  RenderConfig  `yaml:"render"`
	Cache   CacheConfig   `yaml:"cache"`
	Logger  LoggerConfig  `yaml:"logger"`
	Limits  LimitsConfig  `yaml:"limits"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// Mode is passed to gin.SetMode: debug, release or test.
	Mode string `yaml:"mode"`
}

// StorageConfig holds the filesystem roots. Rendered batches live under
// ImagesRoot/{folderId}, archives under ZipRoot and fonts under FontsRoot.
type StorageConfig struct {
	ImagesRoot   string `yaml:"images_root"`
	ZipRoot      string `yaml:"zip_root"`
	FontsRoot    string `yaml:"fonts_root"`
	PublicPrefix string `yaml:"public_prefix"`
}

type RenderConfig struct {
	DefaultFont     string        `yaml:"default_font"`
	DefaultFontSize float64       `yaml:"default_font_size"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxImageBytes   int64         `yaml:"max_image_bytes"`
	// MaxPixels caps width*height of decoded sources and resize targets.
	// 0 disables the check.
	MaxPixels int64 `yaml:"max_pixels"`
	// LocalRoot is the only directory local and file:// references may read
	// from. Empty disables them.
	LocalRoot string `yaml:"local_root"`
	ZipLevel  int    `yaml:"zip_level"`
}

// CacheConfig points at the Redis instance used for batch records. An empty
// RedisAddr keeps records in memory.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	BatchTTL  time.Duration `yaml:"batch_ttl"`
	// MemoryMaxRecords caps the in-memory fallback store.
	MemoryMaxRecords int `yaml:"memory_max_records"`
}

type LoggerConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Level      string `yaml:"level"`
}

type LimitsConfig struct {
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "", Port: "8080", Mode: "release"},
		Storage: StorageConfig{
			ImagesRoot:   "public/images",
			ZipRoot:      "public/zip",
			FontsRoot:    "public/fonts",
			PublicPrefix: "/public",
		},
		Render: RenderConfig{
			DefaultFont:     "weiruanyahei",
			DefaultFontSize: 16,
			FetchTimeout:    10 * time.Second,
			MaxImageBytes:   20 << 20,
			MaxPixels:       40_000_000,
			ZipLevel:        7,
		},
		Cache: CacheConfig{BatchTTL: 24 * time.Hour, MemoryMaxRecords: 10000},
		Logger: LoggerConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Level:      "info",
		},
		Limits: LimitsConfig{MaxBodyBytes: 5 << 20},
	}
}

// Load reads the file named by CONFIG_PATH, or config.yaml.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads path on top of Default. A missing file yields the defaults;
// an unreadable or invalid file panics since the server cannot start with it.
func LoadFrom(path string) Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("config: %s: %v", path, err))
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if strings.TrimSpace(c.Storage.ImagesRoot) == "" {
		return errors.New("storage.images_root is empty")
	}
	if strings.TrimSpace(c.Storage.ZipRoot) == "" {
		return errors.New("storage.zip_root is empty")
	}
	if !strings.HasPrefix(c.Storage.PublicPrefix, "/") {
		return fmt.Errorf("storage.public_prefix must start with '/', got %q", c.Storage.PublicPrefix)
	}
	if c.Render.DefaultFontSize <= 0 {
		return errors.New("render.default_font_size must be positive")
	}
	if c.Render.FetchTimeout < 0 {
		return errors.New("render.fetch_timeout must not be negative")
	}
	if c.Render.MaxPixels < 0 {
		return errors.New("render.max_pixels must not be negative")
	}
	if c.Render.ZipLevel < 1 || c.Render.ZipLevel > 9 {
		return fmt.Errorf("render.zip_level must be between 1 and 9, got %d", c.Render.ZipLevel)
	}
	if c.Cache.BatchTTL < 0 {
		return errors.New("cache.batch_ttl must not be negative")
	}
	if c.Cache.MemoryMaxRecords <= 0 {
		return errors.New("cache.memory_max_records must be positive")
	}
	if c.Limits.MaxBodyBytes <= 0 {
		return errors.New("limits.max_body_bytes must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	port := c.Server.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return c.Server.Host + port
}
