package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	JWTSecret string `yaml:"jwt_secret"`
	MaxMemory int64  `yaml:"max_memory"` // 渲染缓冲区上限（字节）

	Logging    LoggingConfig    `yaml:"logging"`
	Renderer   RendererConfig   `yaml:"renderer"`
	Collector  CollectorConfig  `yaml:"collector"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
	Events     EventsConfig     `yaml:"events"`
	Export     ExportConfig     `yaml:"export"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// LoggingConfig controls the logrus logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// RendererConfig holds the heatmap kernel parameters.
type RendererConfig struct {
	Radius    int     `yaml:"radius"`
	Intensity float64 `yaml:"intensity"`
	Opacity   float64 `yaml:"opacity"`
	Blend     string  `yaml:"blend"`
	MaxRadius int     `yaml:"max_radius"`
}

// CollectorConfig holds live-session limits.
type CollectorConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxDuration   int           `yaml:"max_duration"` // seconds
	QueueSize     int           `yaml:"queue_size"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
	ReadyDeadline time.Duration `yaml:"ready_deadline"`
}

// ScreenshotConfig configures the DevTools screenshot provider.
type ScreenshotConfig struct {
	Endpoint       string        `yaml:"endpoint"` // ws://... or http://host:9222
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	Scale          float64       `yaml:"scale"`
	Timeout        time.Duration `yaml:"timeout"`
}

// EventsConfig configures the NATS publisher. Empty URL disables it.
type EventsConfig struct {
	NatsURL   string `yaml:"nats_url"`
	NatsToken string `yaml:"nats_token"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	OutputDir   string `yaml:"output_dir"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// RateLimitConfig limits sample ingestion per client.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Port:      ":8080",
		DBPath:    "./data/gazemap/gazemap.db",
		MaxMemory: 1024 * 1024 * 800, // 800MB
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Renderer: RendererConfig{
			Radius:    40,
			Intensity: 0.4,
			Opacity:   0.7,
			Blend:     "multiply",
			MaxRadius: 512,
		},
		Collector: CollectorConfig{
			PollInterval:  100 * time.Millisecond,
			MaxDuration:   120,
			QueueSize:     256,
			MaxBatchSize:  5000,
			ReadyDeadline: 2 * time.Minute,
		},
		Screenshot: ScreenshotConfig{
			ViewportWidth:  1280,
			ViewportHeight: 800,
			Scale:          1,
			Timeout:        45 * time.Second,
		},
		Export: ExportConfig{
			OutputDir:   "./data/gazemap/exports",
			JPEGQuality: 92,
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			Window:   time.Minute,
		},
	}
}

// Load 加载配置: defaults, then the YAML file named by GAZEMAP_CONFIG, then env.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GAZEMAP_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config file over the defaults without consulting env.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envStr("PORT", c.Port)
	c.DBPath = envStr("DB_PATH", c.DBPath)
	c.JWTSecret = envStr("JWT_SECRET", c.JWTSecret)

	c.Logging.Level = envStr("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envStr("LOG_FORMAT", c.Logging.Format)

	c.Renderer.Radius = envInt("HEATMAP_RADIUS", c.Renderer.Radius)
	c.Renderer.Intensity = envFloat("HEATMAP_INTENSITY", c.Renderer.Intensity)
	c.Renderer.Opacity = envFloat("HEATMAP_OPACITY", c.Renderer.Opacity)
	c.Renderer.Blend = envStr("HEATMAP_BLEND", c.Renderer.Blend)
	c.Renderer.MaxRadius = envInt("HEATMAP_MAX_RADIUS", c.Renderer.MaxRadius)

	c.Collector.MaxDuration = envInt("SESSION_MAX_DURATION", c.Collector.MaxDuration)

	c.Screenshot.Endpoint = envStr("CDP_ENDPOINT", c.Screenshot.Endpoint)
	c.Screenshot.ViewportWidth = envInt("SCREENSHOT_WIDTH", c.Screenshot.ViewportWidth)
	c.Screenshot.ViewportHeight = envInt("SCREENSHOT_HEIGHT", c.Screenshot.ViewportHeight)

	c.Events.NatsURL = envStr("NATS_URL", c.Events.NatsURL)
	c.Events.NatsToken = envStr("NATS_TOKEN", c.Events.NatsToken)

	c.Export.OutputDir = envStr("EXPORT_DIR", c.Export.OutputDir)
}

// Validate rejects settings the renderer and collector cannot work with.
func (c *Config) Validate() error {
	if c.Renderer.Radius <= 0 {
		return fmt.Errorf("renderer radius must be positive, got %d", c.Renderer.Radius)
	}
	if c.Renderer.MaxRadius > 0 && c.Renderer.Radius > c.Renderer.MaxRadius {
		return fmt.Errorf("renderer radius %d exceeds max radius %d", c.Renderer.Radius, c.Renderer.MaxRadius)
	}
	if c.Renderer.Intensity <= 0 || c.Renderer.Intensity > 1 {
		return fmt.Errorf("renderer intensity must be in (0, 1], got %g", c.Renderer.Intensity)
	}
	if c.Renderer.Opacity < 0 || c.Renderer.Opacity > 1 {
		return fmt.Errorf("renderer opacity must be in [0, 1], got %g", c.Renderer.Opacity)
	}
	if c.Collector.MaxDuration <= 0 {
		return fmt.Errorf("collector max duration must be positive, got %d", c.Collector.MaxDuration)
	}
	if c.Collector.QueueSize <= 0 {
		return fmt.Errorf("collector queue size must be positive, got %d", c.Collector.QueueSize)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
