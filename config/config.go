package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAssets is the fixed manifest of asset paths the offline cache pre-populates.
var DefaultAssets = []string{
	"./",
	"./index.html",
	"./app.js",
	"./manifest.webmanifest",
	"./icon-192.png",
	"./icon-512.png",
}

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Camera     CameraConfig     `yaml:"camera"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Cart       CartConfig       `yaml:"cart"`
	Offline    OfflineConfig    `yaml:"offline"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
// Push is disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	Gzip            bool     `yaml:"gzip"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// StorageConfig selects where the code list is persisted.
type StorageConfig struct {
	Key     string `yaml:"key"`
	Backend string `yaml:"backend"` // "database" or "memory"
}

// CameraConfig describes the snapshot camera the scanner reads from.
type CameraConfig struct {
	SnapshotURL         string        `yaml:"snapshot_url"`
	ProbeTimeoutSeconds int           `yaml:"probe_timeout_seconds"`
	FrameIntervalMS     int           `yaml:"frame_interval_ms"`
	ProbeTimeout        time.Duration `yaml:"-"`
	FrameInterval       time.Duration `yaml:"-"`
}

// ScannerConfig holds the options handed to the scanning engine.
type ScannerConfig struct {
	HighlightScanRegion      bool    `yaml:"highlight_scan_region"`
	ReturnDetailedScanResult bool    `yaml:"return_detailed_scan_result"`
	MaxScansPerSecond        float64 `yaml:"max_scans_per_second"`
	PreferredCamera          string  `yaml:"preferred_camera"`
}

// CartConfig holds the cart view rendering options.
type CartConfig struct {
	QRSize int `yaml:"qr_size"`
}

// OfflineConfig holds the offline asset cache options.
type OfflineConfig struct {
	CacheName string   `yaml:"cache_name"`
	Assets    []string `yaml:"assets"`
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML, expanding ${VAR} references and filling defaults.
func Parse(data []byte) (*Config, error) {
	expanded := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envVarRe.FindStringSubmatch(match)[1])
	})

	// Keys left out of the file keep these values.
	cfg := Config{
		Scanner: ScannerConfig{
			HighlightScanRegion:      true,
			ReturnDetailedScanResult: true,
		},
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec == 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "qr-mac.db"
	}

	if c.Storage.Key == "" {
		c.Storage.Key = "codes"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "database"
	}

	if c.Camera.FrameIntervalMS <= 0 {
		c.Camera.FrameIntervalMS = 125
	}
	c.Camera.FrameInterval = time.Duration(c.Camera.FrameIntervalMS) * time.Millisecond
	if c.Camera.ProbeTimeoutSeconds > 0 {
		c.Camera.ProbeTimeout = time.Duration(c.Camera.ProbeTimeoutSeconds) * time.Second
	}

	if c.Scanner.MaxScansPerSecond <= 0 {
		c.Scanner.MaxScansPerSecond = 8
	}
	if c.Scanner.PreferredCamera == "" {
		c.Scanner.PreferredCamera = "environment"
	}

	if c.Cart.QRSize <= 0 {
		c.Cart.QRSize = 200
	}

	if c.Offline.CacheName == "" {
		c.Offline.CacheName = "qr-mac-v1"
	}
	if len(c.Offline.Assets) == 0 {
		c.Offline.Assets = append([]string(nil), DefaultAssets...)
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}

	if c.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		c.WorkerPool.Size = 1
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.RateLimitPerSec < 0 {
		return fmt.Errorf("server.rate_limit_per_sec must not be negative")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case "database", "memory":
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}
