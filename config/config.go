// Package config loads the mediaforge configuration once at startup using
// Viper. The resulting Config value is passed explicitly to every
// constructor; nothing reads settings at call time.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultDataDir        = "./data"
	defaultScheme         = "file"
	defaultEncoder        = "ffmpeg"
	defaultMaxConcurrent  = 2
	defaultMaxQueued      = 64
	defaultUpdateInterval = 100 * time.Millisecond
	defaultStatusTTL      = 24 * time.Hour
	defaultHTTPTimeout    = 5 * time.Minute
	defaultServerAddr     = ":8080"
	defaultFailureMaxAge  = 30 * 24 * time.Hour
	defaultCleanupEvery   = 24 * time.Hour
)

// Known driver, auth strategy and encoder names. The maps in the
// configuration bind schemes to these names.
var (
	DriverNames   = []string{"filesystem", "temporary", "webdav", "s3", "gcs", "sftp"}
	StrategyNames = []string{"basic", "digest", "bearer"}
	EncoderNames  = []string{"ffmpeg", "copy"}
)

// Config holds all configuration for the application.
type Config struct {
	DataDir        string            `mapstructure:"data_dir"`
	TempRoot       string            `mapstructure:"temp_root"`
	DefaultScheme  string            `mapstructure:"default_scheme"`
	DefaultEncoder string            `mapstructure:"default_encoder"`
	Volumes        map[string]string `mapstructure:"volumes"` // scheme -> driver name
	Auth           map[string]string `mapstructure:"auth"`    // auth scheme -> strategy name
	Encoders       []string          `mapstructure:"encoders"`

	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Transcode  TranscodeConfig  `mapstructure:"transcode"`
	TaskStatus TaskStatusConfig `mapstructure:"taskstatus"`
	S3         S3Config         `mapstructure:"s3"`
	GCS        GCSConfig        `mapstructure:"gcs"`
	Failures   FailuresConfig   `mapstructure:"failures"`
	Publish    PublishConfig    `mapstructure:"publish"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// FFmpegConfig names the encoder and prober binaries.
type FFmpegConfig struct {
	Binary string `mapstructure:"binary"`
	Probe  string `mapstructure:"probe"`
}

// TranscodeConfig bounds the worker pool and the progress update rate.
type TranscodeConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	MaxQueued      int           `mapstructure:"max_queued"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
}

// TaskStatusConfig selects where task progress is published.
type TaskStatusConfig struct {
	Backend string        `mapstructure:"backend"` // memory, redis
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds the Redis connection used by the redis task status backend.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// S3Config configures the s3 volume driver.
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// GCSConfig configures the gcs volume driver. A non-empty Endpoint points
// the driver at an emulator and disables authentication.
type GCSConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// FailuresConfig controls retention of failure records.
type FailuresConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// PublishConfig locates the volume that receives published copies of media
// whose own volume cannot render a public URL.
type PublishConfig struct {
	Locator string `mapstructure:"locator"`  // e.g. file:///srv/www/media
	BaseURL string `mapstructure:"base_url"` // e.g. https://cdn.example.com/media/
}

// HTTPConfig configures the HTTP client used by the webdav driver.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	TokenSecret    string `mapstructure:"token_secret"`     // enables HS256 bearer checks on mutating routes
	TokenPublicKey string `mapstructure:"token_public_key"` // PEM file; enables RS256 bearer checks
	TokenIssuer    string `mapstructure:"token_issuer"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MEDIAFORGE_ and use underscores
// for nesting, e.g. MEDIAFORGE_TRANSCODE_MAX_CONCURRENT=4.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mediaforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mediaforge")
	}

	v.SetEnvPrefix("MEDIAFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.TempRoot == "" {
		cfg.TempRoot = os.TempDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("temp_root", "")
	v.SetDefault("default_scheme", defaultScheme)
	v.SetDefault("default_encoder", defaultEncoder)
	v.SetDefault("volumes", map[string]string{
		"file":  "filesystem",
		"tmp":   "temporary",
		"http":  "webdav",
		"https": "webdav",
		"s3":    "s3",
		"gs":    "gcs",
		"sftp":  "sftp",
	})
	v.SetDefault("auth", map[string]string{
		"basic":  "basic",
		"digest": "digest",
		"bearer": "bearer",
	})
	v.SetDefault("encoders", EncoderNames)

	v.SetDefault("ffmpeg.binary", "ffmpeg")
	v.SetDefault("ffmpeg.probe", "ffprobe")

	v.SetDefault("transcode.max_concurrent", defaultMaxConcurrent)
	v.SetDefault("transcode.max_queued", defaultMaxQueued)
	v.SetDefault("transcode.update_interval", defaultUpdateInterval)

	v.SetDefault("taskstatus.backend", "memory")
	v.SetDefault("taskstatus.ttl", defaultStatusTTL)
	v.SetDefault("taskstatus.redis.addr", "localhost:6379")
	v.SetDefault("taskstatus.redis.key_prefix", "mediaforge:task:")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("gcs.endpoint", "")
	v.SetDefault("http.timeout", defaultHTTPTimeout)

	v.SetDefault("failures.max_age", defaultFailureMaxAge)
	v.SetDefault("failures.cleanup_interval", defaultCleanupEvery)

	v.SetDefault("publish.locator", "")
	v.SetDefault("publish.base_url", "")

	v.SetDefault("server.addr", defaultServerAddr)
	v.SetDefault("server.token_public_key", "")
	v.SetDefault("server.token_issuer", "mediaforge")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DefaultScheme == "" {
		return fmt.Errorf("default_scheme is required")
	}
	if len(c.Volumes) == 0 {
		return fmt.Errorf("at least one volume must be configured")
	}
	for scheme, driver := range c.Volumes {
		if !contains(DriverNames, driver) {
			return fmt.Errorf("volumes.%s: unknown driver %q (known: %s)", scheme, driver, strings.Join(DriverNames, ", "))
		}
	}
	if _, ok := c.Volumes[c.DefaultScheme]; !ok {
		return fmt.Errorf("default_scheme %q has no volume driver", c.DefaultScheme)
	}
	for scheme, strategy := range c.Auth {
		if !contains(StrategyNames, strategy) {
			return fmt.Errorf("auth.%s: unknown strategy %q (known: %s)", scheme, strategy, strings.Join(StrategyNames, ", "))
		}
	}
	for _, name := range c.Encoders {
		if !contains(EncoderNames, name) {
			return fmt.Errorf("encoders: unknown encoder %q", name)
		}
	}
	if !contains(c.Encoders, c.DefaultEncoder) {
		return fmt.Errorf("default_encoder %q is not in encoders", c.DefaultEncoder)
	}
	if c.Transcode.MaxConcurrent < 1 {
		return fmt.Errorf("transcode.max_concurrent must be at least 1")
	}
	if c.Transcode.MaxQueued < 0 {
		return fmt.Errorf("transcode.max_queued must not be negative")
	}
	if c.Transcode.UpdateInterval <= 0 {
		return fmt.Errorf("transcode.update_interval must be positive")
	}
	switch c.TaskStatus.Backend {
	case "memory":
	case "redis":
		if c.TaskStatus.Redis.Addr == "" {
			return fmt.Errorf("taskstatus.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("taskstatus.backend must be one of: memory, redis")
	}
	return nil
}

// CredentialsDBPath returns the full path to the credentials database.
// The credentials database stores (scheme, origin) authentication material.
// Path: {data_dir}/credentials.db
func (c *Config) CredentialsDBPath() string {
	return filepath.Join(c.DataDir, "credentials.db")
}

// MediaDBPath returns the full path to the media record database.
// Path: {data_dir}/media.db
func (c *Config) MediaDBPath() string {
	return filepath.Join(c.DataDir, "media.db")
}

// FailuresDBPath returns the full path to the failures database.
// The failures database tracks transcodes whose encoder exited nonzero.
// Path: {data_dir}/failures.db
func (c *Config) FailuresDBPath() string {
	return filepath.Join(c.DataDir, "failures.db")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
