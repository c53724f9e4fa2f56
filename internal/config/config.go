// Package config centralizes how OTADrop reads its settings and exposes them
// as strongly typed Go values. Values come from environment variables (seeded
// from an optional .env file), then an optional YAML file named by
// OTADROP_CONFIG, then defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dharsanguruparan/OTADrop/internal/upload"
)

// Storage backends.
const (
	BackendFilesystem = "filesystem"
	BackendMemory     = "memory"
	BackendS3         = "s3"
	BackendPostgres   = "postgres"
)

// Cleanup modes for archives left behind by a failed manifest write.
const (
	CleanupNone   = "none"
	CleanupInline = "inline"
	CleanupQueue  = "queue"
)

// Config represents runtime configuration for the service. Each component
// receives the values it needs at construction time.
type Config struct {
	Address       string   `yaml:"address"`
	PublicBaseURL string   `yaml:"public_base_url"`
	MaxFileSize   int64    `yaml:"max_file_bytes"`
	AllowedTypes  []string `yaml:"allowed_extensions"`

	StorageBackend string `yaml:"storage_backend"`
	UploadDir      string `yaml:"upload_dir"`
	ManifestDir    string `yaml:"manifest_dir"`

	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UseSSL       bool   `yaml:"s3_use_ssl"`
	S3Region       string `yaml:"s3_region"`
	ArchiveBucket  string `yaml:"archive_bucket"`
	ManifestBucket string `yaml:"manifest_bucket"`

	DatabaseURL string `yaml:"database_url"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	CleanupMode    string `yaml:"cleanup_mode"`
	CleanupWorkers int    `yaml:"cleanup_workers"`

	EncodeInstallURL bool `yaml:"encode_install_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

const (
	// 500 << 20 equals 500 * 2^20 bytes.
	defaultAddress        = ":5000"
	defaultMaxFileSize    = 500 << 20
	defaultAllowedTypes   = "ipa"
	defaultUploadDir      = "static/uploads"
	defaultManifestDir    = "static/manifests"
	defaultArchiveBucket  = "otadrop-archives"
	defaultManifestBucket = "otadrop-manifests"
	defaultRedisAddr      = "localhost:6379"
	defaultCleanupWorkers = 2
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Address:        defaultAddress,
		MaxFileSize:    defaultMaxFileSize,
		AllowedTypes:   splitList(defaultAllowedTypes),
		StorageBackend: BackendFilesystem,
		UploadDir:      defaultUploadDir,
		ManifestDir:    defaultManifestDir,
		ArchiveBucket:  defaultArchiveBucket,
		ManifestBucket: defaultManifestBucket,
		RedisAddr:      defaultRedisAddr,
		CleanupMode:    CleanupNone,
		CleanupWorkers: defaultCleanupWorkers,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
	}
}

// Load reads configuration from the optional YAML file and the environment,
// falling back to defaults.
func Load() (*Config, error) {
	if err := loadDotEnv(readEnv("OTADROP_ENV_FILE", ".env")); err != nil {
		return nil, err
	}
	cfg := Default()
	if path := readEnv("OTADROP_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.Address = readEnv("OTADROP_ADDRESS", cfg.Address)
	cfg.PublicBaseURL = readEnv("OTADROP_PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.MaxFileSize = parseInt64("OTADROP_MAX_FILE_BYTES", cfg.MaxFileSize)
	if v := readEnv("OTADROP_ALLOWED_EXTENSIONS", ""); v != "" {
		cfg.AllowedTypes = splitList(v)
	}
	cfg.StorageBackend = readEnv("OTADROP_STORAGE", cfg.StorageBackend)
	cfg.UploadDir = readEnv("OTADROP_UPLOAD_DIR", cfg.UploadDir)
	cfg.ManifestDir = readEnv("OTADROP_MANIFEST_DIR", cfg.ManifestDir)
	cfg.S3Endpoint = readEnv("OTADROP_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKey = readEnv("OTADROP_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = readEnv("OTADROP_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UseSSL = parseBool("OTADROP_S3_USE_SSL", cfg.S3UseSSL)
	cfg.S3Region = readEnv("OTADROP_S3_REGION", cfg.S3Region)
	cfg.ArchiveBucket = readEnv("OTADROP_ARCHIVE_BUCKET", cfg.ArchiveBucket)
	cfg.ManifestBucket = readEnv("OTADROP_MANIFEST_BUCKET", cfg.ManifestBucket)
	cfg.DatabaseURL = readEnv("OTADROP_DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = readEnv("OTADROP_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = readEnv("OTADROP_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = parseInt("OTADROP_REDIS_DB", cfg.RedisDB)
	cfg.CleanupMode = readEnv("OTADROP_CLEANUP", cfg.CleanupMode)
	cfg.CleanupWorkers = parseInt("OTADROP_CLEANUP_WORKERS", cfg.CleanupWorkers)
	cfg.EncodeInstallURL = parseBool("OTADROP_ENCODE_INSTALL_URL", cfg.EncodeInstallURL)
	cfg.LogLevel = readEnv("OTADROP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = readEnv("OTADROP_LOG_FORMAT", cfg.LogFormat)

	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.CleanupWorkers <= 0 {
		cfg.CleanupWorkers = defaultCleanupWorkers
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = splitList(defaultAllowedTypes)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown enumerations and missing backend settings.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendFilesystem, BackendMemory:
	case BackendS3:
		if c.S3Endpoint == "" {
			return fmt.Errorf("storage backend s3 requires OTADROP_S3_ENDPOINT")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("storage backend postgres requires OTADROP_DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	switch c.CleanupMode {
	case CleanupNone, CleanupInline, CleanupQueue:
	default:
		return fmt.Errorf("unknown cleanup mode %q", c.CleanupMode)
	}
	return nil
}

// UploadOptions returns the orchestrator settings derived from c.
func (c *Config) UploadOptions() upload.Options {
	return upload.Options{
		AllowedExtensions:        c.AllowedTypes,
		MaxArchiveBytes:          c.MaxFileSize,
		EncodeInstallURL:         c.EncodeInstallURL,
		CleanupOnManifestFailure: c.CleanupMode != CleanupNone,
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// loadDotEnv exports variables from path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p)), ".")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	// Invalid input is ignored and the default kept.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}
