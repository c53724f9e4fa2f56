package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OTADROP_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Address)
	assert.Equal(t, int64(500<<20), cfg.MaxFileSize)
	assert.Equal(t, []string{"ipa"}, cfg.AllowedTypes)
	assert.Equal(t, BackendFilesystem, cfg.StorageBackend)
	assert.Equal(t, "static/uploads", cfg.UploadDir)
	assert.Equal(t, "static/manifests", cfg.ManifestDir)
	assert.Equal(t, CleanupNone, cfg.CleanupMode)

	opts := cfg.UploadOptions()
	assert.False(t, opts.CleanupOnManifestFailure)
	assert.False(t, opts.EncodeInstallURL)
	assert.Equal(t, cfg.MaxFileSize, opts.MaxArchiveBytes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OTADROP_ADDRESS", ":9000")
	t.Setenv("OTADROP_MAX_FILE_BYTES", "1024")
	t.Setenv("OTADROP_ALLOWED_EXTENSIONS", " .IPA , zip ")
	t.Setenv("OTADROP_CLEANUP", CleanupInline)
	t.Setenv("OTADROP_ENCODE_INSTALL_URL", "true")
	t.Setenv("OTADROP_CLEANUP_WORKERS", "nope")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Address)
	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.Equal(t, []string{"ipa", "zip"}, cfg.AllowedTypes)
	assert.Equal(t, defaultCleanupWorkers, cfg.CleanupWorkers)

	opts := cfg.UploadOptions()
	assert.True(t, opts.CleanupOnManifestFailure)
	assert.True(t, opts.EncodeInstallURL)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otadrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: ":7000"
public_base_url: https://ota.example.com
storage_backend: memory
max_file_bytes: 2048
log_format: console
`), 0o600))
	t.Setenv("OTADROP_CONFIG", path)
	t.Setenv("OTADROP_ADDRESS", ":7100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7100", cfg.Address, "env wins over file")
	assert.Equal(t, "https://ota.example.com", cfg.PublicBaseURL)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("OTADROP_STORAGE", "ftp")
		_, err := Load()
		assert.ErrorContains(t, err, "unknown storage backend")
	})
	t.Run("s3 without endpoint", func(t *testing.T) {
		t.Setenv("OTADROP_STORAGE", BackendS3)
		_, err := Load()
		assert.ErrorContains(t, err, "OTADROP_S3_ENDPOINT")
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("OTADROP_STORAGE", BackendPostgres)
		_, err := Load()
		assert.ErrorContains(t, err, "OTADROP_DATABASE_URL")
	})
	t.Run("unknown cleanup", func(t *testing.T) {
		t.Setenv("OTADROP_CLEANUP", "sometimes")
		_, err := Load()
		assert.ErrorContains(t, err, "unknown cleanup mode")
	})
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("OTADROP_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load()
		assert.ErrorContains(t, err, "read config file")
	})
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otadrop.env")
	require.NoError(t, os.WriteFile(path, []byte("OTADROP_ADDRESS=:7000\nOTADROP_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("OTADROP_ENV_FILE", path)
	// Register restores, then clear so the file can supply the address.
	t.Setenv("OTADROP_ADDRESS", "")
	require.NoError(t, os.Unsetenv("OTADROP_ADDRESS"))
	t.Setenv("OTADROP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Address)
	assert.Equal(t, "warn", cfg.LogLevel)
}
