package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

mailer:
  default_batch_size: 25
  concurrency: 4
  transport: "ses"

reports:
  type: "s3"
  s3_bucket: "bulk-reports"
  s3_prefix: "failed/"

queue:
  type: "redis"

redis:
  addr: "localhost:6379"

store:
  type: "postgres"

database:
  url: "postgres://localhost/mailer"

auth:
  enabled: true
  tokens: ["abc", "def"]
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, 25, cfg.Mailer.DefaultBatchSize)
	assert.Equal(t, 4, cfg.Mailer.Concurrency)
	assert.Equal(t, "ses", cfg.Mailer.Transport)

	assert.Equal(t, "s3", cfg.Reports.Type)
	assert.Equal(t, "bulk-reports", cfg.Reports.S3Bucket)
	assert.Equal(t, "failed/", cfg.Reports.S3Prefix)

	assert.Equal(t, "redis", cfg.Queue.Type)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"abc", "def"}, cfg.Auth.Tokens)

	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 50, cfg.Mailer.DefaultBatchSize)
	assert.Equal(t, 10000, cfg.Mailer.MaxRecipients)
	assert.Equal(t, 100000, cfg.Mailer.MaxRows)
	assert.Equal(t, 100, cfg.Mailer.MaxCellsPerRow)
	assert.Equal(t, 1, cfg.Mailer.Concurrency)
	assert.Equal(t, "log", cfg.Mailer.Transport)
	assert.Equal(t, "local", cfg.Reports.Type)
	assert.Equal(t, filepath.Join(os.TempDir(), "mass_mailer"), cfg.Reports.LocalPath)
	assert.Equal(t, "memory", cfg.Queue.Type)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.True(t, cfg.Logging.ShouldRedact())

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
mailgun:
  api_key: "file-key"
  domain: "mg.example.com"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("MAILGUN_API_KEY", "env-key")
	t.Setenv("MAILER_DEFAULT_BATCH_SIZE", "120")
	t.Setenv("MAILER_API_TOKENS", "t1, t2 ,")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "env-key", cfg.Mailgun.APIKey)
	assert.Equal(t, "mg.example.com", cfg.Mailgun.Domain)
	assert.Equal(t, 120, cfg.Mailer.DefaultBatchSize)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, []string{"t1", "t2"}, cfg.Auth.Tokens)
}

func TestLoadFromEnvMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Mailer.DefaultBatchSize)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Mailer.DefaultBatchSize = 501
	cfg.Queue.Type = "sqs"
	cfg.Store.Type = "redis"
	cfg.Reports.Type = "s3"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_batch_size")
	assert.Contains(t, err.Error(), "sqs_queue_url")
	assert.Contains(t, err.Error(), "redis.addr")
	assert.Contains(t, err.Error(), "s3_bucket")
}

func TestValidate_SharedQueueNeedsSharedStore(t *testing.T) {
	cfg := Default()
	cfg.Queue.Type = "redis"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Store.Type = "memory"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.type memory")

	cfg.Store.Type = "redis"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_LockOutlivesVisibility(t *testing.T) {
	cfg := Default()
	cfg.Queue.Type = "sqs"
	cfg.Queue.SQSQueueURL = "https://sqs.us-east-1.amazonaws.com/123/steps"
	cfg.Store.Type = "redis"
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())

	cfg.Mailer.LockTTLSeconds = 300
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock_ttl_seconds")

	cfg.Queue.VisibilitySeconds = 300
	assert.NoError(t, cfg.Validate())
}

func TestTimeouts(t *testing.T) {
	assert.Equal(t, 45*time.Second, SESConfig{TimeoutSeconds: 45}.Timeout())
	assert.Equal(t, 5*time.Minute, MailerConfig{LockTTLSeconds: 300}.LockTTL())
	assert.Equal(t, 3*time.Second, QueueConfig{PollWaitSeconds: 3}.PollWait())
}
