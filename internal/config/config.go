package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mailer    MailerConfig    `yaml:"mailer"`
	Reports   ReportsConfig   `yaml:"reports"`
	Queue     QueueConfig     `yaml:"queue"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	SES       SESConfig       `yaml:"ses"`
	Mailgun   MailgunConfig   `yaml:"mailgun"`
	SparkPost SparkPostConfig `yaml:"sparkpost"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `yaml:"port"`
	Host                string   `yaml:"host"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ReadTimeout returns the configured read timeout as a duration
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// MailerConfig holds the bulk send engine settings.
type MailerConfig struct {
	// DefaultBatchSize prefills job input when no persisted setting exists.
	DefaultBatchSize int `yaml:"default_batch_size"`
	// MaxRecipients caps the merged recipient set.
	MaxRecipients int `yaml:"max_recipients"`
	// MaxRows caps how many rows of an uploaded file are scanned.
	MaxRows int `yaml:"max_rows"`
	// MaxCellsPerRow truncates wide rows.
	MaxCellsPerRow int `yaml:"max_cells_per_row"`
	// Concurrency is the number of parallel sends inside one chunk.
	Concurrency int `yaml:"concurrency"`
	// Transport selects the mail transport: log, ses, mailgun, sparkpost.
	Transport string `yaml:"transport"`
	// ReportURLBase prefixes report filenames in status messages.
	ReportURLBase string `yaml:"report_url_base"`
	// Workers is the number of step-processing goroutines in the worker.
	Workers int `yaml:"workers"`
	// LockTTLSeconds is the job lock lease. It is renewed while a chunk
	// sends and only runs out when the holder dies.
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
	// JobTTLHours controls how long job state is kept in Redis.
	JobTTLHours int `yaml:"job_ttl_hours"`
}

// LockTTL returns the per-job lock TTL as a duration
func (c MailerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// JobTTL returns the job state retention as a duration
func (c MailerConfig) JobTTL() time.Duration {
	return time.Duration(c.JobTTLHours) * time.Hour
}

// ReportsConfig holds failure report staging configuration
type ReportsConfig struct {
	Type       string `yaml:"type"` // "local" or "s3"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c ReportsConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// QueueConfig holds the chunk step queue configuration
type QueueConfig struct {
	Type               string `yaml:"type"` // "memory", "redis" or "sqs"
	Name               string `yaml:"name"`
	SQSQueueURL        string `yaml:"sqs_queue_url"`
	SQSRegion          string `yaml:"sqs_region"`
	PollWaitSeconds    int    `yaml:"poll_wait_seconds"`
	RetryDelaySeconds  int    `yaml:"retry_delay_seconds"`
	VisibilitySeconds  int    `yaml:"visibility_seconds"`
	MemoryBufferLength int    `yaml:"memory_buffer_length"`
}

// PollWait returns the queue long-poll wait as a duration
func (c QueueConfig) PollWait() time.Duration {
	return time.Duration(c.PollWaitSeconds) * time.Second
}

// Visibility returns the SQS visibility timeout as a duration
func (c QueueConfig) Visibility() time.Duration {
	return time.Duration(c.VisibilitySeconds) * time.Second
}

// RetryDelay returns the delay before a contended step is re-enqueued
func (c QueueConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// StoreConfig selects where job state and settings live.
type StoreConfig struct {
	Type string `yaml:"type"` // "memory", "redis" or "postgres"
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MailgunConfig holds Mailgun API configuration
type MailgunConfig struct {
	APIKey         string `yaml:"api_key"`
	Domain         string `yaml:"domain"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SparkPostConfig holds SparkPost API configuration
type SparkPostConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c SparkPostConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig holds API bearer token configuration
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Tokens  []string `yaml:"tokens"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact returns whether email addresses are masked in logs (default true).
func (c LoggingConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Default returns a configuration with every default applied. Used by the CLI
// when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Mailer.DefaultBatchSize == 0 {
		cfg.Mailer.DefaultBatchSize = 50
	}
	if cfg.Mailer.MaxRecipients == 0 {
		cfg.Mailer.MaxRecipients = 10000
	}
	if cfg.Mailer.MaxRows == 0 {
		cfg.Mailer.MaxRows = 100000
	}
	if cfg.Mailer.MaxCellsPerRow == 0 {
		cfg.Mailer.MaxCellsPerRow = 100
	}
	if cfg.Mailer.Concurrency == 0 {
		cfg.Mailer.Concurrency = 1
	}
	if cfg.Mailer.Transport == "" {
		cfg.Mailer.Transport = "log"
	}
	if cfg.Mailer.ReportURLBase == "" {
		cfg.Mailer.ReportURLBase = "/api/mass-mailer/reports/"
	}
	if cfg.Mailer.Workers == 0 {
		cfg.Mailer.Workers = 4
	}
	if cfg.Mailer.LockTTLSeconds == 0 {
		cfg.Mailer.LockTTLSeconds = 600
	}
	if cfg.Mailer.JobTTLHours == 0 {
		cfg.Mailer.JobTTLHours = 72
	}
	if cfg.Reports.Type == "" {
		cfg.Reports.Type = "local"
	}
	if cfg.Reports.LocalPath == "" {
		cfg.Reports.LocalPath = filepath.Join(os.TempDir(), "mass_mailer")
	}
	if cfg.Reports.S3Prefix == "" {
		cfg.Reports.S3Prefix = "mass_mailer/"
	}
	if cfg.Reports.AWSRegion == "" {
		cfg.Reports.AWSRegion = "us-east-1"
	}
	if cfg.Queue.Type == "" {
		cfg.Queue.Type = "memory"
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "massmail:steps"
	}
	if cfg.Queue.PollWaitSeconds == 0 {
		cfg.Queue.PollWaitSeconds = 5
	}
	if cfg.Queue.RetryDelaySeconds == 0 {
		cfg.Queue.RetryDelaySeconds = 2
	}
	if cfg.Queue.SQSRegion == "" {
		cfg.Queue.SQSRegion = "us-east-1"
	}
	if cfg.Queue.VisibilitySeconds == 0 {
		cfg.Queue.VisibilitySeconds = 600
	}
	if cfg.Queue.MemoryBufferLength == 0 {
		cfg.Queue.MemoryBufferLength = 1024
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.mailgun.net/v3"
	}
	if cfg.Mailgun.TimeoutSeconds == 0 {
		cfg.Mailgun.TimeoutSeconds = 30
	}
	if cfg.SparkPost.BaseURL == "" {
		cfg.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.SparkPost.TimeoutSeconds == 0 {
		cfg.SparkPost.TimeoutSeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MAILER_TRANSPORT"); v != "" {
		cfg.Mailer.Transport = v
	}
	if v := os.Getenv("MAILER_DEFAULT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mailer.DefaultBatchSize = n
		}
	}
	if v := os.Getenv("REPORTS_LOCAL_PATH"); v != "" {
		cfg.Reports.LocalPath = v
	}
	if v := os.Getenv("REPORTS_S3_BUCKET"); v != "" {
		cfg.Reports.S3Bucket = v
	}
	if v := os.Getenv("QUEUE_SQS_URL"); v != "" {
		cfg.Queue.SQSQueueURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("MAILGUN_API_KEY"); v != "" {
		cfg.Mailgun.APIKey = v
	}
	if v := os.Getenv("MAILGUN_DOMAIN"); v != "" {
		cfg.Mailgun.Domain = v
	}
	if v := os.Getenv("SPARKPOST_API_KEY"); v != "" {
		cfg.SparkPost.APIKey = v
	}
	if v := os.Getenv("MAILER_API_TOKENS"); v != "" {
		cfg.Auth.Tokens = splitList(v)
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Mailer.DefaultBatchSize < 1 || c.Mailer.DefaultBatchSize > 500 {
		errs = append(errs, fmt.Errorf("mailer.default_batch_size must be between 1 and 500, got %d", c.Mailer.DefaultBatchSize))
	}
	if c.Mailer.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("mailer.concurrency must be >= 1"))
	}
	switch c.Mailer.Transport {
	case "log", "ses", "mailgun", "sparkpost":
	default:
		errs = append(errs, fmt.Errorf("unknown mailer.transport %q", c.Mailer.Transport))
	}
	switch c.Reports.Type {
	case "local":
	case "s3":
		if c.Reports.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("reports.s3_bucket is required for s3 reports"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown reports.type %q", c.Reports.Type))
	}
	switch c.Queue.Type {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, fmt.Errorf("redis.addr is required for redis queue"))
		}
	case "sqs":
		if c.Queue.SQSQueueURL == "" {
			errs = append(errs, fmt.Errorf("queue.sqs_queue_url is required for sqs queue"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.type %q", c.Queue.Type))
	}
	switch c.Store.Type {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, fmt.Errorf("redis.addr is required for redis store"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.type %q", c.Store.Type))
	}
	if c.Queue.Type != "memory" && c.Store.Type == "memory" {
		errs = append(errs, fmt.Errorf("store.type memory cannot back queue.type %s: workers in other processes would not see the jobs; use redis or postgres", c.Queue.Type))
	}
	if c.Mailer.LockTTLSeconds < 1 {
		errs = append(errs, fmt.Errorf("mailer.lock_ttl_seconds must be >= 1"))
	} else if c.Queue.Type == "sqs" && c.Mailer.LockTTLSeconds < c.Queue.VisibilitySeconds {
		errs = append(errs, fmt.Errorf("mailer.lock_ttl_seconds (%d) must be at least queue.visibility_seconds (%d)",
			c.Mailer.LockTTLSeconds, c.Queue.VisibilitySeconds))
	}
	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		errs = append(errs, fmt.Errorf("auth.tokens must not be empty when auth is enabled"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
