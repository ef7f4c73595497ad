package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/worker/brand"
	"github.com/cuongbtq/publish-orchestrator/internal/worker/domain"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Task store backends
const (
	StoreBackendPostgres = "postgres"
	StoreBackendSheets   = "sheets"
	StoreBackendMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Brands   BrandsConfig   `yaml:"brands"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Media    MediaConfig    `yaml:"media"`
	Drivers  DriversConfig  `yaml:"drivers"`
	Worker   WorkerConfig   `yaml:"worker"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Server   ServerConfig   `yaml:"server"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ScheduleConfig holds schedule gate configuration
type ScheduleConfig struct {
	Timezone      string        `yaml:"timezone"`
	DateOrder     string        `yaml:"date_order"`
	WaitThreshold time.Duration `yaml:"wait_threshold"`
}

// BrandsConfig maps brand keys to per-platform accounts
type BrandsConfig struct {
	Threshold float64                                  `yaml:"threshold"`
	Accounts  map[string]map[string]BrandAccountConfig `yaml:"accounts"`
}

// BrandAccountConfig is one platform account of a brand
type BrandAccountConfig struct {
	AccountID     string `yaml:"account_id"`
	CredentialRef string `yaml:"credential_ref"`
	BoardID       string `yaml:"board_id"`
}

// StoreConfig selects the task store backend
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// SheetsConfig holds Google Sheets task store configuration
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Worksheet       string `yaml:"worksheet"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
}

// MediaConfig holds media acquirer configuration
type MediaConfig struct {
	TempDir        string        `yaml:"temp_dir"`
	Attempts       int           `yaml:"attempts"`
	Backoff        time.Duration `yaml:"backoff"`
	MinBytes       int64         `yaml:"min_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Rehost         RehostConfig  `yaml:"rehost"`
}

// RehostConfig holds the object storage used to serve media to URL-pulling platforms
type RehostConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Endpoint       string        `yaml:"endpoint"`
	PublicEndpoint string        `yaml:"public_endpoint"`
	AccessKey      string        `yaml:"access_key"`
	SecretKey      string        `yaml:"secret_key"`
	Bucket         string        `yaml:"bucket"`
	UseSSL         bool          `yaml:"use_ssl"`
	Prefix         string        `yaml:"prefix"`
	Expiry         time.Duration `yaml:"expiry"`
}

// DriversConfig holds platform driver configuration
type DriversConfig struct {
	PollInterval      time.Duration   `yaml:"poll_interval"`
	MaxProcessingWait time.Duration   `yaml:"max_processing_wait"`
	CallTimeout       time.Duration   `yaml:"call_timeout"`
	TransferTimeout   time.Duration   `yaml:"transfer_timeout"`
	Graph             GraphConfig     `yaml:"graph"`
	Pinterest         PinterestConfig `yaml:"pinterest"`
	YouTube           YouTubeConfig   `yaml:"youtube"`
}

// GraphConfig holds Graph API settings shared by Instagram and Facebook
type GraphConfig struct {
	BaseURL           string  `yaml:"base_url"`
	UploadBaseURL     string  `yaml:"upload_base_url"`
	Version           string  `yaml:"version"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// PinterestConfig holds Pinterest API settings
type PinterestConfig struct {
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// YouTubeConfig holds YouTube Data API settings
type YouTubeConfig struct {
	CategoryID string `yaml:"category_id"`
	Endpoint   string `yaml:"endpoint"`
}

// WorkerConfig holds orchestrator configuration
type WorkerConfig struct {
	FanOut          bool          `yaml:"fan_out"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	LeaseTTL        time.Duration `yaml:"lease_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds the optional job lease store
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	Events     EventsConfig     `yaml:"events"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// EventsConfig controls outcome event publishing
type EventsConfig struct {
	Enabled          bool   `yaml:"enabled"`
	RoutingKeyPrefix string `yaml:"routing_key_prefix"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Namespace      string `yaml:"namespace"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	JobName        string `yaml:"job_name"`
}

// DaemonConfig holds the in-process scheduler used by publisher -daemon
type DaemonConfig struct {
	Cron        string `yaml:"cron"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and fills defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendPostgres
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Kolkata"
	}
	if c.Schedule.DateOrder == "" {
		c.Schedule.DateOrder = "day_first"
	}
	if c.Schedule.WaitThreshold == 0 {
		c.Schedule.WaitThreshold = 5 * time.Minute
	}
	if c.Brands.Threshold == 0 {
		c.Brands.Threshold = brand.DefaultThreshold
	}
	if c.Sheets.Worksheet == "" {
		c.Sheets.Worksheet = "Sheet1"
	}
	if c.Media.Attempts == 0 {
		c.Media.Attempts = 3
	}
	if c.Media.Backoff == 0 {
		c.Media.Backoff = 5 * time.Second
	}
	if c.Media.MinBytes == 0 {
		c.Media.MinBytes = 10 * 1024
	}
	if c.Media.RequestTimeout == 0 {
		c.Media.RequestTimeout = 2 * time.Minute
	}
	if c.Media.Rehost.Prefix == "" {
		c.Media.Rehost.Prefix = "publish-media/"
	}
	if c.Media.Rehost.Expiry == 0 {
		c.Media.Rehost.Expiry = time.Hour
	}
	if c.Drivers.PollInterval == 0 {
		c.Drivers.PollInterval = 10 * time.Second
	}
	if c.Drivers.MaxProcessingWait == 0 {
		c.Drivers.MaxProcessingWait = 5 * time.Minute
	}
	if c.Drivers.CallTimeout == 0 {
		c.Drivers.CallTimeout = 60 * time.Second
	}
	if c.Drivers.TransferTimeout == 0 {
		c.Drivers.TransferTimeout = 15 * time.Minute
	}
	if c.Worker.JobTimeout == 0 {
		c.Worker.JobTimeout = 30 * time.Minute
	}
	if c.Worker.LeaseTTL == 0 {
		c.Worker.LeaseTTL = c.Worker.JobTimeout + time.Minute
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "publish:lease:"
	}
	if c.RabbitMQ.Events.RoutingKeyPrefix == "" {
		c.RabbitMQ.Events.RoutingKeyPrefix = "publish.job"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "publisher"
	}
	if c.Metrics.JobName == "" {
		c.Metrics.JobName = "publisher"
	}
	if c.Daemon.Cron == "" {
		c.Daemon.Cron = "*/5 * * * *"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the sections the publisher needs. Failures are ConfigErrors.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return domain.Wrap(domain.KindConfig, "invalid config", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}
	switch c.Schedule.DateOrder {
	case "day_first", "month_first":
	default:
		return fmt.Errorf("schedule date_order must be day_first or month_first, got %q", c.Schedule.DateOrder)
	}
	if c.Schedule.WaitThreshold < 0 {
		return fmt.Errorf("schedule wait_threshold must not be negative")
	}

	if c.Brands.Threshold < brand.MinThreshold || c.Brands.Threshold > brand.MaxThreshold {
		return fmt.Errorf("brands threshold %.2f outside [%.2f, %.2f]", c.Brands.Threshold, brand.MinThreshold, brand.MaxThreshold)
	}
	if len(c.Brands.Accounts) == 0 {
		return fmt.Errorf("at least one brand account is required")
	}
	for key, platforms := range c.Brands.Accounts {
		if len(platforms) == 0 {
			return fmt.Errorf("brand %q has no platform accounts", key)
		}
		for name, acc := range platforms {
			platform, ok := domain.ParsePlatform(name)
			if !ok {
				return fmt.Errorf("brand %q: unknown platform %q", key, name)
			}
			if acc.AccountID == "" {
				return fmt.Errorf("brand %q %s: account_id is required", key, platform)
			}
			if acc.CredentialRef == "" {
				return fmt.Errorf("brand %q %s: credential_ref is required", key, platform)
			}
			if platform == domain.PlatformPinterest && acc.BoardID == "" {
				return fmt.Errorf("brand %q %s: board_id is required", key, platform)
			}
		}
	}

	switch c.Store.Backend {
	case StoreBackendPostgres:
		if err := c.validateDatabase(); err != nil {
			return err
		}
	case StoreBackendSheets:
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets spreadsheet_id is required")
		}
		if c.Sheets.CredentialsFile == "" {
			return fmt.Errorf("sheets credentials_file is required")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Media.Attempts < 1 {
		return fmt.Errorf("media attempts must be at least 1")
	}
	if c.Media.Rehost.Enabled {
		if c.Media.Rehost.Endpoint == "" || c.Media.Rehost.Bucket == "" {
			return fmt.Errorf("media rehost endpoint and bucket are required")
		}
	}

	if c.Drivers.PollInterval <= 0 || c.Drivers.MaxProcessingWait < c.Drivers.PollInterval {
		return fmt.Errorf("drivers max_processing_wait must be at least poll_interval")
	}
	if c.Drivers.CallTimeout <= 0 || c.Drivers.TransferTimeout <= 0 {
		return fmt.Errorf("drivers call_timeout and transfer_timeout must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}
	if c.Schedule.WaitThreshold > c.Worker.JobTimeout {
		return fmt.Errorf("schedule wait_threshold %s exceeds worker job_timeout %s", c.Schedule.WaitThreshold, c.Worker.JobTimeout)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	if _, err := cron.ParseStandard(c.Daemon.Cron); err != nil {
		return fmt.Errorf("invalid daemon cron %q: %w", c.Daemon.Cron, err)
	}

	return nil
}

// ValidateAPIConfig checks the sections the operator API needs. Failures are ConfigErrors.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return domain.Errorf(domain.KindConfig, "invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return domain.Wrap(domain.KindConfig, "invalid config", err)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

// SecretProvider resolves credential references to secret values
type SecretProvider interface {
	Secret(ref string) (string, error)
}

// EnvSecrets resolves "env:NAME", "file:/path" and bare NAME references
type EnvSecrets struct {
	lookup   func(string) (string, bool)
	readFile func(string) ([]byte, error)
}

// NewEnvSecrets creates a provider backed by the process environment
func NewEnvSecrets() *EnvSecrets {
	return &EnvSecrets{lookup: os.LookupEnv, readFile: os.ReadFile}
}

// Secret implements SecretProvider
func (e *EnvSecrets) Secret(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "file:"):
		data, err := e.readFile(strings.TrimPrefix(ref, "file:"))
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return "", fmt.Errorf("secret file %q is empty", strings.TrimPrefix(ref, "file:"))
		}
		return value, nil
	default:
		name := strings.TrimPrefix(ref, "env:")
		value, ok := e.lookup(name)
		if !ok || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("environment variable %q is not set", name)
		}
		return value, nil
	}
}

// ResolveAccounts builds the immutable brand accounts, resolving every credential
// through secrets. Any missing entry is a ConfigError.
func (c *Config) ResolveAccounts(secrets SecretProvider) ([]brand.Brand, error) {
	keys := make([]string, 0, len(c.Brands.Accounts))
	for key := range c.Brands.Accounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	brands := make([]brand.Brand, 0, len(keys))
	for _, key := range keys {
		accounts := make(map[domain.Platform]domain.Account, len(c.Brands.Accounts[key]))
		for name, acc := range c.Brands.Accounts[key] {
			platform, ok := domain.ParsePlatform(name)
			if !ok {
				return nil, domain.Errorf(domain.KindConfig, "brand %q: unknown platform %q", key, name)
			}
			if _, dup := accounts[platform]; dup {
				return nil, domain.Errorf(domain.KindConfig, "brand %q: platform %s configured twice", key, platform)
			}

			credential, err := secrets.Secret(acc.CredentialRef)
			if err != nil {
				return nil, domain.Wrap(domain.KindConfig, fmt.Sprintf("brand %q %s credential %q", key, platform, acc.CredentialRef), err)
			}

			accounts[platform] = domain.Account{
				Platform:      platform,
				AccountID:     acc.AccountID,
				CredentialRef: acc.CredentialRef,
				Credential:    credential,
				BoardID:       acc.BoardID,
			}
		}
		brands = append(brands, brand.Brand{Key: key, Accounts: accounts})
	}

	return brands, nil
}
