package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "WALLET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StorageDriverFile     = "file"
	StorageDriverDynamoDB = "dynamodb"
	StorageDriverPostgres = "postgres"

	LockDriverLocal = "local"
	LockDriverRedis = "redis"

	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
	CacheDriverNone   = "none"

	NotifyDriverLog  = "log"
	NotifyDriverSQS  = "sqs"
	NotifyDriverNone = "none"
)

type Config struct {
	App            AppConfig
	Storage        StorageConfig
	DynamoDB       DynamoDBConfig
	DB             DBConfig
	Redis          RedisConfig
	Lock           LockConfig
	Transfer       TransferConfig
	Reconciliation ReconciliationConfig
	Idempotency    IdempotencyConfig
	Notify         NotifyConfig
	Scheduler      SchedulerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverFile, StorageDriverDynamoDB, StorageDriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageDriverPostgres && c.DB.DSN == "" {
		return fmt.Errorf("WALLET_DB_DSN is required for the postgres storage driver")
	}
	if c.Lock.Driver == "" {
		c.Lock.Driver = LockDriverLocal
		if c.Storage.Shared() {
			c.Lock.Driver = LockDriverRedis
		}
	}
	if err := c.CheckLock(); err != nil {
		return err
	}
	if c.Lock.Driver == LockDriverRedis || c.Idempotency.CacheDriver == CacheDriverRedis {
		if c.Redis.Address == "" {
			return fmt.Errorf("WALLET_REDIS_ADDRESS is required when redis is enabled")
		}
	}
	if c.Notify.Driver == NotifyDriverSQS && c.Notify.QueueURL == "" {
		return fmt.Errorf("WALLET_NOTIFY_QUEUE_URL is required for the sqs notify driver")
	}
	if c.Transfer.PlatformAccountID == "" {
		return fmt.Errorf("WALLET_PLATFORM_ACCOUNT_ID must not be empty")
	}
	return nil
}

// CheckLock rejects a lock driver that cannot serialize every process writing the configured store.
func (c *Config) CheckLock() error {
	switch c.Lock.Driver {
	case LockDriverRedis:
		return nil
	case LockDriverLocal:
		if c.Storage.Shared() {
			return fmt.Errorf("the %s storage driver is shared between instances and needs WALLET_LOCK_DRIVER=redis", c.Storage.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unsupported lock driver %q", c.Lock.Driver)
	}
}

type AppConfig struct {
	Env          string `envconfig:"WALLET_APP_ENV" default:"dev"`
	Port         string `envconfig:"WALLET_APP_PORT" default:"8080"`
	ServiceName  string `envconfig:"WALLET_SERVICE_NAME" default:"wallet-ledger"`
	LogLevel     string `envconfig:"WALLET_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"WALLET_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"WALLET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type StorageConfig struct {
	Driver  string `envconfig:"WALLET_STORAGE_DRIVER" default:"file"`
	DataDir string `envconfig:"WALLET_DATA_DIR" default:"./data"`
}

// Shared reports whether more than one process can write the store. The file store keeps its indexes
// in process memory, so it never is.
func (s StorageConfig) Shared() bool {
	return s.Driver != StorageDriverFile
}

type DynamoDBConfig struct {
	AccountsTable string `envconfig:"ACCOUNTS_TABLE_NAME" default:"wallet-accounts"`
	LedgerTable   string `envconfig:"LEDGER_TABLE_NAME" default:"wallet-ledger"`
}

type DBConfig struct {
	DSN             string        `envconfig:"WALLET_DB_DSN"`
	MaxOpenConns    int           `envconfig:"WALLET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WALLET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WALLET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WALLET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	Address      string        `envconfig:"WALLET_REDIS_ADDRESS"`
	Password     string        `envconfig:"WALLET_REDIS_PASSWORD"`
	DB           int           `envconfig:"WALLET_REDIS_DB" default:"0"`
	Namespace    string        `envconfig:"WALLET_REDIS_NAMESPACE" default:"wallet"`
	DialTimeout  time.Duration `envconfig:"WALLET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WALLET_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WALLET_REDIS_WRITE_TIMEOUT" default:"3s"`
	PoolSize     int           `envconfig:"WALLET_REDIS_POOL_SIZE" default:"10"`
}

type LockConfig struct {
	// Driver defaults to local for the file store and redis for the shared stores.
	Driver       string        `envconfig:"WALLET_LOCK_DRIVER"`
	TTL          time.Duration `envconfig:"WALLET_LOCK_TTL" default:"30s"`
	PollInterval time.Duration `envconfig:"WALLET_LOCK_POLL_INTERVAL" default:"25ms"`
}

type TransferConfig struct {
	PlatformAccountID string        `envconfig:"WALLET_PLATFORM_ACCOUNT_ID" default:"platform"`
	AppendAttempts    int           `envconfig:"WALLET_TRANSFER_APPEND_ATTEMPTS" default:"3"`
	AppendBackoff     time.Duration `envconfig:"WALLET_TRANSFER_APPEND_BACKOFF" default:"50ms"`
	LockTimeout       time.Duration `envconfig:"WALLET_TRANSFER_LOCK_TIMEOUT" default:"5s"`
}

type ReconciliationConfig struct {
	Enabled       bool          `envconfig:"WALLET_RECONCILIATION_ENABLED" default:"true"`
	Interval      time.Duration `envconfig:"WALLET_RECONCILIATION_INTERVAL" default:"5m"`
	Workers       int           `envconfig:"WALLET_RECONCILIATION_WORKERS" default:"4"`
	QueueSize     int           `envconfig:"WALLET_RECONCILIATION_QUEUE_SIZE" default:"1024"`
	RepairRetries int           `envconfig:"WALLET_RECONCILIATION_REPAIR_RETRIES" default:"5"`
	CronLockKey   string        `envconfig:"WALLET_RECONCILIATION_LOCK_KEY" default:"reconciliation"`
	CronLockTTL   time.Duration `envconfig:"WALLET_RECONCILIATION_LOCK_TTL" default:"4m"`
}

type IdempotencyConfig struct {
	CacheDriver string        `envconfig:"WALLET_IDEMPOTENCY_CACHE" default:"memory"`
	CacheSize   int           `envconfig:"WALLET_IDEMPOTENCY_CACHE_SIZE" default:"10000"`
	CacheTTL    time.Duration `envconfig:"WALLET_IDEMPOTENCY_CACHE_TTL" default:"24h"`
}

type NotifyConfig struct {
	Driver     string `envconfig:"WALLET_NOTIFY_DRIVER" default:"log"`
	QueueURL   string `envconfig:"WALLET_NOTIFY_QUEUE_URL"`
	BufferSize int    `envconfig:"WALLET_NOTIFY_BUFFER_SIZE" default:"256"`
}

type SchedulerConfig struct {
	QueueURL string `envconfig:"TRANSFER_QUEUE_URL"`
}
