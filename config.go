package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Storage engines.
const (
	EngineRedis    = "redis"
	EngineBolt     = "bolt"
	EnginePostgres = "postgres"
)

// Reservation execution modes.
const (
	ModeTransactional = "transactional"
	ModeSequential    = "sequential"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string            `yaml:"git_commit" envconfig:"LRAP_GIT_COMMIT"`
	GitTag                  string            `yaml:"git_tag" envconfig:"LRAP_GIT_TAG"`
	BuildTime               string            `yaml:"build_time" envconfig:"LRAP_BUILD_TIME"`
	IsProduction            bool              `yaml:"is_production" envconfig:"LRAP_IS_PRODUCTION"`
	LogLevel                zapcore.Level     `yaml:"log_level" envconfig:"LRAP_LOG_LEVEL"`
	LogFolder               string            `yaml:"log_folder" envconfig:"LRAP_LOG_FOLDER"`
	LogMaxSize              int               `yaml:"log_max_size" envconfig:"LRAP_LOG_MAX_SIZE"`
	OpsEndpointsEnable      bool              `yaml:"ops_endpoints_enable" envconfig:"LRAP_OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool              `yaml:"profiler_endpoints_enable" envconfig:"LRAP_PROFILER_ENDPOINTS_ENABLE"`
	Server                  ServerConfig      `yaml:"server"`
	Storage                 StorageConfig     `yaml:"storage"`
	Redis                   RedisConfig       `yaml:"redis"`
	BoltDB                  BoltDBConfig      `yaml:"boltdb"`
	Postgres                PostgresConfig    `yaml:"postgres"`
	Auth                    AuthConfig        `yaml:"auth"`
	Reservation             ReservationConfig `yaml:"reservation"`
	Notifier                NotifierConfig    `yaml:"notifier"`
	Cache                   CacheConfig       `yaml:"cache"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"LRAP_SERVER_HOST"`
	Port                    string        `yaml:"port" envconfig:"LRAP_SERVER_PORT"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"LRAP_SERVER_READ_TIMEOUT"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"LRAP_SERVER_WRITE_TIMEOUT"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"LRAP_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	LongRequestWriteTimeout time.Duration `yaml:"long_request_write_timeout" envconfig:"LRAP_SERVER_LONG_REQUEST_WRITE_TIMEOUT"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"LRAP_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects the primary engine. The bolt archive only
// makes sense when the primary engine is redis.
type StorageConfig struct {
	Engine        string `yaml:"engine" envconfig:"LRAP_STORAGE_ENGINE"`
	ArchiveEnable bool   `yaml:"archive_enable" envconfig:"LRAP_STORAGE_ARCHIVE_ENABLE"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"LRAP_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"LRAP_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"LRAP_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"LRAP_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"LRAP_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"LRAP_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"LRAP_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"LRAP_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"LRAP_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"LRAP_REDIS_DATABASE_INDEX"`
	TxMaxRetries  int           `yaml:"tx_max_retries" envconfig:"LRAP_REDIS_TX_MAX_RETRIES"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"LRAP_BOLTDB_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"LRAP_BOLTDB_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"LRAP_BOLTDB_BUCKET_NAME"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" envconfig:"LRAP_POSTGRES_DSN" json:"-"`
	MaxConns        int32         `yaml:"max_conns" envconfig:"LRAP_POSTGRES_MAX_CONNS"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" envconfig:"LRAP_POSTGRES_CONNECT_TIMEOUT"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" envconfig:"LRAP_POSTGRES_MIGRATE_ON_START"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" envconfig:"LRAP_POSTGRES_MAX_CONN_IDLE_TIME"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret" envconfig:"LRAP_AUTH_JWT_SECRET" json:"-"`
	Issuer           string `yaml:"issuer" envconfig:"LRAP_AUTH_ISSUER"`
	AdminOnlyCatalog bool   `yaml:"admin_only_catalog" envconfig:"LRAP_AUTH_ADMIN_ONLY_CATALOG"`
}

type ReservationConfig struct {
	Mode            string `yaml:"mode" envconfig:"LRAP_RESERVATION_MODE"`
	Compensate      bool   `yaml:"compensate" envconfig:"LRAP_RESERVATION_COMPENSATE"`
	OwnerOnlyReturn bool   `yaml:"owner_only_return" envconfig:"LRAP_RESERVATION_OWNER_ONLY_RETURN"`
}

type NotifierConfig struct {
	ChannelPrefix string `yaml:"channel_prefix" envconfig:"LRAP_NOTIFIER_CHANNEL_PREFIX"`
	BufferSize    int    `yaml:"buffer_size" envconfig:"LRAP_NOTIFIER_BUFFER_SIZE"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" envconfig:"LRAP_CACHE_TTL"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}

	if config.Server.LongRequestWriteTimeout == 0 {
		config.Server.LongRequestWriteTimeout = 2 * config.Server.RequestTimeout
	}

	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}

	if config.Storage.Engine == "" {
		config.Storage.Engine = EngineRedis
	}

	switch config.Storage.Engine {
	case EngineRedis:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
	case EngineBolt:
		if len(config.BoltDB.FilePath) == 0 {
			return errors.New("make sure to set a valid boltdb file path in configuration file")
		}
	case EnginePostgres:
		if len(config.Postgres.DSN) == 0 {
			return errors.New("make sure to set a valid postgres dsn in configuration file")
		}
	default:
		return fmt.Errorf("unknown storage engine %q", config.Storage.Engine)
	}

	if config.Storage.ArchiveEnable && len(config.BoltDB.FilePath) == 0 {
		return errors.New("make sure to set a valid boltdb file path to enable the archive")
	}

	if config.BoltDB.BucketName == "" {
		config.BoltDB.BucketName = "books"
	}

	if config.Redis.TxMaxRetries <= 0 {
		config.Redis.TxMaxRetries = 5
	}

	switch config.Reservation.Mode {
	case "":
		config.Reservation.Mode = ModeTransactional
	case ModeTransactional, ModeSequential:
	default:
		return fmt.Errorf("unknown reservation mode %q", config.Reservation.Mode)
	}

	if config.Notifier.ChannelPrefix == "" {
		config.Notifier.ChannelPrefix = "lrap:changes"
	}

	if config.Notifier.BufferSize <= 0 {
		config.Notifier.BufferSize = 64
	}

	if config.Cache.TTL == 0 {
		config.Cache.TTL = time.Minute
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration. The file is optional.
	err = godotenv.Load("./config.env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `LRAP`.
	err = LoadConfigEnvs("LRAP", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
