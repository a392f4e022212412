package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ApplicationName string
	// AutoMigrate applies the embedded batch schema on startup.
	AutoMigrate bool
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	Group        string
	Consumer     string
	EventsPrefix string
}

type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	BucketOriginals string
	UseSSL          bool
	Region          string
}

type QueueConfig struct {
	VisibilityTimeout time.Duration
	ClaimInterval     time.Duration
}

type LoggingConfig struct {
	Level string
}

// VisionConfig selects the multimodal model and the credentials rotated across a run.
type VisionConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKeys     []string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

type GenerationConfig struct {
	MaxWorkers       int
	AutoKeywordCap   int
	Retention        time.Duration
	CleanupSchedule  string
	StrictCompliance bool
	PolicyFile       string
	MaxImageSide     int
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Queues           QueueConfig
	Logging          LoggingConfig
	Vision           VisionConfig
	Generation       GenerationConfig
	AllowCORSOrigins []string
}

// Load reads the API configuration from config.yaml and STOCKMETA_* variables.
func Load() (*AppConfig, error) {
	return load("api", "config", "STOCKMETA", ".", "./config", "../config")
}

// LoadWorker reads the worker configuration from worker.yaml and STOCKMETA_WORKER_* variables.
func LoadWorker() (*AppConfig, error) {
	return load("worker", "worker", "STOCKMETA_WORKER", ".", "./config", "../../config")
}

func load(app, name, envPrefix string, paths ...string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	setDefaults(v)
	v.SetDefault("postgres.applicationname", "stockmeta-"+app)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "5m")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxuploadbytes", 64<<20)

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.applicationname", "stockmeta")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "stockmeta:tasks")
	v.SetDefault("redis.group", "stockmeta-workers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.eventsprefix", "stockmeta:retry")

	v.SetDefault("storage.bucketoriginals", "stockmeta-originals")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("queues.visibilitytimeout", "10m")
	v.SetDefault("queues.claiminterval", "30s")

	v.SetDefault("logging.level", "info")

	v.SetDefault("vision.provider", "openai")
	v.SetDefault("vision.baseurl", "https://api.openai.com/v1")
	v.SetDefault("vision.model", "gpt-4o-mini")
	v.SetDefault("vision.timeout", "90s")
	v.SetDefault("vision.maxattempts", 5)
	v.SetDefault("vision.basedelay", "2s")

	v.SetDefault("generation.maxworkers", 3)
	v.SetDefault("generation.autokeywordcap", 35)
	v.SetDefault("generation.retention", "168h") // 7 days
	v.SetDefault("generation.cleanupschedule", "0 0 3 * * *")
	v.SetDefault("generation.strictcompliance", false)
	v.SetDefault("generation.maximageside", 1568)
}
