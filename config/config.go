package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Realtime     RealtimeConfig     `mapstructure:"realtime"`
	Notification NotificationConfig `mapstructure:"notification"`
	Graph        GraphConfig        `mapstructure:"graph"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"` // 每 IP 每秒请求数，0 表示不限流
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=silent error warn info"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// FeedConfig 时间线策略：push = 写扩散（Redis 列表），pull = 读扩散（实时查询）
type FeedConfig struct {
	Strategy       string        `mapstructure:"strategy" validate:"oneof=push pull"`
	FallbackToPull bool          `mapstructure:"fallback_to_pull"`
	MaxEntries     int           `mapstructure:"max_entries" validate:"gte=0"` // 0 不裁剪
	Dedupe         bool          `mapstructure:"dedupe"`
	DefaultLimit   int           `mapstructure:"default_limit" validate:"min=1"`
	MaxLimit       int           `mapstructure:"max_limit" validate:"min=1"`
	FanoutBatch    int           `mapstructure:"fanout_batch" validate:"min=1"`
	RebuildLimit   int           `mapstructure:"rebuild_limit" validate:"min=1"`
	PostCacheTTL   time.Duration `mapstructure:"post_cache_ttl"`
}

type QueueConfig struct {
	Stream   string        `mapstructure:"stream" validate:"required"`
	Group    string        `mapstructure:"group" validate:"required"`
	Consumer string        `mapstructure:"consumer" validate:"required"`
	Workers  int           `mapstructure:"workers" validate:"min=1"`
	Batch    int64         `mapstructure:"batch" validate:"min=1"`
	Block    time.Duration `mapstructure:"block"`
	MinIdle  time.Duration `mapstructure:"min_idle"`
}

type RealtimeConfig struct {
	Mode          string        `mapstructure:"mode" validate:"oneof=local redis"`
	ChannelPrefix string        `mapstructure:"channel_prefix" validate:"required"`
	SendBuffer    int           `mapstructure:"send_buffer" validate:"min=1"`
	AuthTimeout   time.Duration `mapstructure:"auth_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	InboundRate   float64       `mapstructure:"inbound_rate" validate:"gt=0"`
	InboundBurst  int           `mapstructure:"inbound_burst" validate:"min=1"`
}

type NotificationConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

type GraphConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=sql neo4j"`
	Neo4jURI      string `mapstructure:"neo4j_uri"`
	Neo4jUser     string `mapstructure:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password"`
	Neo4jDatabase string `mapstructure:"neo4j_database"`
	// AsyncFans 为 true 时粉丝冗余表由后台 worker 异步写入
	AsyncFans    bool `mapstructure:"async_fans"`
	FanWorkers   int  `mapstructure:"fan_workers" validate:"gte=0"`
	FanQueueSize int  `mapstructure:"fan_queue_size" validate:"gte=0"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=postgres port=5434 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "localhost:6380")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 50)

	v.SetDefault("feed.strategy", "push")
	v.SetDefault("feed.fallback_to_pull", true)
	v.SetDefault("feed.max_entries", 0)
	v.SetDefault("feed.dedupe", false)
	v.SetDefault("feed.default_limit", 10)
	v.SetDefault("feed.max_limit", 100)
	v.SetDefault("feed.fanout_batch", 500)
	v.SetDefault("feed.rebuild_limit", 1000)
	v.SetDefault("feed.post_cache_ttl", 10*time.Minute)

	v.SetDefault("queue.stream", "events:post_created")
	v.SetDefault("queue.group", "fanout")
	host, _ := os.Hostname()
	if host == "" {
		host = "feedd"
	}
	v.SetDefault("queue.consumer", host)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.batch", 32)
	v.SetDefault("queue.block", 2*time.Second)
	v.SetDefault("queue.min_idle", time.Minute)

	v.SetDefault("realtime.mode", "redis")
	v.SetDefault("realtime.channel_prefix", "notification:")
	v.SetDefault("realtime.send_buffer", 64)
	v.SetDefault("realtime.auth_timeout", 10*time.Second)
	v.SetDefault("realtime.write_timeout", 10*time.Second)
	v.SetDefault("realtime.inbound_rate", 5.0)
	v.SetDefault("realtime.inbound_burst", 20)

	v.SetDefault("notification.retention", 30*24*time.Hour)

	v.SetDefault("graph.backend", "sql")
	v.SetDefault("graph.neo4j_uri", "neo4j://localhost:7687")
	v.SetDefault("graph.neo4j_user", "neo4j")
	v.SetDefault("graph.neo4j_password", "")
	v.SetDefault("graph.neo4j_database", "neo4j")
	v.SetDefault("graph.async_fans", false)
	v.SetDefault("graph.fan_workers", 4)
	v.SetDefault("graph.fan_queue_size", 10000)

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.issuer", "social-feed")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "social-feed")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
}

// Load 读取配置：默认值 < config.yaml < 环境变量（前缀 FEED_）
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom 从指定文件加载；path 为空时在 ./config 与 . 下查找 config.yaml
func LoadFrom(path string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置字段取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Feed.DefaultLimit > c.Feed.MaxLimit {
		return fmt.Errorf("invalid config: feed.default_limit %d exceeds feed.max_limit %d", c.Feed.DefaultLimit, c.Feed.MaxLimit)
	}
	return nil
}
