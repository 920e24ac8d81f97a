package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Dispatch   DispatchConfig
	Dispatcher DispatcherConfig
	Metrics    MetricsConfig
	Auth       AuthConfig
	LogLevel   string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DispatchConfig controls the delivery queue and retry behavior.
type DispatchConfig struct {
	StreamPrefix     string
	ConsumerGroup    string
	BlockTimeout     time.Duration
	ClaimMinIdle     time.Duration
	RetrySchedule    []time.Duration
	DeliveryTimeout  time.Duration
	AttemptRetention time.Duration
	MaxQueueSize     int64
	RateLimitRPS     int
}

// DispatcherConfig controls a dispatcher process (the delivery workers).
type DispatcherConfig struct {
	ID                string
	Concurrency       int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ShutdownTimeout   time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled           bool
	JWTSecret         string
	APIKeys           []string
	PortalURL         string
	DashboardTokenTTL time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/svix")

	setDefaults()

	viper.SetEnvPrefix("SVIX")
	viper.AutomaticEnv()

	// Config file is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8071)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 100)
	viper.SetDefault("redis.minidleconns", 10)
	viper.SetDefault("redis.maxretries", 3)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	// Dispatch defaults
	viper.SetDefault("dispatch.streamprefix", "dispatch")
	viper.SetDefault("dispatch.consumergroup", "dispatchers")
	viper.SetDefault("dispatch.blocktimeout", 5*time.Second)
	viper.SetDefault("dispatch.claimminidle", 30*time.Second)
	viper.SetDefault("dispatch.retryschedule", DefaultRetrySchedule())
	viper.SetDefault("dispatch.deliverytimeout", 30*time.Second)
	viper.SetDefault("dispatch.attemptretention", 90*24*time.Hour)
	viper.SetDefault("dispatch.maxqueuesize", 1000000)
	viper.SetDefault("dispatch.ratelimitrps", 1000)

	// Dispatcher defaults
	viper.SetDefault("dispatcher.id", "")
	viper.SetDefault("dispatcher.concurrency", 10)
	viper.SetDefault("dispatcher.heartbeatinterval", 5*time.Second)
	viper.SetDefault("dispatcher.heartbeattimeout", 15*time.Second)
	viper.SetDefault("dispatcher.shutdowntimeout", 30*time.Second)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})
	viper.SetDefault("auth.portalurl", "http://localhost:8071/portal")
	viper.SetDefault("auth.dashboardtokenttl", 24*time.Hour)

	// Logging defaults
	viper.SetDefault("loglevel", "info")
}

// DefaultRetrySchedule is the delay before each delivery retry. The first
// entry applies after the initial attempt fails; deliveries that exhaust
// the schedule go to the dead letter queue.
func DefaultRetrySchedule() []time.Duration {
	return []time.Duration{
		5 * time.Second,
		5 * time.Minute,
		30 * time.Minute,
		2 * time.Hour,
		5 * time.Hour,
		10 * time.Hour,
		10 * time.Hour,
		10 * time.Hour,
	}
}
