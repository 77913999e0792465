package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Functions FunctionsConfig `mapstructure:"functions"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	IP             string        `mapstructure:"ip"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	AdminToken     string        `mapstructure:"admin_token"`
}

type DatabaseConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	Database              string        `mapstructure:"database"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// FunctionsConfig 函数运行时配置
type FunctionsConfig struct {
	Dir                     string        `mapstructure:"dir"`                          // 函数文件目录
	RuntimeCommand          string        `mapstructure:"runtime_command"`              // 隔离进程解释器命令
	DepsCacheDir            string        `mapstructure:"deps_cache_dir"`               // 按content_hash缓存依赖安装
	MaxFunctionPayloadBytes int64         `mapstructure:"max_function_payload_bytes"`   // 入参大小上限
	MaxFunctionResultBytes  int64         `mapstructure:"max_function_result_bytes"`    // 结果大小上限
	WorkerIdleTTL           time.Duration `mapstructure:"worker_idle_ttl"`              // 空闲worker回收时间
	WorkerStartupTimeout    time.Duration `mapstructure:"worker_startup_timeout"`       // 冷启动超时
	WorkerReapInterval      time.Duration `mapstructure:"worker_reap_interval"`         // 回收循环间隔
	MaxIdleWorkersPerVer    int           `mapstructure:"max_idle_workers_per_version"` // 每版本最大空闲worker数
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	IntervalSeconds         time.Duration `mapstructure:"interval_seconds"`          // 轮询间隔
	FunctionTimeoutSeconds  time.Duration `mapstructure:"function_timeout_seconds"`  // 函数执行硬超时
	MaxSchedulesPerTick     int           `mapstructure:"max_schedules_per_tick"`    // 每次tick最多调度数
	MaxConcurrentExecutions int           `mapstructure:"max_concurrent_executions"` // 调度器全局并发上限
}

// RateLimitConfig 并发限流配置
type RateLimitConfig struct {
	MaxConcurrentPerUser int           `mapstructure:"max_concurrent_functions_per_user"`
	LeaseTTL             time.Duration `mapstructure:"lease_ttl"`
	Backend              string        `mapstructure:"backend"` // local | redis
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("FUNCBASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	viper.SetDefault("server.ip", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.max_header_bytes", 1048576)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.connection_max_lifetime", "1h")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	viper.SetDefault("functions.dir", "functions")
	viper.SetDefault("functions.runtime_command", "python3")
	viper.SetDefault("functions.deps_cache_dir", "/tmp/funcbase_deps")
	viper.SetDefault("functions.max_function_payload_bytes", 1048576)
	viper.SetDefault("functions.max_function_result_bytes", 4194304)
	viper.SetDefault("functions.worker_idle_ttl", "5m")
	viper.SetDefault("functions.worker_startup_timeout", "60s")
	viper.SetDefault("functions.worker_reap_interval", "30s")
	viper.SetDefault("functions.max_idle_workers_per_version", 4)

	viper.SetDefault("scheduler.interval_seconds", "10s")
	viper.SetDefault("scheduler.function_timeout_seconds", "120s")
	viper.SetDefault("scheduler.max_schedules_per_tick", 50)
	viper.SetDefault("scheduler.max_concurrent_executions", 10)

	viper.SetDefault("rate_limit.max_concurrent_functions_per_user", 5)
	viper.SetDefault("rate_limit.lease_ttl", "10m")
	viper.SetDefault("rate_limit.backend", "local")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
