package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Routine  RoutineConfig  `mapstructure:"routine"`
	Store    StoreConfig    `mapstructure:"store"`
	Notifier NotifierConfig `mapstructure:"notifier"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int        `mapstructure:"port"`
	MaxBodyBytes int64      `mapstructure:"max_body_bytes"`
	CORS         CORSConfig `mapstructure:"cors"`
	RateLimit    RateConfig `mapstructure:"rate_limit"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateConfig 写操作限流配置（依赖 Redis，不可用时放行）
type RateConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（通知队列 + 限流）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置（Token 由外部认证服务签发，本服务只做校验）
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RoutineConfig 课表业务参数
type RoutineConfig struct {
	AllowedSections []string `mapstructure:"allowed_sections"`
	MaxSemester     int      `mapstructure:"max_semester"`
	ClassTypes      []string `mapstructure:"class_types"`
}

// StoreConfig 存储能力开关
// SupportsTransactions=false 时跨格课程改走“顺序创建 + 失败补偿删除”路径
type StoreConfig struct {
	SupportsTransactions bool `mapstructure:"supports_transactions"`
}

// NotifierConfig 教师课表缓存失效通知配置
type NotifierConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Stream          string        `mapstructure:"stream"`
	MaxLen          int64         `mapstructure:"max_len"`
	Workers         int           `mapstructure:"workers"`
	BufferSize      int           `mapstructure:"buffer_size"`
	PublishTimeout  time.Duration `mapstructure:"publish_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("ROUTINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.limit", 120)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "routine")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Kathmandu")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("routine.allowed_sections", []string{"AB", "CD"})
	v.SetDefault("routine.max_semester", 8)
	v.SetDefault("routine.class_types", []string{"Lecture", "Practical", "Tutorial"})

	v.SetDefault("store.supports_transactions", true)

	v.SetDefault("notifier.enabled", true)
	v.SetDefault("notifier.stream", "routine:schedule-cache")
	v.SetDefault("notifier.max_len", 10000)
	v.SetDefault("notifier.workers", 2)
	v.SetDefault("notifier.buffer_size", 256)
	v.SetDefault("notifier.publish_timeout", "3s")
	v.SetDefault("notifier.shutdown_timeout", "5s")
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if len(c.Routine.AllowedSections) == 0 {
		return fmt.Errorf("配置校验失败: routine.allowed_sections 不能为空")
	}
	if len(c.Routine.ClassTypes) == 0 {
		return fmt.Errorf("配置校验失败: routine.class_types 不能为空")
	}
	if c.Routine.MaxSemester <= 0 {
		return fmt.Errorf("配置校验失败: routine.max_semester 必须为正数")
	}
	if c.Notifier.Enabled {
		if c.Notifier.Stream == "" {
			return fmt.Errorf("配置校验失败: notifier.stream 不能为空")
		}
		if c.Notifier.Workers <= 0 || c.Notifier.BufferSize <= 0 {
			return fmt.Errorf("配置校验失败: notifier.workers 与 notifier.buffer_size 必须为正数")
		}
	}
	return nil
}
