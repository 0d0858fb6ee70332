package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	AI       AIConfig       `mapstructure:"ai"`
	Memory   MemoryConfig   `mapstructure:"memory"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Path            string `mapstructure:"path"`   // sqlite 数据库文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
	LogSQL          bool   `mapstructure:"log_sql"` // 是否输出全部 SQL（调试用）
}

// RedisConfig Redis 配置（单节点）
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// Addr 返回 host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig 补全服务配置
type AIConfig struct {
	DefaultProvider string       `mapstructure:"default_provider"` // ollama, openai
	Ollama          OllamaConfig `mapstructure:"ollama"`
	OpenAI          OpenAIConfig `mapstructure:"openai"`
}

// OllamaConfig Ollama 配置
type OllamaConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	OrgID      string `mapstructure:"org_id"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// MemoryConfig 会话记忆引擎配置
type MemoryConfig struct {
	Locale               string         `mapstructure:"locale"`                 // zh-CN, en-US，决定角色标签与默认提示词语言
	DefaultModel         string         `mapstructure:"default_model"`          // 用户未配置 memory_model 时使用的摘要模型
	RetentionSlackFactor int            `mapstructure:"retention_slack_factor"` // 摘要后保留上限 = max_memory_entries * 该系数
	MaxTranscriptTokens  int            `mapstructure:"max_transcript_tokens"`  // 摘要对话文本 Token 上限，0 表示不限制
	Lock                 LockConfig     `mapstructure:"lock"`
	Cleanup              CleanupConfig  `mapstructure:"cleanup"`
	Fallback             FallbackConfig `mapstructure:"fallback"`
}

// LockConfig 会话级串行化配置
type LockConfig struct {
	Mode          string `mapstructure:"mode"`           // local, redis
	TTL           string `mapstructure:"ttl"`            // 锁过期时间，如 "2m"
	RetryInterval string `mapstructure:"retry_interval"` // 抢锁重试间隔，如 "100ms"
}

// CleanupConfig 过期记忆清理任务配置
type CleanupConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"` // asynq 调度表达式，如 "@every 1h"
}

// FallbackConfig 全局兜底记忆配置（已废弃的全局设置路径，仅供旧调用方使用）
type FallbackConfig struct {
	Source        string `mapstructure:"source"` // none, static, first_user
	Enabled       bool   `mapstructure:"enabled"`
	Model         string `mapstructure:"model"`
	TriggerRounds int    `mapstructure:"trigger_rounds"`
	MaxEntries    int    `mapstructure:"max_entries"`
	SummaryStyle  string `mapstructure:"summary_style"`
}

// LockTTL 解析锁过期时间
func (c *LockConfig) LockTTL() time.Duration {
	return parseDurationOr(c.TTL, 2*time.Minute)
}

// LockRetryInterval 解析抢锁重试间隔
func (c *LockConfig) LockRetryInterval() time.Duration {
	return parseDurationOr(c.RetryInterval, 100*time.Millisecond)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
// 找不到配置文件时仅使用默认值与环境变量
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件：APP_DATABASE_HOST
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// setDefaults 默认配置，AutomaticEnv 只对已知键生效，因此每个键都需要默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 120)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "./data/chatmemory.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "chatmemory")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_sql", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("ai.default_provider", "ollama")
	v.SetDefault("ai.ollama.base_url", "http://localhost:11434")
	v.SetDefault("ai.ollama.timeout_seconds", 120)
	v.SetDefault("ai.openai.api_key", "")
	v.SetDefault("ai.openai.base_url", "")
	v.SetDefault("ai.openai.org_id", "")
	v.SetDefault("ai.openai.max_retries", 3)

	v.SetDefault("memory.locale", "zh-CN")
	v.SetDefault("memory.default_model", "")
	v.SetDefault("memory.retention_slack_factor", 2)
	v.SetDefault("memory.max_transcript_tokens", 0)
	v.SetDefault("memory.lock.mode", "local")
	v.SetDefault("memory.lock.ttl", "2m")
	v.SetDefault("memory.lock.retry_interval", "100ms")
	v.SetDefault("memory.cleanup.enabled", false)
	v.SetDefault("memory.cleanup.cron", "@every 1h")
	v.SetDefault("memory.fallback.source", "none")
	v.SetDefault("memory.fallback.enabled", false)
	v.SetDefault("memory.fallback.model", "")
	v.SetDefault("memory.fallback.trigger_rounds", 20)
	v.SetDefault("memory.fallback.max_entries", 10)
	v.SetDefault("memory.fallback.summary_style", "detailed")
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取 postgres 连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
