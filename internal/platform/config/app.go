package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string         `json:"log_level"`
	LogFormat string         `json:"log_format"`
	Server    ServerConfig   `json:"server"`
	Database  DatabaseConfig `json:"database"`
	Redis     RedisConfig    `json:"redis"`
	Ingest    IngestConfig   `json:"ingest"`
	QA        QAConfig       `json:"qa"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// DatabaseConfig 文档库连接配置。URL 为空时进入降级模式（无存储）。
type DatabaseConfig struct {
	URL                    string `json:"url"`
	Name                   string `json:"name"` // 可选，覆盖 DSN 中的 dbname
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	PingTimeoutSeconds     int    `json:"ping_timeout_seconds"`
}

// RedisConfig 答案缓存配置。URL 为空或 TTL=0 时禁用缓存。
type RedisConfig struct {
	URL                   string `json:"url"`
	AnswerCacheTTLSeconds int    `json:"answer_cache_ttl_seconds"`
}

type IngestConfig struct {
	TimeoutSeconds int   `json:"timeout_seconds"`
	MaxBytes       int64 `json:"max_bytes"`
}

type QAConfig struct {
	DefaultTopK      int `json:"default_top_k"`
	CandidateLimit   int `json:"candidate_limit"`
	SnippetMaxChars  int `json:"snippet_max_chars"`
	ListDefaultLimit int `json:"list_default_limit"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8000,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 60,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
			PingTimeoutSeconds:     5,
		},
		Redis: RedisConfig{
			AnswerCacheTTLSeconds: 300,
		},
		Ingest: IngestConfig{
			TimeoutSeconds: 10,
			MaxBytes:       8 << 20,
		},
		QA: QAConfig{
			DefaultTopK:      3,
			CandidateLimit:   100,
			SnippetMaxChars:  600,
			ListDefaultLimit: 20,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
// DATABASE_URL / REDIS_URL 均可缺省：缺省表示对应子系统降级关闭，而非启动失败。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyString("DATABASE_NAME", &c.Database.Name)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)
	applyInt("DATABASE_PING_TIMEOUT", &c.Database.PingTimeoutSeconds)

	applyString("REDIS_URL", &c.Redis.URL)
	applyInt("ANSWER_CACHE_TTL", &c.Redis.AnswerCacheTTLSeconds)

	applyInt("INGEST_TIMEOUT", &c.Ingest.TimeoutSeconds)
	applyInt64("INGEST_MAX_BYTES", &c.Ingest.MaxBytes)

	applyInt("QA_DEFAULT_TOP_K", &c.QA.DefaultTopK)
	applyInt("QA_CANDIDATE_LIMIT", &c.QA.CandidateLimit)
	applyInt("QA_SNIPPET_MAX_CHARS", &c.QA.SnippetMaxChars)
	applyInt("LIST_DEFAULT_LIMIT", &c.QA.ListDefaultLimit)
}

func (c *AppConfig) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Server.Port)
	}
	if c.Ingest.TimeoutSeconds <= 0 {
		return fmt.Errorf("INGEST_TIMEOUT must be positive")
	}
	if c.QA.DefaultTopK <= 0 {
		return fmt.Errorf("QA_DEFAULT_TOP_K must be positive")
	}
	return nil
}

// HasDatabase 是否配置了文档库。
func (c *AppConfig) HasDatabase() bool {
	return strings.TrimSpace(c.Database.URL) != ""
}

// HasAnswerCache 是否启用答案缓存。
func (c *AppConfig) HasAnswerCache() bool {
	return strings.TrimSpace(c.Redis.URL) != "" && c.Redis.AnswerCacheTTLSeconds > 0
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}
