package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "MultiModel-Chat/internal/errors"
	"MultiModel-Chat/internal/llm"
	"MultiModel-Chat/pkg/logger"
)

// 默认端点使用的环境变量。
const (
	EnvModelAAPIKey  = "MODEL_A_API_KEY"
	EnvModelABaseURL = "MODEL_A_BASE_URL"
	EnvModelBAPIKey  = "MODEL_B_API_KEY"
	EnvModelBBaseURL = "MODEL_B_BASE_URL"

	EnvAllowedOrigins = "ALLOWED_ORIGINS"
	EnvPort           = "PORT"
	EnvConfigPath     = "MULTICHAT_CONFIG"
	EnvLogLevel       = "MULTICHAT_LOG_LEVEL"

	DefaultBaseURL       = "https://api.openai.com/v1"
	DefaultAllowedOrigin = "http://localhost:5173"
)

// requiredEnv 的顺序即健康检查中缺失变量的展示顺序。
var requiredEnv = []string{EnvModelAAPIKey, EnvModelBAPIKey, EnvModelABaseURL, EnvModelBBaseURL}

// Config 描述服务启动阶段需要加载的全部配置。
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Endpoints    []llm.Endpoint     `yaml:"endpoints"`
	Conversation ConversationConfig `yaml:"conversation"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Storage      StorageConfig      `yaml:"storage"`
	Events       EventsConfig       `yaml:"events"`
	Logging      logger.Config      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`

	// MissingEnv 是加载时未设置的默认端点环境变量。
	MissingEnv []string `yaml:"-"`
}

// ServerConfig 控制 HTTP 服务。
type ServerConfig struct {
	Address           string        `yaml:"address"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// ConversationConfig 控制调度循环。
type ConversationConfig struct {
	MaxTurns     int           `yaml:"max_turns"`
	Pacing       string        `yaml:"pacing"`
	PacingDelay  time.Duration `yaml:"pacing_delay"`
	PacingBurst  int           `yaml:"pacing_burst"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	ContextLimit int           `yaml:"context_limit"`
}

// ExecutorConfig 控制代码执行子进程。
type ExecutorConfig struct {
	PythonExecutable string        `yaml:"python_executable"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	CPUSeconds       int           `yaml:"cpu_seconds"`
	MemoryMB         int           `yaml:"memory_mb"`
	FileSizeMB       int           `yaml:"file_size_mb"`
	OpenFiles        int           `yaml:"open_files"`
	MaxOutputKB      int           `yaml:"max_output_kb"`
	WorkDir          string        `yaml:"work_dir"`
}

// StorageConfig 选择对话归档的存储后端。
type StorageConfig struct {
	Driver string      `yaml:"driver"`
	File   FileConfig  `yaml:"file"`
	MySQL  MySQLConfig `yaml:"mysql"`
	Redis  RedisConfig `yaml:"redis"`
}

// FileConfig 描述 JSON Lines 文件存储。
type FileConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MySQLConfig 描述 MySQL 连接。
type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
	MaxRecent int           `yaml:"max_recent"`
}

// EventsConfig 选择对话结束事件的发布方式。
type EventsConfig struct {
	Driver   string         `yaml:"driver"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig 描述事件队列。
type RabbitMQConfig struct {
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
	Durable bool   `yaml:"durable"`
}

// MetricsConfig 控制独立的指标监听地址，为空时只在主服务上暴露 /metrics。
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Load 读取可选的 YAML 配置文件并应用环境变量与默认值。path 为空时只使用环境变量。
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv 与 Load 相同，但从 lookup 读取环境变量。
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取配置文件失败")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析配置失败")
		}
	}
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	c.MissingEnv = nil
	for _, key := range requiredEnv {
		if get(key) == "" {
			c.MissingEnv = append(c.MissingEnv, key)
		}
	}

	if len(c.Endpoints) == 0 {
		c.Endpoints = []llm.Endpoint{
			{Name: "Model A", ModelID: "gpt-3.5-turbo"},
			{Name: "Model B", ModelID: "gpt-4"},
		}
	}
	overrides := map[string][2]string{
		"Model A": {get(EnvModelAAPIKey), get(EnvModelABaseURL)},
		"Model B": {get(EnvModelBAPIKey), get(EnvModelBBaseURL)},
	}
	for i := range c.Endpoints {
		values, ok := overrides[c.Endpoints[i].Name]
		if !ok {
			continue
		}
		if values[0] != "" {
			c.Endpoints[i].APIKey = values[0]
		}
		if values[1] != "" {
			c.Endpoints[i].BaseURL = values[1]
		}
	}

	if origins := get(EnvAllowedOrigins); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	if port := get(EnvPort); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("PORT 不是合法端口: %q", port))
		}
		c.Server.Address = ":" + port
	}
	if level := get(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	for i := range c.Endpoints {
		if c.Endpoints[i].BaseURL == "" {
			c.Endpoints[i].BaseURL = DefaultBaseURL
		}
	}

	if c.Conversation.MaxTurns <= 0 {
		c.Conversation.MaxTurns = 5
	}
	if c.Conversation.Pacing == "" {
		c.Conversation.Pacing = "fixed"
	}
	if c.Conversation.PacingDelay <= 0 {
		c.Conversation.PacingDelay = time.Second
	}
	if c.Conversation.PacingBurst <= 0 {
		c.Conversation.PacingBurst = 1
	}
	if c.Conversation.QueryTimeout <= 0 {
		c.Conversation.QueryTimeout = 60 * time.Second
	}
	if c.Conversation.ContextLimit < 0 {
		c.Conversation.ContextLimit = 0
	}

	if c.Executor.PythonExecutable == "" {
		c.Executor.PythonExecutable = "python3"
	}
	if c.Executor.DefaultTimeout <= 0 {
		c.Executor.DefaultTimeout = 30 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.File.Dir == "" {
		c.Storage.File.Dir = "data"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate 检查取值是否在支持范围内。
func (c *Config) Validate() error {
	switch c.Conversation.Pacing {
	case "fixed", "token_bucket", "none":
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的 pacing: %s", c.Conversation.Pacing))
	}
	switch c.Storage.Driver {
	case "memory", "file":
	case "mysql":
		if strings.TrimSpace(c.Storage.MySQL.DSN) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "storage.mysql.dsn 不能为空")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.Address) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "storage.redis.address 不能为空")
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的存储驱动: %s", c.Storage.Driver))
	}
	switch c.Events.Driver {
	case "none":
	case "rabbitmq":
		if strings.TrimSpace(c.Events.RabbitMQ.URL) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "events.rabbitmq.url 不能为空")
		}
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的事件驱动: %s", c.Events.Driver))
	}
	for _, endpoint := range c.Endpoints {
		if strings.TrimSpace(endpoint.Name) == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "端点名称不能为空")
		}
	}
	return nil
}

// DefaultEndpoints 返回默认端点列表的副本。
func (c *Config) DefaultEndpoints() []llm.Endpoint {
	return append([]llm.Endpoint(nil), c.Endpoints...)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
