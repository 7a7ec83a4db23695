package config

import (
	"fmt"
	"os"
	"time"

	"presentos/internal/contextstore"
	"presentos/internal/intent"
	"presentos/internal/ledger"
	"presentos/internal/notify"
	"presentos/internal/orchestrator"
	"presentos/internal/paei"
	"presentos/internal/registry"
	"presentos/internal/router"
	"presentos/internal/scheduler"
	"presentos/internal/speech"
	"presentos/pkg/circuitbreaker"
	"presentos/pkg/config"
	"presentos/pkg/otel"
)

// Config presentos 服务配置，base.yaml + <env>.yaml + 环境变量
type Config struct {
	LogLevel  string              `yaml:"log_level"`
	LogFormat string              `yaml:"log_format"`
	Server    config.ServerConfig `yaml:"server"`
	DB        config.DBConfig     `yaml:"db"`
	MQ        config.MQConfig     `yaml:"mq"`
	Redis     config.RedisConfig  `yaml:"redis"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	Otel      otel.Config         `yaml:"otel"`

	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Intent       intent.Config       `yaml:"intent"`
	Context      contextstore.Config `yaml:"context"`
	PAEI         paei.Config         `yaml:"paei"`
	Router       router.Config       `yaml:"router"`
	Ledger       ledger.Config       `yaml:"ledger"`
	Notify       notify.Config       `yaml:"notify"`
	Scheduler    scheduler.Config    `yaml:"scheduler"`
	Speech       speech.Config       `yaml:"speech"`

	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
}

type CapabilitiesConfig struct {
	// Contracts 为空时使用内置默认值
	Contracts []registry.Contract `yaml:"contracts"`
	// Endpoints name -> base URL; 覆盖 contract 中的 endpoint
	Endpoints   map[string]string     `yaml:"endpoints"`
	HTTPTimeout time.Duration         `yaml:"http_timeout"`
	Breaker     circuitbreaker.Config `yaml:"breaker"`
}

type DeliveryConfig struct {
	// Webhooks channel -> URL
	Webhooks    map[string]string `yaml:"webhooks"`
	MinPriority string            `yaml:"min_priority"`
	DedupTTL    time.Duration     `yaml:"dedup_ttl"`
	// MaxAttempts 单个渠道累计失败次数上限，0 表示不限
	MaxAttempts int `yaml:"max_attempts"`
}

// Load 读取配置目录，环境变量优先级最高
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	dir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, dir)
}

func LoadFrom(env, dir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, err
	}

	cfg.DB.ApplyEnv()
	cfg.MQ.ApplyEnv()
	cfg.Redis.ApplyEnv()
	cfg.JWT.ApplyEnv()
	cfg.Server.ApplyEnv()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return &cfg, nil
}

// Contracts 合并 endpoint 覆盖后的能力约定
func (c *Config) Contracts() []registry.Contract {
	contracts := c.Capabilities.Contracts
	if len(contracts) == 0 {
		contracts = registry.Defaults()
	}
	out := make([]registry.Contract, len(contracts))
	for i, ct := range contracts {
		if ep, ok := c.Capabilities.Endpoints[ct.Name]; ok && ep != "" {
			ct.Endpoint = ep
		}
		out[i] = ct
	}
	return out
}
