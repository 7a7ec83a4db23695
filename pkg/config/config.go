package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// DBConfig PostgreSQL 连接配置；Enabled 为 false 时走内存存储
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	// 超过该耗时的查询记为慢查询，0 使用默认值
	SlowQuery time.Duration `yaml:"slow_query"`
	// 启动时执行内置 schema
	Migrate bool `yaml:"migrate"`
}

// DSN 拼出 pgx 可解析的连接串
func (c DBConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}

type MQConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// 启动时连接失败的重试次数
	DialAttempts int `yaml:"dial_attempts"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// envBinding 环境变量到配置字段的映射，enable 非空时变量出现即打开对应依赖
type envBinding struct {
	key    string
	set    func(string)
	enable *bool
}

func applyEnv(bindings ...envBinding) {
	for _, b := range bindings {
		v, ok := os.LookupEnv(b.key)
		if !ok || v == "" {
			continue
		}
		b.set(v)
		if b.enable != nil {
			*b.enable = true
		}
	}
}

func setString(dst *string) func(string) {
	return func(v string) { *dst = v }
}

func setInt(dst *int) func(string) {
	return func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ApplyEnv DB_HOST 出现即启用数据库
func (c *DBConfig) ApplyEnv() {
	applyEnv(
		envBinding{key: "DB_HOST", set: setString(&c.Host), enable: &c.Enabled},
		envBinding{key: "DB_PORT", set: setInt(&c.Port)},
		envBinding{key: "DB_USER", set: setString(&c.User)},
		envBinding{key: "DB_PASSWORD", set: setString(&c.Password)},
		envBinding{key: "DB_NAME", set: setString(&c.Name)},
		envBinding{key: "DB_SSLMODE", set: setString(&c.SSLMode)},
	)
}

func (c *MQConfig) ApplyEnv() {
	applyEnv(envBinding{key: "MQ_URL", set: setString(&c.URL), enable: &c.Enabled})
}

func (c *RedisConfig) ApplyEnv() {
	applyEnv(
		envBinding{key: "REDIS_ADDR", set: setString(&c.Addr), enable: &c.Enabled},
		envBinding{key: "REDIS_PASSWORD", set: setString(&c.Password)},
		envBinding{key: "REDIS_DB", set: setInt(&c.DB)},
	)
}

func (c *JWTConfig) ApplyEnv() {
	applyEnv(envBinding{key: "JWT_SECRET", set: setString(&c.Secret)})
}

func (c *ServerConfig) ApplyEnv() {
	applyEnv(envBinding{key: "SERVER_PORT", set: setString(&c.Port)})
}
