package config

import "strings"

// Config 是 trademux 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Pool     PoolConfig     `toml:"pool"`
	Limiter  LimiterConfig  `toml:"limiter"`
	Paper    PaperConfig    `toml:"paper"`
	Brokers  BrokersConfig  `toml:"brokers"`
	Charge   ChargeConfig   `toml:"charge"`
	Notify   NotifyConfig   `toml:"notify"`
	Seed     SeedConfig     `toml:"seed"`

	sourcePath string
}

// SourcePath 返回最终加载的主配置文件路径（供热更新 watch 使用）。
func (c *Config) SourcePath() string {
	if c == nil {
		return ""
	}
	return c.sourcePath
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

type ServerConfig struct {
	Addr       string `toml:"addr"`
	AdminToken string `toml:"admin_token"`
}

type DatabaseConfig struct {
	Path         string `toml:"path"`
	TradeLogPath string `toml:"trade_log_path"`
}

// PoolConfig 控制 broker 会话连接池的容量与回收节奏。
type PoolConfig struct {
	MaxConnections        int `toml:"max_connections"`
	IdleTimeoutSeconds    int `toml:"idle_timeout_seconds"`
	SweepIntervalSeconds  int `toml:"sweep_interval_seconds"`
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
}

// LimiterConfig 控制全局连接速率限制。MaxPending 对应远端订阅硬上限。
type LimiterConfig struct {
	MaxPending         int  `toml:"max_pending"`
	BackoffBaseSeconds int  `toml:"backoff_base_seconds"`
	BackoffMaxSeconds  int  `toml:"backoff_max_seconds"`
	ApplyToStateless   bool `toml:"apply_to_stateless"`
}

// PaperConfig 提供模拟盘的静态参考价兜底。
type PaperConfig struct {
	FallbackPrices map[string]float64 `toml:"fallback_prices"`
}

type BrokersConfig struct {
	MetaSync MetaSyncConfig `toml:"metasync"`
	Binance  BinanceConfig  `toml:"binance"`
}

// MetaSyncConfig 描述会话型 broker 桥接服务的访问方式。
type MetaSyncConfig struct {
	APIURL             string `toml:"api_url"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type BinanceConfig struct {
	RESTBaseURL string `toml:"rest_base_url"`
}

// ChargeConfig 控制非策略所有者的单笔跟单扣费。
type ChargeConfig struct {
	Enabled     bool    `toml:"enabled"`
	FeePerTrade float64 `toml:"fee_per_trade"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// SeedConfig 控制开发环境下的策略/订阅种子数据导入。
type SeedConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
