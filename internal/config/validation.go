package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Pool.validate(); err != nil {
		return err
	}
	if err := c.Limiter.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Charge.validate(); err != nil {
		return err
	}
	return nil
}

func (p *PoolConfig) validate() error {
	if p.MaxConnections <= 0 {
		return fmt.Errorf("pool.max_connections must be > 0")
	}
	if p.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("pool.idle_timeout_seconds must be > 0")
	}
	if p.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("pool.sweep_interval_seconds must be > 0")
	}
	if p.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("pool.connect_timeout_seconds must be > 0")
	}
	return nil
}

func (l *LimiterConfig) validate() error {
	if l.MaxPending <= 0 {
		return fmt.Errorf("limiter.max_pending must be > 0")
	}
	if l.BackoffMaxSeconds < l.BackoffBaseSeconds {
		return fmt.Errorf("limiter.backoff_max_seconds must be >= backoff_base_seconds")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" {
		return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
	}
	if strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
	}
	return nil
}

func (c *ChargeConfig) validate() error {
	if c.Enabled && c.FeePerTrade < 0 {
		return fmt.Errorf("charge.fee_per_trade must be >= 0")
	}
	return nil
}
