package config

import "strings"

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppLogPath         = "/data/logs/trademux.log"
	defaultServerAddr         = ":8780"
	defaultDatabasePath       = "/data/db/trademux.db"
	defaultTradeLogPath       = "/data/db/trades.db"
	defaultPoolMax            = 10
	defaultPoolIdleSeconds    = 300
	defaultPoolSweepSeconds   = 60
	defaultPoolConnectTimeout = 30
	defaultLimiterMaxPending  = 5
	defaultLimiterBackoffBase = 30
	defaultLimiterBackoffMax  = 600
	defaultMetaSyncTimeout    = 30
	defaultBinanceREST        = "https://fapi.binance.com"
	defaultChargeFee          = 0.5
	defaultSeedPath           = "configs/seed.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Server.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Pool.applyDefaults(keys)
	c.Limiter.applyDefaults(keys)
	c.Brokers.applyDefaults(keys)
	c.Charge.applyDefaults(keys)
	c.Seed.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("server.addr", &s.Addr, defaultServerAddr),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("database.path", &d.Path, defaultDatabasePath),
		stringFieldDefault("database.trade_log_path", &d.TradeLogPath, defaultTradeLogPath),
	)
}

func (p *PoolConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "pool.max_connections",
			need:  func() bool { return p.MaxConnections <= 0 },
			apply: func() { p.MaxConnections = defaultPoolMax },
		},
		fieldDefault{
			key:   "pool.idle_timeout_seconds",
			need:  func() bool { return p.IdleTimeoutSeconds <= 0 },
			apply: func() { p.IdleTimeoutSeconds = defaultPoolIdleSeconds },
		},
		fieldDefault{
			key:   "pool.sweep_interval_seconds",
			need:  func() bool { return p.SweepIntervalSeconds <= 0 },
			apply: func() { p.SweepIntervalSeconds = defaultPoolSweepSeconds },
		},
		fieldDefault{
			key:   "pool.connect_timeout_seconds",
			need:  func() bool { return p.ConnectTimeoutSeconds <= 0 },
			apply: func() { p.ConnectTimeoutSeconds = defaultPoolConnectTimeout },
		},
	)
}

func (l *LimiterConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "limiter.max_pending",
			need:  func() bool { return l.MaxPending <= 0 },
			apply: func() { l.MaxPending = defaultLimiterMaxPending },
		},
		fieldDefault{
			key:   "limiter.backoff_base_seconds",
			need:  func() bool { return l.BackoffBaseSeconds <= 0 },
			apply: func() { l.BackoffBaseSeconds = defaultLimiterBackoffBase },
		},
		fieldDefault{
			key:   "limiter.backoff_max_seconds",
			need:  func() bool { return l.BackoffMaxSeconds <= 0 },
			apply: func() { l.BackoffMaxSeconds = defaultLimiterBackoffMax },
		},
	)
}

func (b *BrokersConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "brokers.metasync.timeout_seconds",
			need:  func() bool { return b.MetaSync.TimeoutSeconds <= 0 },
			apply: func() { b.MetaSync.TimeoutSeconds = defaultMetaSyncTimeout },
		},
		stringFieldDefault("brokers.binance.rest_base_url", &b.Binance.RESTBaseURL, defaultBinanceREST),
	)
}

func (c *ChargeConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "charge.fee_per_trade",
			need:  func() bool { return c.FeePerTrade <= 0 },
			apply: func() { c.FeePerTrade = defaultChargeFee },
		},
	)
}

func (s *SeedConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("seed.path", &s.Path, defaultSeedPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
