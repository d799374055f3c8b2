package app

import (
	"context"
	"fmt"
	"time"

	"trademux/internal/broker/exchange"
	"trademux/internal/broker/metasync"
	"trademux/internal/broker/paper"
	"trademux/internal/broker/pool"
	brcfg "trademux/internal/config"
	"trademux/internal/engine"
	"trademux/internal/engine/position"
	binancegw "trademux/internal/gateway/binance"
	"trademux/internal/gateway/notifier"
	"trademux/internal/logger"
	"trademux/internal/signal"
	"trademux/internal/store/gormstore"
	"trademux/internal/store/tradelog"
	httpapi "trademux/internal/transport/http"
	"trademux/internal/wallet"
)

// AppBuilder 按依赖顺序装配全部组件。
type AppBuilder struct {
	cfg *brcfg.Config
}

func NewAppBuilder(cfg *brcfg.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// Build 初始化存储、连接池、执行引擎与 HTTP 服务。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg

	store, err := gormstore.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化主存储失败: %w", err)
	}
	if cfg.Seed.Enabled {
		if err := store.ApplySeed(ctx, cfg.Seed.Path); err != nil {
			return nil, fmt.Errorf("导入种子数据失败: %w", err)
		}
	}
	trades, err := tradelog.New(cfg.Database.TradeLogPath)
	if err != nil {
		return nil, fmt.Errorf("初始化流水存储失败: %w", err)
	}

	limiter := pool.NewLimiter(
		cfg.Limiter.MaxPending,
		time.Duration(cfg.Limiter.BackoffBaseSeconds)*time.Second,
		time.Duration(cfg.Limiter.BackoffMaxSeconds)*time.Second,
	)
	msClient, err := metasync.NewClient(cfg.Brokers.MetaSync)
	if err != nil {
		return nil, fmt.Errorf("初始化 metasync 客户端失败: %w", err)
	}
	sessionPool := pool.New(metasync.NewDialer(msClient), limiter, pool.Options{
		MaxConnections: cfg.Pool.MaxConnections,
		IdleTimeout:    time.Duration(cfg.Pool.IdleTimeoutSeconds) * time.Second,
		SweepInterval:  time.Duration(cfg.Pool.SweepIntervalSeconds) * time.Second,
		ConnectTimeout: time.Duration(cfg.Pool.ConnectTimeoutSeconds) * time.Second,
	})

	priceSource, err := binancegw.New(binancegw.Config{RESTBaseURL: cfg.Brokers.Binance.RESTBaseURL})
	if err != nil {
		return nil, fmt.Errorf("初始化参考价来源失败: %w", err)
	}
	simulator := paper.New(priceSource, cfg.Paper.FallbackPrices)
	adapters := engine.NewAdapterSet(simulator, sessionPool, exchange.Options{
		RESTBaseURL:  cfg.Brokers.Binance.RESTBaseURL,
		ApplyLimiter: cfg.Limiter.ApplyToStateless,
	})

	var adminNotifier notifier.TextNotifier
	if cfg.Notify.Telegram.Enabled {
		adminNotifier = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}
	events := notifier.NewEvents(adminNotifier)
	wallets := wallet.NewGormService(store.DB())
	effects := engine.NewEffects(wallets, events, cfg.Charge)

	tracker := position.NewTracker(store)
	router := engine.NewRouter(store, tracker, adapters, trades)
	eng := engine.New(engine.NewResolver(store), router, effects)

	parser, err := signal.NewParser(store)
	if err != nil {
		return nil, fmt.Errorf("初始化信号解析器失败: %w", err)
	}
	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:       cfg.Server.Addr,
		AdminToken: cfg.Server.AdminToken,
		Handlers:   httpapi.NewHandlers(parser, eng, sessionPool, trades),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	watcher, err := brcfg.NewWatcher(cfg)
	if err != nil {
		// 热更新失败不致命，配置仍按启动时的快照运行。
		logger.Warnf("配置热更新不可用: %v", err)
		watcher = nil
	}
	if watcher != nil {
		watcher.Subscribe(func(next *brcfg.Config) {
			limiter.SetMaxPending(next.Limiter.MaxPending)
			effects.SetCharge(next.Charge)
		})
	}

	return &App{
		cfg:     cfg,
		store:   store,
		trades:  trades,
		pool:    sessionPool,
		server:  server,
		watcher: watcher,
	}, nil
}
