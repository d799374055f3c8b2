// Package app 负责应用级编排：加载配置→初始化依赖→启动服务。
package app

import (
	"context"
	"fmt"

	"trademux/internal/broker/pool"
	brcfg "trademux/internal/config"
	"trademux/internal/logger"
	"trademux/internal/store/gormstore"
	"trademux/internal/store/tradelog"
	httpapi "trademux/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 持有全部长生命周期组件。
type App struct {
	cfg     *brcfg.Config
	store   *gormstore.Store
	trades  *tradelog.Store
	pool    *pool.Pool
	server  *httpapi.Server
	watcher *brcfg.Watcher
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与连接池回收循环，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	logger.Infof("trademux 启动：addr=%s pool_max=%d limiter_max=%d",
		a.server.Addr(), a.cfg.Pool.MaxConnections, a.cfg.Limiter.MaxPending)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.pool.Run(ctx)
	})

	err := group.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if a.trades != nil {
		if err := a.trades.Close(); err != nil {
			logger.Warnf("关闭流水存储失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭主存储失败: %v", err)
		}
	}
}
