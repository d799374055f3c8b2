package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trademux/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store 基于 Gorm + SQLite 管理策略、订阅、凭据、仓位与钱包。
type Store struct {
	db *gorm.DB
}

// New 初始化存储并执行迁移。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	// WAL + busy_timeout 处理跨连接并发；不用 cache=shared，
	// 共享缓存在并发读写同一张表时会报 SQLITE_LOCKED。
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.Strategy{},
		&model.Subscription{},
		&model.BrokerCredential{},
		&model.StrategyBrokerSelection{},
		&model.PaperPosition{},
		&model.LivePosition{},
		&model.WalletAccount{},
		&model.WalletEntry{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent fanout
	// units while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB 暴露底层 *gorm.DB（钱包等子模块共用同一连接）。
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// StrategyBySecret 按 webhook secret 查找策略；未命中返回 (nil, nil)。
func (s *Store) StrategyBySecret(ctx context.Context, secret string) (*model.Strategy, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, nil
	}
	var st model.Strategy
	err := s.db.WithContext(ctx).Where("webhook_secret = ?", secret).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ActiveSubscriptions 返回策略下 active 且未暂停的订阅，按 ID 升序。
func (s *Store) ActiveSubscriptions(ctx context.Context, strategyID uint) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.WithContext(ctx).
		Where("strategy_id = ? AND active = ? AND paused = ?", strategyID, true, false).
		Order("id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// SelectionForStrategy 返回账户为策略显式指定的凭据；没有则 (nil, nil)。
func (s *Store) SelectionForStrategy(ctx context.Context, strategyID, accountID uint) (*model.BrokerCredential, error) {
	var sel model.StrategyBrokerSelection
	err := s.db.WithContext(ctx).
		Where("strategy_id = ? AND account_id = ?", strategyID, accountID).
		Order("id DESC").
		First(&sel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cred model.BrokerCredential
	err = s.db.WithContext(ctx).
		Where("id = ? AND active = ?", sel.CredentialID, true).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// CredentialByID 返回指定凭据（含已停用的，平仓路径需要）。
func (s *Store) CredentialByID(ctx context.Context, id uint) (*model.BrokerCredential, error) {
	if id == 0 {
		return nil, nil
	}
	var cred model.BrokerCredential
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// DefaultCredential 返回账户在 segment 下的默认生效凭据。
func (s *Store) DefaultCredential(ctx context.Context, accountID uint, segment string) (*model.BrokerCredential, error) {
	var cred model.BrokerCredential
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND segment = ? AND active = ? AND is_default = ?", accountID, segment, true, true).
		Order("id DESC").
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// AnyActiveCredential 返回账户在 segment 下任意生效凭据。
func (s *Store) AnyActiveCredential(ctx context.Context, accountID uint, segment string) (*model.BrokerCredential, error) {
	var cred model.BrokerCredential
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND segment = ? AND active = ?", accountID, segment, true).
		Order("id DESC").
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// OpenPaperPosition 查找模拟盘 Open 仓位；没有返回 (nil, nil)。
func (s *Store) OpenPaperPosition(ctx context.Context, accountID, strategyID uint, symbol string) (*model.PaperPosition, error) {
	var pos model.PaperPosition
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND strategy_id = ? AND symbol = ? AND status = ?",
			accountID, strategyID, symbol, model.PositionOpen).
		Order("id DESC").
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// CreatePaperPosition 写入新的模拟盘仓位。
func (s *Store) CreatePaperPosition(ctx context.Context, pos *model.PaperPosition) error {
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}
	pos.Status = model.PositionOpen
	return s.db.WithContext(ctx).Create(pos).Error
}

// ClosePaperPosition 把模拟盘仓位置为 Closed 并记录平仓价与已实现盈亏。
func (s *Store) ClosePaperPosition(ctx context.Context, id uint, closePrice, realizedPnL float64) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&model.PaperPosition{}).
		Where("id = ? AND status = ?", id, model.PositionOpen).
		Updates(map[string]any{
			"status":       model.PositionClosed,
			"mark_price":   closePrice,
			"realized_pnl": realizedPnL,
			"closed_at":    now,
		}).Error
}

// OpenLivePosition 查找实盘 Open 仓位；没有返回 (nil, nil)。
func (s *Store) OpenLivePosition(ctx context.Context, accountID, strategyID uint, symbol string) (*model.LivePosition, error) {
	var pos model.LivePosition
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND strategy_id = ? AND symbol = ? AND status = ?",
			accountID, strategyID, symbol, model.PositionOpen).
		Order("id DESC").
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// CreateLivePosition 写入新的实盘仓位记录。
func (s *Store) CreateLivePosition(ctx context.Context, pos *model.LivePosition) error {
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}
	pos.Status = model.PositionOpen
	return s.db.WithContext(ctx).Create(pos).Error
}

// CloseLivePosition 把实盘仓位置为 Closed。
func (s *Store) CloseLivePosition(ctx context.Context, id uint, realizedPnL float64) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&model.LivePosition{}).
		Where("id = ? AND status = ?", id, model.PositionOpen).
		Updates(map[string]any{
			"status":       model.PositionClosed,
			"realized_pnl": realizedPnL,
			"closed_at":    now,
		}).Error
}
