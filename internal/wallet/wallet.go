// Package wallet 提供跟单扣费用的最小钱包接口。
// 余额管理的完整后台在外部系统，核心只消费 debit 一个能力。
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trademux/internal/store/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrInsufficientBalance 表示余额不足。调用方记日志即可，不回滚交易。
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// Service 是执行引擎依赖的钱包能力。
type Service interface {
	// Debit 从账户划扣 amount，返回新余额。
	Debit(ctx context.Context, accountID uint, amount float64, reason string) (float64, error)
}

// GormService 基于主库的钱包实现，划扣与流水在同一事务内完成。
type GormService struct {
	db *gorm.DB
}

func NewGormService(db *gorm.DB) *GormService {
	return &GormService{db: db}
}

func (s *GormService) Debit(ctx context.Context, accountID uint, amount float64, reason string) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("wallet: 划扣金额必须为正，得到 %v", amount)
	}
	var newBalance float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct model.WalletAccount
		err := tx.Where("account_id = ?", accountID).First(&acct).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: account %d has no wallet", ErrInsufficientBalance, accountID)
		}
		if err != nil {
			return err
		}
		balance := decimal.NewFromFloat(acct.Balance)
		debit := decimal.NewFromFloat(amount)
		if balance.LessThan(debit) {
			return fmt.Errorf("%w: balance=%s need=%s", ErrInsufficientBalance,
				balance.String(), debit.String())
		}
		newBalance, _ = balance.Sub(debit).Round(8).Float64()
		if err := tx.Model(&model.WalletAccount{}).
			Where("account_id = ?", accountID).
			Updates(map[string]any{"balance": newBalance, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		return tx.Create(&model.WalletEntry{
			AccountID: accountID,
			Amount:    -amount,
			Balance:   newBalance,
			Reason:    reason,
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}
