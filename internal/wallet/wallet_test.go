package wallet

import (
	"context"
	"path/filepath"
	"testing"

	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*GormService, *gormstore.Store) {
	t.Helper()
	store, err := gormstore.New(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewGormService(store.DB()), store
}

func TestDebit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.DB().Create(&model.WalletAccount{AccountID: 1, Balance: 10}).Error)

	balance, err := svc.Debit(ctx, 1, 0.5, "copy-trade fee")
	require.NoError(t, err)
	assert.InDelta(t, 9.5, balance, 1e-9)

	var entries []model.WalletEntry
	require.NoError(t, store.DB().Where("account_id = ?", 1).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, -0.5, entries[0].Amount)
	assert.InDelta(t, 9.5, entries[0].Balance, 1e-9)
}

func TestDebitInsufficientBalance(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.DB().Create(&model.WalletAccount{AccountID: 1, Balance: 0.2}).Error)

	_, err := svc.Debit(ctx, 1, 0.5, "fee")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 余额不足不得留下任何变更
	var acct model.WalletAccount
	require.NoError(t, store.DB().First(&acct, "account_id = ?", 1).Error)
	assert.InDelta(t, 0.2, acct.Balance, 1e-9)
	var count int64
	require.NoError(t, store.DB().Model(&model.WalletEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebitUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Debit(context.Background(), 99, 0.5, "fee")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Debit(context.Background(), 1, 0, "fee")
	assert.Error(t, err)
}
