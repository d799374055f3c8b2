package engine

import (
	"context"
	"path/filepath"
	"testing"

	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *gormstore.Store {
	t.Helper()
	store, err := gormstore.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestResolverDeduplicatesAndIncludesOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	db := store.DB()

	strategy := &model.Strategy{OwnerID: 1, Name: "s", WebhookSecret: "sec", Symbol: "BTCUSDT", Active: true, BaseLot: 0.1}
	require.NoError(t, db.Create(strategy).Error)

	subs := []model.Subscription{
		{AccountID: 2, StrategyID: strategy.ID, LotMultiplier: 1, TradeMode: model.ModePaper, Active: true},
		// 账户 2 重复订阅，后一行（ID 更大）应生效
		{AccountID: 2, StrategyID: strategy.ID, LotMultiplier: 3, TradeMode: model.ModePaper, Active: true},
		{AccountID: 3, StrategyID: strategy.ID, LotMultiplier: 2, TradeMode: model.ModeLive, Active: true},
		// 暂停与停用的订阅不参与
		{AccountID: 4, StrategyID: strategy.ID, LotMultiplier: 1, TradeMode: model.ModePaper, Active: true, Paused: true},
		{AccountID: 5, StrategyID: strategy.ID, LotMultiplier: 1, TradeMode: model.ModePaper, Active: false},
	}
	for i := range subs {
		require.NoError(t, db.Create(&subs[i]).Error)
	}

	targets, err := NewResolver(store).Resolve(ctx, strategy)
	require.NoError(t, err)
	require.Len(t, targets, 3)

	assert.True(t, targets[0].IsOwner, "owner 永远在首位")
	assert.Equal(t, uint(1), targets[0].AccountID)
	assert.Equal(t, model.ModePaper, targets[0].TradeMode, "无订阅行的 owner 默认模拟盘")
	assert.Equal(t, 1.0, targets[0].LotMultiplier)

	assert.Equal(t, uint(2), targets[1].AccountID)
	assert.Equal(t, 3.0, targets[1].LotMultiplier, "重复订阅应保留最新一行")

	assert.Equal(t, uint(3), targets[2].AccountID)
	assert.Equal(t, model.ModeLive, targets[2].TradeMode)
}

func TestResolverOwnerSubscriptionWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	db := store.DB()

	strategy := &model.Strategy{OwnerID: 7, Name: "s", WebhookSecret: "sec2", Symbol: "BTCUSDT", Active: true}
	require.NoError(t, db.Create(strategy).Error)
	require.NoError(t, db.Create(&model.Subscription{
		AccountID: 7, StrategyID: strategy.ID, LotMultiplier: 5, TradeMode: model.ModeLive, Active: true,
	}).Error)

	targets, err := NewResolver(store).Resolve(ctx, strategy)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.True(t, targets[0].IsOwner)
	assert.Equal(t, model.ModeLive, targets[0].TradeMode)
	assert.Equal(t, 5.0, targets[0].LotMultiplier)
}
