package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trademux/internal/broker"
	"trademux/internal/broker/exchange"
	"trademux/internal/broker/paper"
	"trademux/internal/broker/pool"
	"trademux/internal/config"
	"trademux/internal/engine/position"
	"trademux/internal/signal"
	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"
	"trademux/internal/store/tradelog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noDialer struct{}

func (noDialer) Dial(context.Context, string, broker.Credential) (pool.Handle, error) {
	return nil, broker.ErrConnectTimeout
}

type engineFixture struct {
	engine   *Engine
	store    *gormstore.Store
	trades   *tradelog.Store
	strategy *model.Strategy
}

// 场景：owner（无订阅行，模拟盘）+ 账户 2 重复订阅模拟盘 + 账户 3
// 模拟盘 + 账户 4 实盘但未配置凭据。
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := gormstore.New(filepath.Join(dir, "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	trades, err := tradelog.New(filepath.Join(dir, "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = trades.Close() })

	db := store.DB()
	strategy := &model.Strategy{OwnerID: 1, Name: "fixture", WebhookSecret: "sec", Symbol: "BTCUSDT", Active: true, BaseLot: 0.1}
	require.NoError(t, db.Create(strategy).Error)
	subs := []model.Subscription{
		{AccountID: 2, StrategyID: strategy.ID, LotMultiplier: 1, TradeMode: model.ModePaper, Active: true},
		{AccountID: 2, StrategyID: strategy.ID, LotMultiplier: 2, TradeMode: model.ModePaper, Active: true},
		{AccountID: 3, StrategyID: strategy.ID, LotMultiplier: 1, TradeMode: model.ModePaper, Active: true},
		{AccountID: 4, StrategyID: strategy.ID, LotMultiplier: 1, TradeMode: model.ModeLive, Active: true},
	}
	for i := range subs {
		require.NoError(t, db.Create(&subs[i]).Error)
	}

	limiter := pool.NewLimiter(5, time.Second, 8*time.Second)
	sessionPool := pool.New(noDialer{}, limiter, pool.Options{MaxConnections: 2})
	simulator := paper.New(nil, map[string]float64{"BTCUSDT": 100})
	adapters := NewAdapterSet(simulator, sessionPool, exchange.Options{})

	tracker := position.NewTracker(store)
	router := NewRouter(store, tracker, adapters, trades)
	effects := NewEffects(nil, nil, config.ChargeConfig{})
	eng := New(NewResolver(store), router, effects)

	return &engineFixture{engine: eng, store: store, trades: trades, strategy: strategy}
}

func (f *engineFixture) inbound(trace string, dir signal.Direction) *signal.Inbound {
	return &signal.Inbound{TraceID: trace, Strategy: f.strategy, Direction: dir, Symbol: "BTCUSDT"}
}

func outcomeFor(report *Report, accountID uint) *Outcome {
	for i := range report.Results {
		if report.Results[i].AccountID == accountID {
			return &report.Results[i]
		}
	}
	return nil
}

func TestFanoutOpensPositions(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	report, err := f.engine.HandleSignal(ctx, f.inbound("t1", signal.Buy))
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total, "owner + 3 个去重后的订阅账户")
	assert.Equal(t, 3, report.Successful)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.PaperTrades)
	assert.Equal(t, 0, report.LiveTrades)

	for _, accountID := range []uint{1, 2, 3} {
		out := outcomeFor(report, accountID)
		require.NotNil(t, out)
		assert.True(t, out.Success)
		assert.Equal(t, OutcomeOpened, out.Action)

		pos, err := f.store.OpenPaperPosition(ctx, accountID, f.strategy.ID, "BTCUSDT")
		require.NoError(t, err)
		require.NotNil(t, pos, "账户 %d 应有 Open 仓位", accountID)
		assert.Equal(t, "BUY", pos.Direction)
	}

	// 实盘账户无凭据：失败但不影响其他账户
	out := outcomeFor(report, 4)
	require.NotNil(t, out)
	assert.False(t, out.Success)
	assert.Equal(t, OutcomeFailed, out.Action)
	assert.Contains(t, out.Error, broker.ErrNotConnected.Error())
}

func TestFanoutIdempotentOnSameDirection(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleSignal(ctx, f.inbound("t1", signal.Buy))
	require.NoError(t, err)
	report, err := f.engine.HandleSignal(ctx, f.inbound("t2", signal.Buy))
	require.NoError(t, err)

	for _, accountID := range []uint{1, 2, 3} {
		out := outcomeFor(report, accountID)
		require.NotNil(t, out)
		assert.True(t, out.Success)
		assert.Equal(t, OutcomeSkipped, out.Action, "同向信号应幂等跳过")
	}

	// 仍然只有一条 Open 仓位
	pos, err := f.store.OpenPaperPosition(ctx, 2, f.strategy.ID, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
}

func TestFanoutReversal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleSignal(ctx, f.inbound("t1", signal.Buy))
	require.NoError(t, err)
	report, err := f.engine.HandleSignal(ctx, f.inbound("t2", signal.Sell))
	require.NoError(t, err)

	out := outcomeFor(report, 2)
	require.NotNil(t, out)
	assert.Equal(t, OutcomeOpened, out.Action)

	pos, err := f.store.OpenPaperPosition(ctx, 2, f.strategy.ID, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "SELL", pos.Direction, "反转后应持有新方向")

	// 反转应留下一平一开两条流水，且先平后开（List 倒序）
	records, err := f.trades.List(ctx, tradelog.Query{TraceID: "t2", AccountID: 2})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "open", records[0].Action)
	assert.Equal(t, "close", records[1].Action)

	// 被平的旧仓位已结算
	var closedCount int64
	require.NoError(t, f.store.DB().Model(&model.PaperPosition{}).
		Where("account_id = ? AND status = ?", 2, model.PositionClosed).
		Count(&closedCount).Error)
	assert.Equal(t, int64(1), closedCount)
}

func TestFanoutCloseWithoutPositions(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	report, err := f.engine.HandleSignal(ctx, f.inbound("t1", signal.Close))
	require.NoError(t, err)

	assert.Equal(t, 0, report.Failed)
	for _, out := range report.Results {
		assert.True(t, out.Success)
		assert.Equal(t, OutcomeClosed, out.Action)
		assert.Equal(t, 0, out.Closed)
	}
}

func TestFanoutCloseIsModeAgnostic(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.HandleSignal(ctx, f.inbound("t1", signal.Buy))
	require.NoError(t, err)
	report, err := f.engine.HandleSignal(ctx, f.inbound("t2", signal.Close))
	require.NoError(t, err)

	out := outcomeFor(report, 2)
	require.NotNil(t, out)
	assert.Equal(t, 1, out.Closed)

	pos, err := f.store.OpenPaperPosition(ctx, 2, f.strategy.ID, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos, "CLOSE 之后不应残留 Open 仓位")
}
