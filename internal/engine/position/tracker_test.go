package position

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trademux/internal/broker"
	"trademux/internal/signal"
	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	openBuy := &Open{ID: 1, Direction: broker.SideBuy}

	cases := []struct {
		name     string
		existing *Open
		dir      signal.Direction
		want     Action
	}{
		{name: "无仓买入开仓", existing: nil, dir: signal.Buy, want: ActionOpen},
		{name: "无仓卖出开仓", existing: nil, dir: signal.Sell, want: ActionOpen},
		{name: "同向跳过", existing: openBuy, dir: signal.Buy, want: ActionSkip},
		{name: "反向先平后开", existing: openBuy, dir: signal.Sell, want: ActionReverse},
		{name: "平仓信号有仓", existing: openBuy, dir: signal.Close, want: ActionClose},
		{name: "平仓信号无仓", existing: nil, dir: signal.Close, want: ActionSkip},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.existing, tc.dir))
		})
	}
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := gormstore.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewTracker(store)
}

func TestTrackerPaperLifecycle(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	key := Key{AccountID: 1, StrategyID: 2, Symbol: "BTCUSDT"}

	got, err := tracker.OpenPosition(ctx, model.ModePaper, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	id, err := tracker.CommitOpen(ctx, model.ModePaper, key, Fill{
		Side:      broker.SideBuy,
		Quantity:  0.5,
		OpenPrice: 65000,
		OrderID:   "paper-1",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err = tracker.OpenPosition(ctx, model.ModePaper, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, broker.SideBuy, got.Direction)
	assert.Equal(t, 65000.0, got.OpenPrice)
	assert.Equal(t, "paper-1", got.OrderID)

	// 模拟盘与实盘存储互不可见
	live, err := tracker.OpenPosition(ctx, model.ModeLive, key)
	require.NoError(t, err)
	assert.Nil(t, live)

	require.NoError(t, tracker.CommitClose(ctx, model.ModePaper, id, 66000, 500))
	got, err = tracker.OpenPosition(ctx, model.ModePaper, key)
	require.NoError(t, err)
	assert.Nil(t, got, "平仓后不应再有 Open 仓位")
}

func TestTrackerLiveCarriesCredential(t *testing.T) {
	store, err := gormstore.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	tracker := NewTracker(store)
	ctx := context.Background()
	key := Key{AccountID: 3, StrategyID: 2, Symbol: "ETHUSDT"}

	id, err := tracker.CommitOpen(ctx, model.ModeLive, key, Fill{
		Side:         broker.SideSell,
		Quantity:     1,
		OpenPrice:    3200,
		OrderID:      "ord-9",
		CredentialID: 42,
		Raw:          []byte(`{"order_id":"ord-9","avg_price":"3200"}`),
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := tracker.OpenPosition(ctx, model.ModeLive, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint(42), got.CredentialID)
	assert.Equal(t, "ord-9", got.OrderID)

	// 原始订单响应要随实盘仓位落库
	stored, err := store.OpenLivePosition(ctx, key.AccountID, key.StrategyID, key.Symbol)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.JSONEq(t, `{"order_id":"ord-9","avg_price":"3200"}`, string(stored.Raw))
}

func TestTrackerLockSerializes(t *testing.T) {
	tracker := newTestTracker(t)
	key := Key{AccountID: 1, StrategyID: 1, Symbol: "BTCUSDT"}

	unlock := tracker.Lock(key)
	acquired := make(chan struct{})
	go func() {
		u := tracker.Lock(key)
		close(acquired)
		u()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("同 key 锁不应被并发获取")
	default:
	}
	unlock()
	<-acquired
}
