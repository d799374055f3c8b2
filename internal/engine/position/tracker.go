// Package position implements the per-key position state machine.
// 每个 (account, strategy, symbol) 在单一模式存储内至多一条 Open 仓位，
// 读写之间靠 per-key 互斥锁串行化，杜绝并发信号双开。
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trademux/internal/broker"
	"trademux/internal/signal"
	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"

	"gorm.io/datatypes"
)

// Key 唯一标识一个逻辑仓位槽。
type Key struct {
	AccountID  uint
	StrategyID uint
	Symbol     string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%s", k.AccountID, k.StrategyID, k.Symbol)
}

// Open 是对模拟盘/实盘 Open 仓位行的统一视图。
type Open struct {
	ID           uint
	Direction    broker.Side
	Quantity     float64
	OpenPrice    float64
	OrderID      string
	CredentialID uint
}

// Action 是状态机对一条信号的裁决。
type Action string

const (
	ActionOpen    Action = "open"
	ActionClose   Action = "close"
	ActionReverse Action = "reverse"
	ActionSkip    Action = "skip"
)

// Decide 根据现有仓位与信号方向裁决动作：
// 无仓 + BUY/SELL → open；同向 → skip（幂等）；反向 → reverse（先平后开）。
func Decide(existing *Open, dir signal.Direction) Action {
	if dir == signal.Close {
		if existing == nil {
			return ActionSkip
		}
		return ActionClose
	}
	if existing == nil {
		return ActionOpen
	}
	if string(existing.Direction) == string(dir) {
		return ActionSkip
	}
	return ActionReverse
}

// Tracker 维护 per-key 锁并代理仓位读写。
type Tracker struct {
	store *gormstore.Store
	locks sync.Map
}

func NewTracker(store *gormstore.Store) *Tracker {
	return &Tracker{store: store}
}

// Lock 获取 key 的互斥锁并返回解锁函数。持锁范围必须覆盖
// 读状态 → 执行 → 落库的完整过程。
func (t *Tracker) Lock(key Key) func() {
	l, _ := t.locks.LoadOrStore(key, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// OpenPosition 读取 key 在指定模式存储下的 Open 仓位；没有返回 (nil, nil)。
func (t *Tracker) OpenPosition(ctx context.Context, mode model.TradeMode, key Key) (*Open, error) {
	if mode == model.ModeLive {
		pos, err := t.store.OpenLivePosition(ctx, key.AccountID, key.StrategyID, key.Symbol)
		if err != nil || pos == nil {
			return nil, err
		}
		return &Open{
			ID:           pos.ID,
			Direction:    broker.Side(pos.Direction),
			Quantity:     pos.Quantity,
			OpenPrice:    pos.OpenPrice,
			OrderID:      pos.OrderID,
			CredentialID: pos.CredentialID,
		}, nil
	}
	pos, err := t.store.OpenPaperPosition(ctx, key.AccountID, key.StrategyID, key.Symbol)
	if err != nil || pos == nil {
		return nil, err
	}
	return &Open{
		ID:        pos.ID,
		Direction: broker.Side(pos.Direction),
		Quantity:  pos.Quantity,
		OpenPrice: pos.OpenPrice,
		OrderID:   pos.OrderID,
	}, nil
}

// Fill 是一次开仓成交的落库载荷。Raw 是后端的原始订单响应，
// 只有实盘仓位保留。
type Fill struct {
	Side         broker.Side
	Quantity     float64
	OpenPrice    float64
	OrderID      string
	CredentialID uint
	Raw          []byte
}

// CommitOpen 在指定模式存储写入新仓位，返回仓位 ID。
func (t *Tracker) CommitOpen(ctx context.Context, mode model.TradeMode, key Key, fill Fill) (uint, error) {
	now := time.Now()
	if mode == model.ModeLive {
		pos := &model.LivePosition{
			AccountID:    key.AccountID,
			StrategyID:   key.StrategyID,
			Symbol:       key.Symbol,
			Direction:    string(fill.Side),
			Quantity:     fill.Quantity,
			OpenPrice:    fill.OpenPrice,
			OrderID:      fill.OrderID,
			CredentialID: fill.CredentialID,
			OpenedAt:     now,
		}
		if len(fill.Raw) > 0 {
			pos.Raw = datatypes.JSON(fill.Raw)
		}
		if err := t.store.CreateLivePosition(ctx, pos); err != nil {
			return 0, err
		}
		return pos.ID, nil
	}
	pos := &model.PaperPosition{
		AccountID:  key.AccountID,
		StrategyID: key.StrategyID,
		Symbol:     key.Symbol,
		Direction:  string(fill.Side),
		Quantity:   fill.Quantity,
		OpenPrice:  fill.OpenPrice,
		MarkPrice:  fill.OpenPrice,
		OrderID:    fill.OrderID,
		OpenedAt:   now,
	}
	if err := t.store.CreatePaperPosition(ctx, pos); err != nil {
		return 0, err
	}
	return pos.ID, nil
}

// CommitClose 把指定模式存储的仓位置为 Closed。
func (t *Tracker) CommitClose(ctx context.Context, mode model.TradeMode, positionID uint, closePrice, realizedPnL float64) error {
	if mode == model.ModeLive {
		return t.store.CloseLivePosition(ctx, positionID, realizedPnL)
	}
	return t.store.ClosePaperPosition(ctx, positionID, closePrice, realizedPnL)
}
