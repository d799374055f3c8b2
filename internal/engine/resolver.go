package engine

import (
	"context"

	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"
)

// Target 是 fanout 中的一个执行单元：一个账户跟随一条信号。
type Target struct {
	AccountID     uint
	LotMultiplier float64
	TradeMode     model.TradeMode
	IsOwner       bool
}

// Resolver 把策略展开为去重后的执行账户列表。
type Resolver struct {
	store *gormstore.Store
}

func NewResolver(store *gormstore.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve 加载策略下 active 且未暂停的订阅，按账户去重（重复订阅
// 保留 ID 最大的一行），并始终把策略 owner 排在最前。owner 没有
// 订阅行时按模拟盘、1 倍手数跟随。
func (r *Resolver) Resolve(ctx context.Context, strategy *model.Strategy) ([]Target, error) {
	subs, err := r.store.ActiveSubscriptions(ctx, strategy.ID)
	if err != nil {
		return nil, err
	}
	// 订阅按 ID 升序加载，后写覆盖前写即保留最新一行。
	latest := make(map[uint]model.Subscription, len(subs))
	order := make([]uint, 0, len(subs))
	for _, sub := range subs {
		if _, seen := latest[sub.AccountID]; !seen {
			order = append(order, sub.AccountID)
		}
		latest[sub.AccountID] = sub
	}

	targets := make([]Target, 0, len(order)+1)
	if ownerSub, ok := latest[strategy.OwnerID]; ok {
		targets = append(targets, targetOf(ownerSub, true))
	} else {
		targets = append(targets, Target{
			AccountID:     strategy.OwnerID,
			LotMultiplier: 1,
			TradeMode:     model.ModePaper,
			IsOwner:       true,
		})
	}
	for _, accountID := range order {
		if accountID == strategy.OwnerID {
			continue
		}
		targets = append(targets, targetOf(latest[accountID], false))
	}
	return targets, nil
}

func targetOf(sub model.Subscription, isOwner bool) Target {
	multiplier := sub.LotMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	mode := sub.TradeMode
	if mode != model.ModeLive {
		mode = model.ModePaper
	}
	return Target{
		AccountID:     sub.AccountID,
		LotMultiplier: multiplier,
		TradeMode:     mode,
		IsOwner:       isOwner,
	}
}
