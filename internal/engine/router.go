package engine

import (
	"context"
	"fmt"

	"trademux/internal/broker"
	"trademux/internal/engine/position"
	"trademux/internal/logger"
	"trademux/internal/signal"
	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"
	"trademux/internal/store/tradelog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// defaultSegment 是凭据选择用的交易 segment。凭据表按 segment 建模，
// 当前只接了合约一个 segment。
const defaultSegment = "futures"

// Router 把单个执行单元分发到正确的执行后端并落库。
// 错误在这里收口：后端失败转为 Failed 流水，绝不打断整体 fanout。
type Router struct {
	store    *gormstore.Store
	tracker  *position.Tracker
	adapters *AdapterSet
	trades   *tradelog.Store
}

func NewRouter(store *gormstore.Store, tracker *position.Tracker, adapters *AdapterSet, trades *tradelog.Store) *Router {
	return &Router{store: store, tracker: tracker, adapters: adapters, trades: trades}
}

// Execute 对一个账户执行一条信号。整个 读状态→下单→落库 过程持有
// per-key 锁，同 key 信号串行，跨 key 并行。
func (r *Router) Execute(ctx context.Context, in *signal.Inbound, target Target) Outcome {
	key := position.Key{AccountID: target.AccountID, StrategyID: in.Strategy.ID, Symbol: in.Symbol}
	unlock := r.tracker.Lock(key)
	defer unlock()

	if in.Direction == signal.Close {
		return r.closeAll(ctx, in, target, key)
	}

	existing, err := r.tracker.OpenPosition(ctx, target.TradeMode, key)
	if err != nil {
		return r.fail(ctx, in, target, fmt.Errorf("读取仓位状态失败: %w", err))
	}

	switch position.Decide(existing, in.Direction) {
	case position.ActionSkip:
		rec := r.newRecord(in, target, position.ActionSkip)
		rec.Status = tradelog.StatusCompleted
		r.append(ctx, rec)
		return Outcome{
			AccountID: target.AccountID,
			Mode:      target.TradeMode,
			Success:   true,
			Action:    OutcomeSkipped,
			TradeID:   rec.ID,
		}
	case position.ActionReverse:
		if out, ok := r.closeOne(ctx, in, target, existing, target.TradeMode); !ok {
			return out
		}
		return r.open(ctx, in, target, key)
	default:
		return r.open(ctx, in, target, key)
	}
}

// open 下开仓单并写仓位与流水。
func (r *Router) open(ctx context.Context, in *signal.Inbound, target Target, key position.Key) Outcome {
	adapter, credentialID, err := r.adapterFor(ctx, in, target)
	if err != nil {
		return r.fail(ctx, in, target, err)
	}

	side := broker.Side(in.Direction)
	quantity := scaleLot(in.Strategy.BaseLot, target.LotMultiplier)
	result, err := adapter.Place(ctx, broker.PlaceRequest{
		AccountID:  target.AccountID,
		StrategyID: in.Strategy.ID,
		Symbol:     in.Symbol,
		Side:       side,
		Quantity:   quantity,
		Risk:       broker.ParseRiskConfig(in.Strategy.RiskConfig),
	})
	if err != nil {
		return r.fail(ctx, in, target, fmt.Errorf("开仓失败: %w", err))
	}

	fill := position.Fill{
		Side:         side,
		Quantity:     quantity,
		OpenPrice:    result.FilledPrice,
		OrderID:      result.OrderID,
		CredentialID: credentialID,
		Raw:          result.Raw,
	}
	if _, err := r.tracker.CommitOpen(ctx, target.TradeMode, key, fill); err != nil {
		// 订单已出但本地落库失败，流水仍然要记，运维按 trace 对账。
		logger.Errorf("router: 仓位落库失败 account=%d trace=%s: %v", target.AccountID, in.TraceID, err)
	}

	rec := r.newRecord(in, target, position.ActionOpen)
	rec.OrderID = result.OrderID
	rec.Quantity = quantity
	rec.Price = result.FilledPrice
	rec.Status = string(result.Status)
	r.append(ctx, rec)

	return Outcome{
		AccountID: target.AccountID,
		Mode:      target.TradeMode,
		Success:   true,
		Action:    OutcomeOpened,
		TradeID:   rec.ID,
		OrderID:   result.OrderID,
	}
}

// closeOne 平掉一个已知仓位。返回 (失败结果, false) 或 (零值, true)。
func (r *Router) closeOne(ctx context.Context, in *signal.Inbound, target Target, existing *position.Open, mode model.TradeMode) (Outcome, bool) {
	adapter, err := r.adapterForClose(ctx, in, target, existing, mode)
	if err != nil {
		return r.fail(ctx, in, target, err), false
	}
	result, err := adapter.Close(ctx, broker.CloseRequest{
		AccountID:  target.AccountID,
		StrategyID: in.Strategy.ID,
		PositionID: existing.ID,
		OrderID:    existing.OrderID,
		Symbol:     in.Symbol,
		Side:       existing.Direction,
		Quantity:   existing.Quantity,
		OpenPrice:  existing.OpenPrice,
	})
	if err != nil {
		return r.fail(ctx, in, target, fmt.Errorf("平仓失败: %w", err)), false
	}
	if err := r.tracker.CommitClose(ctx, mode, existing.ID, result.ClosePrice, result.RealizedPnL); err != nil {
		logger.Errorf("router: 平仓落库失败 position=%d trace=%s: %v", existing.ID, in.TraceID, err)
	}

	rec := r.newRecord(in, target, position.ActionClose)
	rec.Mode = string(mode)
	rec.OrderID = existing.OrderID
	rec.Direction = string(existing.Direction)
	rec.Quantity = existing.Quantity
	rec.Price = result.ClosePrice
	rec.RealizedPnL = result.RealizedPnL
	rec.Status = tradelog.StatusClosed
	r.append(ctx, rec)
	return Outcome{}, true
}

// closeAll 响应 CLOSE 信号：模拟盘与实盘两侧的 Open 仓位都要平。
func (r *Router) closeAll(ctx context.Context, in *signal.Inbound, target Target, key position.Key) Outcome {
	closed := 0
	var failed *Outcome
	for _, mode := range []model.TradeMode{model.ModePaper, model.ModeLive} {
		existing, err := r.tracker.OpenPosition(ctx, mode, key)
		if err != nil {
			out := r.fail(ctx, in, target, fmt.Errorf("读取仓位状态失败: %w", err))
			if failed == nil {
				failed = &out
			}
			continue
		}
		if existing == nil {
			continue
		}
		if out, ok := r.closeOne(ctx, in, target, existing, mode); !ok {
			if failed == nil {
				failed = &out
			}
			continue
		}
		closed++
	}
	if failed != nil && closed == 0 {
		return *failed
	}
	return Outcome{
		AccountID: target.AccountID,
		Mode:      target.TradeMode,
		Success:   true,
		Action:    OutcomeClosed,
		Closed:    closed,
	}
}

// adapterFor 为开仓选择执行后端。实盘的凭据链：
// 策略级显式指定 > 账户默认凭据 > segment 下任意生效凭据。
func (r *Router) adapterFor(ctx context.Context, in *signal.Inbound, target Target) (broker.Adapter, uint, error) {
	if target.TradeMode != model.ModeLive {
		return r.adapters.Paper(), 0, nil
	}
	cred, err := r.resolveCredential(ctx, in.Strategy.ID, target.AccountID)
	if err != nil {
		return nil, 0, err
	}
	if cred == nil {
		return nil, 0, fmt.Errorf("%w", broker.ErrNotConnected)
	}
	adapter, err := r.adapters.ForCredential(cred)
	if err != nil {
		return nil, 0, err
	}
	return adapter, cred.ID, nil
}

// adapterForClose 为平仓选择后端：实盘优先用开仓时的凭据。
func (r *Router) adapterForClose(ctx context.Context, in *signal.Inbound, target Target, existing *position.Open, mode model.TradeMode) (broker.Adapter, error) {
	if mode != model.ModeLive {
		return r.adapters.Paper(), nil
	}
	cred, err := r.store.CredentialByID(ctx, existing.CredentialID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		cred, err = r.resolveCredential(ctx, in.Strategy.ID, target.AccountID)
		if err != nil {
			return nil, err
		}
	}
	if cred == nil {
		return nil, fmt.Errorf("%w", broker.ErrNotConnected)
	}
	return r.adapters.ForCredential(cred)
}

func (r *Router) resolveCredential(ctx context.Context, strategyID, accountID uint) (*model.BrokerCredential, error) {
	cred, err := r.store.SelectionForStrategy(ctx, strategyID, accountID)
	if err != nil || cred != nil {
		return cred, err
	}
	cred, err = r.store.DefaultCredential(ctx, accountID, defaultSegment)
	if err != nil || cred != nil {
		return cred, err
	}
	return r.store.AnyActiveCredential(ctx, accountID, defaultSegment)
}

// fail 把错误收口成 Failed 流水与失败结果。
func (r *Router) fail(ctx context.Context, in *signal.Inbound, target Target, cause error) Outcome {
	rec := r.newRecord(in, target, "fail")
	rec.Status = tradelog.StatusFailed
	rec.Error = cause.Error()
	r.append(ctx, rec)
	logger.Warnf("router: account=%d strategy=%d trace=%s failed: %v",
		target.AccountID, in.Strategy.ID, in.TraceID, cause)
	return Outcome{
		AccountID: target.AccountID,
		Mode:      target.TradeMode,
		Success:   false,
		Action:    OutcomeFailed,
		TradeID:   rec.ID,
		Error:     cause.Error(),
	}
}

func (r *Router) newRecord(in *signal.Inbound, target Target, action position.Action) tradelog.Record {
	return tradelog.Record{
		ID:         uuid.NewString(),
		TraceID:    in.TraceID,
		StrategyID: in.Strategy.ID,
		AccountID:  target.AccountID,
		Mode:       string(target.TradeMode),
		Action:     string(action),
		Symbol:     in.Symbol,
		Direction:  string(in.Direction),
	}
}

func (r *Router) append(ctx context.Context, rec tradelog.Record) {
	if r.trades == nil {
		return
	}
	if err := r.trades.Append(ctx, rec); err != nil {
		logger.Errorf("router: 流水写入失败 trace=%s: %v", rec.TraceID, err)
	}
}

// scaleLot 用十进制乘法计算下单量，避免 0.1*3 一类的浮点尾数。
func scaleLot(baseLot, multiplier float64) float64 {
	q, _ := decimal.NewFromFloat(baseLot).
		Mul(decimal.NewFromFloat(multiplier)).
		Round(8).
		Float64()
	return q
}
