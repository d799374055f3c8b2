package engine

import (
	"context"
	"errors"
	"fmt"

	"trademux/internal/config"
	"trademux/internal/gateway/notifier"
	"trademux/internal/logger"
	"trademux/internal/signal"
	"trademux/internal/wallet"
)

// Effects 是交易结果落库后的副作用阶段：跟单扣费与事件推送。
// 任何失败只记日志，已提交的流水不回滚。
type Effects struct {
	wallet wallet.Service
	events notifier.EventSink
	charge config.ChargeConfig
}

func NewEffects(w wallet.Service, events notifier.EventSink, charge config.ChargeConfig) *Effects {
	return &Effects{wallet: w, events: events, charge: charge}
}

// SetCharge 热更新扣费配置。
func (e *Effects) SetCharge(charge config.ChargeConfig) {
	e.charge = charge
}

// Dispatch 按单个账户的最终结果派发副作用。
func (e *Effects) Dispatch(ctx context.Context, in *signal.Inbound, target Target, out Outcome) {
	e.chargeFollower(ctx, in, target, out)

	if e.events == nil {
		return
	}
	payload := map[string]any{
		"trace_id": in.TraceID,
		"strategy": in.Strategy.ID,
		"symbol":   in.Symbol,
		"action":   out.Action,
		"mode":     string(out.Mode),
	}
	if out.Error != "" {
		payload["error"] = out.Error
	}
	e.events.EmitAccountEvent(target.AccountID, "trade."+out.Action, payload)
	if !out.Success {
		payload["account"] = target.AccountID
		e.events.EmitAdminEvent("trade.failed", payload)
	}
}

// chargeFollower 对非 owner 的成功跟单执行单笔扣费。
// 余额不足记日志放行（交易已经发生），其余错误同样只记日志。
func (e *Effects) chargeFollower(ctx context.Context, in *signal.Inbound, target Target, out Outcome) {
	if e.wallet == nil || !e.charge.Enabled || e.charge.FeePerTrade <= 0 {
		return
	}
	if target.IsOwner || !in.Strategy.ChargeEnabled {
		return
	}
	if !out.Success || out.Action == OutcomeSkipped {
		return
	}
	reason := fmt.Sprintf("copy-trade fee strategy=%d trace=%s", in.Strategy.ID, in.TraceID)
	newBalance, err := e.wallet.Debit(ctx, target.AccountID, e.charge.FeePerTrade, reason)
	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		logger.Warnf("charge: account=%d 余额不足，跳过扣费: %v", target.AccountID, err)
		if e.events != nil {
			e.events.EmitAdminEvent("charge.insufficient", map[string]any{
				"account":  target.AccountID,
				"strategy": in.Strategy.ID,
				"fee":      e.charge.FeePerTrade,
			})
		}
	case err != nil:
		logger.Errorf("charge: account=%d 扣费失败: %v", target.AccountID, err)
	default:
		logger.Infof("charge: account=%d fee=%.4f balance=%.4f", target.AccountID, e.charge.FeePerTrade, newBalance)
	}
}
