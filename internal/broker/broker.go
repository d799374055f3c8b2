// Package broker defines a common abstraction over trade execution backends.
// This allows the execution router to treat session-based brokers, stateless
// exchange clients and the paper simulator uniformly.
package broker

import (
	"context"
	"encoding/json"
)

// Side 是下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回相反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus 表示订单的落地状态。
type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusCompleted OrderStatus = "Completed"
	StatusFailed    OrderStatus = "Failed"
)

// RiskConfig 是策略级止损/止盈设定，来自 Strategy.RiskConfig JSON。
type RiskConfig struct {
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// ParseRiskConfig 解析策略上的 JSON 风险配置；空值返回零值配置。
func ParseRiskConfig(raw []byte) RiskConfig {
	var cfg RiskConfig
	if len(raw) == 0 {
		return cfg
	}
	_ = json.Unmarshal(raw, &cfg)
	return cfg
}

// Credential 是一次执行所用的 broker 凭据，webhook 调用内不可变。
type Credential struct {
	ID        uint
	AccountID uint
	Segment   string

	// 会话型
	ExternalAccountID string
	SessionSecret     string

	// 无状态型
	APIKey     string
	APISecret  string
	Passphrase string
}

// PlaceRequest 描述一次开仓。
type PlaceRequest struct {
	AccountID  uint
	StrategyID uint
	Symbol     string
	Side       Side
	Quantity   float64
	Risk       RiskConfig
}

// PlaceResult 是开仓结果。Raw 保留后端的原始订单响应供审计落库。
type PlaceResult struct {
	OrderID     string
	FilledPrice float64
	Status      OrderStatus
	Raw         json.RawMessage
}

// CloseRequest 描述一次平仓。OpenPrice 供无远端盈亏数据的后端本地结算。
type CloseRequest struct {
	AccountID  uint
	StrategyID uint
	PositionID uint
	OrderID    string
	Symbol     string
	Side       Side
	Quantity   float64
	OpenPrice  float64
}

// CloseResult 是平仓结果。
type CloseResult struct {
	ClosePrice  float64
	RealizedPnL float64
}

// Quote 是买卖双边报价。
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
}

// Mid 返回中间价；单边缺失时退化为另一边。
func (q Quote) Mid() float64 {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Bid > 0:
		return q.Bid
	default:
		return q.Ask
	}
}

// Adapter 是统一的执行能力接口。实现不得让错误逃逸中断 fanout：
// 调用方在 router 边界把错误转为 Failed 流水。
type Adapter interface {
	Name() string

	Place(ctx context.Context, req PlaceRequest) (*PlaceResult, error)

	Close(ctx context.Context, req CloseRequest) (*CloseResult, error)

	Price(ctx context.Context, symbol string) (Quote, error)
}
