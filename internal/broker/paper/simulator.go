// Package paper implements the paper-trading backend: fills are simulated
// against reference prices, no order ever reaches a live venue.
package paper

import (
	"context"
	"fmt"
	"strings"

	"trademux/internal/broker"
	"trademux/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceSource 提供撮合用的参考报价。
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (broker.Quote, error)
}

// Simulator 是模拟盘执行后端。买单按卖一价成交，卖单按买一价成交；
// 行情不可得时退回配置的静态兜底价。
type Simulator struct {
	source   PriceSource
	fallback map[string]float64
}

// New 构建模拟撮合器。source 可为 nil（纯兜底价模式）。
func New(source PriceSource, fallback map[string]float64) *Simulator {
	norm := make(map[string]float64, len(fallback))
	for sym, px := range fallback {
		norm[normalizeSymbol(sym)] = px
	}
	return &Simulator{source: source, fallback: norm}
}

func (s *Simulator) Name() string {
	return "paper"
}

func (s *Simulator) Place(ctx context.Context, req broker.PlaceRequest) (*broker.PlaceResult, error) {
	price, err := s.fillPrice(ctx, req.Symbol, req.Side)
	if err != nil {
		return nil, err
	}
	return &broker.PlaceResult{
		OrderID:     "paper-" + uuid.NewString(),
		FilledPrice: price,
		Status:      broker.StatusCompleted,
	}, nil
}

func (s *Simulator) Close(ctx context.Context, req broker.CloseRequest) (*broker.CloseResult, error) {
	price, err := s.fillPrice(ctx, req.Symbol, req.Side.Opposite())
	if err != nil {
		return nil, err
	}
	open := decimal.NewFromFloat(req.OpenPrice)
	cls := decimal.NewFromFloat(price)
	qty := decimal.NewFromFloat(req.Quantity)
	diff := cls.Sub(open)
	if req.Side == broker.SideSell {
		diff = diff.Neg()
	}
	pnl, _ := diff.Mul(qty).Round(8).Float64()
	return &broker.CloseResult{
		ClosePrice:  price,
		RealizedPnL: pnl,
	}, nil
}

func (s *Simulator) Price(ctx context.Context, symbol string) (broker.Quote, error) {
	if s.source != nil {
		q, err := s.source.Quote(ctx, symbol)
		if err == nil && q.Mid() > 0 {
			return q, nil
		}
		if err != nil {
			logger.Debugf("paper: reference quote for %s unavailable: %v", symbol, err)
		}
	}
	if px, ok := s.fallback[normalizeSymbol(symbol)]; ok && px > 0 {
		return broker.Quote{Symbol: symbol, Bid: px, Ask: px}, nil
	}
	return broker.Quote{}, fmt.Errorf("paper: no reference price for %s", symbol)
}

// fillPrice 给出一笔成交的价格：买吃卖一，卖吃买一。
func (s *Simulator) fillPrice(ctx context.Context, symbol string, side broker.Side) (float64, error) {
	q, err := s.Price(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price := q.Ask
	if side == broker.SideSell {
		price = q.Bid
	}
	if price <= 0 {
		price = q.Mid()
	}
	if price <= 0 {
		return 0, fmt.Errorf("paper: zero reference price for %s", symbol)
	}
	return price, nil
}

func normalizeSymbol(sym string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(sym), "/", ""))
}
