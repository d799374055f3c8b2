package metasync

import (
	"context"
	"encoding/json"

	"trademux/internal/broker"
	"trademux/internal/pkg/convert"
)

// Session 是连接池缓存的 MetaSync 会话句柄，持有会话令牌。
// 所有订单/行情调用走同一个 Client，按令牌路由到远端会话。
type Session struct {
	client    *Client
	accountID string
	token     string
}

// Disconnect 关闭远端会话。
func (s *Session) Disconnect(ctx context.Context) error {
	return s.client.DestroySession(ctx, s.token)
}

// Place 在会话上市价开仓。
func (s *Session) Place(ctx context.Context, req broker.PlaceRequest) (*broker.PlaceResult, error) {
	resp, err := s.client.PlaceOrder(ctx, s.token, OrderPayload{
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		Volume:     req.Quantity,
		StopLoss:   req.Risk.StopLoss,
		TakeProfit: req.Risk.TakeProfit,
	})
	if err != nil {
		return nil, err
	}
	status := broker.StatusCompleted
	if resp.Status != "" && resp.Status != "FILLED" && resp.Status != "COMPLETED" {
		status = broker.StatusPending
	}
	raw, _ := json.Marshal(resp)
	return &broker.PlaceResult{
		OrderID:     resp.OrderID,
		FilledPrice: resp.FillPrice,
		Status:      status,
		Raw:         raw,
	}, nil
}

// Close 平掉会话上的指定订单。远端直接返回已实现盈亏。
func (s *Session) Close(ctx context.Context, req broker.CloseRequest) (*broker.CloseResult, error) {
	resp, err := s.client.CloseOrder(ctx, s.token, req.OrderID, req.Quantity)
	if err != nil {
		return nil, err
	}
	return &broker.CloseResult{
		ClosePrice:  resp.ClosePrice,
		RealizedPnL: convert.ToFloat64(resp.Profit),
	}, nil
}

// Price 查询会话上某个品种的双边报价。
func (s *Session) Price(ctx context.Context, symbol string) (broker.Quote, error) {
	return s.client.Price(ctx, s.token, symbol)
}
