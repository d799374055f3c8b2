// Package exchange implements the stateless broker family: every call is
// independently authenticated with API key and secret, no session to pool.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"trademux/internal/broker"
	"trademux/internal/broker/pool"
	symbolpkg "trademux/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// Options 控制无状态适配器的行为。
type Options struct {
	RESTBaseURL string
	// ApplyLimiter 为 true 时，无状态请求也占用全局限流名额。
	ApplyLimiter bool
}

// Adapter 每次调用都用凭据新建客户端签名请求，自身不持有连接。
type Adapter struct {
	cred    broker.Credential
	limiter *pool.Limiter
	opts    Options
}

// New 构建绑定单个凭据的无状态适配器。limiter 可为 nil。
func New(cred broker.Credential, limiter *pool.Limiter, opts Options) *Adapter {
	return &Adapter{cred: cred, limiter: limiter, opts: opts}
}

func (a *Adapter) Name() string {
	return "exchange"
}

func (a *Adapter) client() *futures.Client {
	c := futures.NewClient(a.cred.APIKey, a.cred.APISecret)
	if base := strings.TrimSpace(a.opts.RESTBaseURL); base != "" {
		c.BaseURL = base
	}
	return c
}

// gate 在启用时占用限流名额；返回归还函数。
func (a *Adapter) gate(key string) (func(err error), error) {
	if a.limiter == nil || !a.opts.ApplyLimiter {
		return func(error) {}, nil
	}
	if !a.limiter.Acquire(key) {
		return nil, broker.ErrRateLimited
	}
	return func(err error) {
		if err != nil {
			a.limiter.RecordFailure()
		} else {
			a.limiter.RecordSuccess()
		}
		a.limiter.Release()
	}, nil
}

func (a *Adapter) Place(ctx context.Context, req broker.PlaceRequest) (result *broker.PlaceResult, err error) {
	done, err := a.gate(req.Symbol)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	cleanSymbol := symbolpkg.Binance.ToExchange(req.Symbol)
	order, err := a.client().NewCreateOrderService().
		Symbol(cleanSymbol).
		Side(sideOf(req.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(req.Quantity)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	price := parseFloat(order.AvgPrice)
	if price <= 0 {
		// 部分撮合路径下 AvgPrice 可能为 0，退回行情价兜底。
		if q, qerr := a.Price(ctx, req.Symbol); qerr == nil {
			price = q.Mid()
		}
	}
	status := broker.StatusCompleted
	if order.Status != futures.OrderStatusTypeFilled {
		status = broker.StatusPending
	}
	raw, _ := json.Marshal(order)
	return &broker.PlaceResult{
		OrderID:     strconv.FormatInt(order.OrderID, 10),
		FilledPrice: price,
		Status:      status,
		Raw:         raw,
	}, nil
}

// Close 用反向市价单平仓。交易所不返回逐笔盈亏，按开仓价本地结算。
func (a *Adapter) Close(ctx context.Context, req broker.CloseRequest) (result *broker.CloseResult, err error) {
	done, err := a.gate(req.Symbol)
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	cleanSymbol := symbolpkg.Binance.ToExchange(req.Symbol)
	order, err := a.client().NewCreateOrderService().
		Symbol(cleanSymbol).
		Side(sideOf(req.Side.Opposite())).
		Type(futures.OrderTypeMarket).
		Quantity(formatQuantity(req.Quantity)).
		ReduceOnly(true).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	closePrice := parseFloat(order.AvgPrice)
	if closePrice <= 0 {
		if q, qerr := a.Price(ctx, req.Symbol); qerr == nil {
			closePrice = q.Mid()
		}
	}
	if closePrice <= 0 {
		return nil, fmt.Errorf("无法确定 %s 的平仓价", req.Symbol)
	}
	return &broker.CloseResult{
		ClosePrice:  closePrice,
		RealizedPnL: SettlePnL(req.Side, req.OpenPrice, closePrice, req.Quantity),
	}, nil
}

func (a *Adapter) Price(ctx context.Context, symbol string) (broker.Quote, error) {
	cleanSymbol := symbolpkg.Binance.ToExchange(symbol)
	tickers, err := a.client().NewListBookTickersService().Symbol(cleanSymbol).Do(ctx)
	if err != nil {
		return broker.Quote{}, err
	}
	if len(tickers) == 0 || tickers[0] == nil {
		return broker.Quote{}, fmt.Errorf("no book ticker for %s", cleanSymbol)
	}
	return broker.Quote{
		Symbol: symbol,
		Bid:    parseFloat(tickers[0].BidPrice),
		Ask:    parseFloat(tickers[0].AskPrice),
	}, nil
}

// SettlePnL 按开平价差做本地盈亏结算，十进制运算避免浮点误差。
func SettlePnL(side broker.Side, openPrice, closePrice, quantity float64) float64 {
	open := decimal.NewFromFloat(openPrice)
	cls := decimal.NewFromFloat(closePrice)
	qty := decimal.NewFromFloat(quantity)
	diff := cls.Sub(open)
	if side == broker.SideSell {
		diff = diff.Neg()
	}
	pnl, _ := diff.Mul(qty).Round(8).Float64()
	return pnl
}

func sideOf(s broker.Side) futures.SideType {
	if s == broker.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
