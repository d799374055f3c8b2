// Package binance 提供基于交易所公共行情的参考价来源，
// 供模拟盘撮合与本地盈亏结算使用。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trademux/internal/broker"
	symbolpkg "trademux/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

// Source 基于 go-binance SDK 实现参考价查询。只走公共端点，不带密钥。
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

// Quote 查询品种的最优买卖报价。
func (s *Source) Quote(ctx context.Context, symbol string) (broker.Quote, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return broker.Quote{}, fmt.Errorf("symbol is required")
	}
	// Binance requires symbols without slashes (e.g., ETHUSDT)
	cleanSymbol := symbolpkg.Binance.ToExchange(symbol)
	tickers, err := s.client.NewListBookTickersService().Symbol(cleanSymbol).Do(ctx)
	if err != nil {
		return broker.Quote{}, err
	}
	if len(tickers) == 0 || tickers[0] == nil {
		return broker.Quote{}, fmt.Errorf("no book ticker for %s", cleanSymbol)
	}
	return quoteFromTicker(symbol, tickers[0]), nil
}

// quoteFromTicker 把合约行情的 book ticker 转成内部报价。
func quoteFromTicker(symbol string, t *futures.BookTicker) broker.Quote {
	return broker.Quote{
		Symbol: symbol,
		Bid:    parseFloat(t.BidPrice),
		Ask:    parseFloat(t.AskPrice),
	}
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
