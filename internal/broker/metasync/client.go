// Package metasync implements the session-based broker family: one
// long-lived authenticated session per external account, created through
// the MetaSync bridge REST API and reused via the connection pool.
package metasync

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trademux/internal/broker"
	brcfg "trademux/internal/config"
)

// Client wraps MetaSync bridge REST API interactions.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient 根据配置构造 MetaSync 客户端。
func NewClient(cfg brcfg.MetaSyncConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("brokers.metasync.api_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 brokers.metasync.api_url 失败: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		}
	}
	return &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

type createSessionPayload struct {
	AccountID string `json:"account_id"`
	Secret    string `json:"secret"`
}

type createSessionResponse struct {
	SessionToken string `json:"session_token"`
}

// CreateSession 为外部账户建立一个会话，返回会话令牌。
// 远端未开通账户与限流分别映射为 broker 包的哨兵错误，供连接池分类。
func (c *Client) CreateSession(ctx context.Context, accountID, secret string) (string, error) {
	var resp createSessionResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/sessions", createSessionPayload{
		AccountID: accountID,
		Secret:    secret,
	}, &resp)
	if err != nil {
		return "", classifySessionError(err)
	}
	if strings.TrimSpace(resp.SessionToken) == "" {
		return "", fmt.Errorf("metasync 未返回 session_token")
	}
	return resp.SessionToken, nil
}

// DestroySession 关闭会话。
func (c *Client) DestroySession(ctx context.Context, token string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(token), nil, nil)
}

// OrderPayload mirrors the bridge /orders schema.
type OrderPayload struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// OrderResponse contains the bridge order result.
type OrderResponse struct {
	OrderID   string  `json:"order_id"`
	FillPrice float64 `json:"fill_price"`
	Status    string  `json:"status"`
}

// PlaceOrder 在会话上市价开仓。
func (c *Client) PlaceOrder(ctx context.Context, token string, payload OrderPayload) (*OrderResponse, error) {
	var resp OrderResponse
	path := "/api/sessions/" + url.PathEscape(token) + "/orders"
	if err := c.doRequest(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.OrderID) == "" {
		return nil, fmt.Errorf("metasync 未返回 order_id")
	}
	return &resp, nil
}

// CloseOrderResponse contains the bridge close result. profit 字段的类型
// 随远端版本在 number/string 间摇摆，保持 any 由调用方归一化。
type CloseOrderResponse struct {
	ClosePrice float64 `json:"close_price"`
	Profit     any     `json:"profit"`
}

// CloseOrder 平掉会话上的指定订单。
func (c *Client) CloseOrder(ctx context.Context, token, orderID string, volume float64) (*CloseOrderResponse, error) {
	var resp CloseOrderResponse
	path := "/api/sessions/" + url.PathEscape(token) + "/orders/" + url.PathEscape(orderID) + "/close"
	payload := map[string]any{"volume": volume}
	if err := c.doRequest(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type priceResponse struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Price 查询会话上某个品种的双边报价。
func (c *Client) Price(ctx context.Context, token, symbol string) (broker.Quote, error) {
	var resp priceResponse
	path := "/api/sessions/" + url.PathEscape(token) + "/price?symbol=" + url.QueryEscape(symbol)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return broker.Quote{}, err
	}
	return broker.Quote{Symbol: symbol, Bid: resp.Bid, Ask: resp.Ask}, nil
}

// statusError 保留远端 HTTP 状态码用于错误分类。
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("metasync 返回错误: HTTP %d", e.code)
	}
	return fmt.Sprintf("metasync 返回错误(HTTP %d): %s", e.code, e.body)
}

func classifySessionError(err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", broker.ErrRemoteRateLimited, se.body)
	case se.code == http.StatusNotFound,
		strings.Contains(se.body, "ACCOUNT_NOT_FOUND"),
		strings.Contains(se.body, "NOT_PROVISIONED"):
		return fmt.Errorf("%w: %s", broker.ErrAccountNotProvisioned, se.body)
	default:
		return err
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any, out any) error {
	if c == nil {
		return fmt.Errorf("metasync client 未初始化")
	}
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("调用 metasync 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("解析 metasync 响应失败: %w", err)
	}
	return nil
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("metasync API 地址未设置")
	}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = "/"
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("非法请求路径 %q: %w", path, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}
