package metasync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"trademux/internal/broker"
	brcfg "trademux/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(brcfg.MetaSyncConfig{APIURL: srv.URL, TimeoutSeconds: 5})
	require.NoError(t, err)
	return client
}

func TestCreateSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sessions", r.URL.Path)
		var payload createSessionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "acc-1", payload.AccountID)
		_ = json.NewEncoder(w).Encode(createSessionResponse{SessionToken: "tok-1"})
	}))

	token, err := client.CreateSession(context.Background(), "acc-1", "sec")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

// 会话建立错误按远端响应分类为哨兵错误，供连接池决定重试还是标记失效。
func TestCreateSessionErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"限流", http.StatusTooManyRequests, "slow down", broker.ErrRemoteRateLimited},
		{"404 视为未开通", http.StatusNotFound, "", broker.ErrAccountNotProvisioned},
		{"错误码 ACCOUNT_NOT_FOUND", http.StatusBadRequest, `{"code":"ACCOUNT_NOT_FOUND"}`, broker.ErrAccountNotProvisioned},
		{"错误码 NOT_PROVISIONED", http.StatusConflict, `{"code":"NOT_PROVISIONED"}`, broker.ErrAccountNotProvisioned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := client.CreateSession(context.Background(), "acc-1", "sec")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("其他错误原样返回", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		_, err := client.CreateSession(context.Background(), "acc-1", "sec")
		require.Error(t, err)
		assert.NotErrorIs(t, err, broker.ErrRemoteRateLimited)
		assert.NotErrorIs(t, err, broker.ErrAccountNotProvisioned)
	})
}

func TestCreateSessionMissingToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(createSessionResponse{})
	}))
	_, err := client.CreateSession(context.Background(), "acc-1", "sec")
	require.Error(t, err)
}

func TestPlaceOrder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sessions/tok-1/orders", r.URL.Path)
		var payload OrderPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "BTCUSDT", payload.Symbol)
		assert.Equal(t, 0.5, payload.Volume)
		_ = json.NewEncoder(w).Encode(OrderResponse{OrderID: "o-9", FillPrice: 101.5, Status: "FILLED"})
	}))

	resp, err := client.PlaceOrder(context.Background(), "tok-1", OrderPayload{Symbol: "BTCUSDT", Side: "buy", Volume: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "o-9", resp.OrderID)
	assert.Equal(t, 101.5, resp.FillPrice)
}

func TestCloseOrderProfitShapes(t *testing.T) {
	// 远端 profit 字段 number/string 两种外形都要能接住
	for _, body := range []string{
		`{"close_price":100.5,"profit":12.5}`,
		`{"close_price":100.5,"profit":"12.5"}`,
	} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/sessions/tok-1/orders/o-9/close", r.URL.Path)
			_, _ = w.Write([]byte(body))
		}))
		resp, err := client.CloseOrder(context.Background(), "tok-1", "o-9", 0.5)
		require.NoError(t, err)
		assert.Equal(t, 100.5, resp.ClosePrice)
		assert.NotNil(t, resp.Profit)
	}
}

func TestPrice(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sessions/tok-1/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"bid":99.5,"ask":100.5}`))
	}))

	quote, err := client.Price(context.Background(), "tok-1", "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 99.5, quote.Bid)
	assert.Equal(t, 100.5, quote.Ask)
}
