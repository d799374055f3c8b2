package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trademux/internal/broker"
	"trademux/internal/broker/exchange"
	"trademux/internal/broker/paper"
	"trademux/internal/broker/pool"
	"trademux/internal/config"
	"trademux/internal/engine"
	"trademux/internal/engine/position"
	"trademux/internal/signal"
	"trademux/internal/store/gormstore"
	"trademux/internal/store/model"
	"trademux/internal/store/tradelog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, adminToken string) *Server {
	t.Helper()
	dir := t.TempDir()
	store, err := gormstore.New(filepath.Join(dir, "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	trades, err := tradelog.New(filepath.Join(dir, "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = trades.Close() })

	db := store.DB()
	strategy := &model.Strategy{OwnerID: 1, Name: "web", WebhookSecret: "hook-secret", Symbol: "BTCUSDT", Active: true, BaseLot: 0.1}
	require.NoError(t, db.Create(strategy).Error)
	require.NoError(t, db.Create(&model.Subscription{
		AccountID: 2, StrategyID: strategy.ID, LotMultiplier: 1, TradeMode: model.ModePaper, Active: true,
	}).Error)

	limiter := pool.NewLimiter(5, time.Second, 8*time.Second)
	sessionPool := pool.New(failDialer{}, limiter, pool.Options{MaxConnections: 2})
	simulator := paper.New(nil, map[string]float64{"BTCUSDT": 100})
	adapters := engine.NewAdapterSet(simulator, sessionPool, exchange.Options{})
	tracker := position.NewTracker(store)
	router := engine.NewRouter(store, tracker, adapters, trades)
	eng := engine.New(engine.NewResolver(store), router, engine.NewEffects(nil, nil, config.ChargeConfig{}))

	parser, err := signal.NewParser(store)
	require.NoError(t, err)
	server, err := NewServer(ServerConfig{
		Addr:       ":0",
		AdminToken: adminToken,
		Handlers:   NewHandlers(parser, eng, sessionPool, trades),
	})
	require.NoError(t, err)
	return server
}

type failDialer struct{}

func (failDialer) Dial(_ context.Context, _ string, _ broker.Credential) (pool.Handle, error) {
	return nil, broker.ErrConnectTimeout
}

func postSignal(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/signal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestSignalEndpointAuth(t *testing.T) {
	server := newTestServer(t, "")

	w := postSignal(t, server, `{"secret":"wrong","signal":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postSignal(t, server, `{"secret":"hook-secret","signal":"hold"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignalEndpointSuccessEnvelope(t *testing.T) {
	server := newTestServer(t, "")

	w := postSignal(t, server, `{"secret":"hook-secret","signal":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success   bool   `json:"success"`
		TraceID   string `json:"trace_id"`
		Execution struct {
			Total      int `json:"total"`
			Successful int `json:"successful"`
			Failed     int `json:"failed"`
		} `json:"execution"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, 2, resp.Execution.Total, "owner + 1 个订阅账户")
	assert.Equal(t, 2, resp.Execution.Successful)
	assert.Equal(t, 0, resp.Execution.Failed)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth(t *testing.T) {
	// token 未配置：管理面整体禁用
	server := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/admin/pool/status", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	server = newTestServer(t, "top-secret")

	req = httptest.NewRequest(http.MethodGet, "/api/admin/pool/status", nil)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/pool/status", nil)
	req.Header.Set("Authorization", "Bearer top-secret")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/limiter/reset", nil)
	req.Header.Set("X-Admin-Token", "top-secret")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminTrades(t *testing.T) {
	server := newTestServer(t, "top-secret")

	w := postSignal(t, server, `{"secret":"hook-secret","signal":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/trades?limit=10", nil)
	req.Header.Set("Authorization", "Bearer top-secret")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Records []tradelog.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Records, 2)
}
