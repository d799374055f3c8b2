package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"trademux/internal/broker/pool"
	"trademux/internal/engine"
	"trademux/internal/logger"
	"trademux/internal/signal"
	"trademux/internal/store/tradelog"

	"github.com/gin-gonic/gin"
)

// Handlers 聚合 webhook 与管理端点的依赖。
type Handlers struct {
	parser *signal.Parser
	engine *engine.Engine
	pool   *pool.Pool
	trades *tradelog.Store
}

func NewHandlers(parser *signal.Parser, eng *engine.Engine, p *pool.Pool, trades *tradelog.Store) *Handlers {
	return &Handlers{parser: parser, engine: eng, pool: p, trades: trades}
}

// Register 挂载路由。管理端点在 adminToken 非空时启用鉴权。
func (h *Handlers) Register(router *gin.Engine, adminToken string) {
	router.POST("/signal", h.handleSignal)

	admin := router.Group("/api/admin", adminAuth(adminToken))
	admin.GET("/pool/status", h.handlePoolStatus)
	admin.GET("/limiter/status", h.handleLimiterStatus)
	admin.POST("/limiter/reset", h.handleLimiterReset)
	admin.POST("/pool/accounts/:account/clear", h.handleClearInvalid)
	admin.GET("/trades", h.handleTrades)
}

// handleSignal 是 webhook 入口。认证/校验失败整体拒绝；通过后无论
// 多少账户执行失败都返回成功信封，失败细节逐条列在 results 里。
func (h *Handlers) handleSignal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "read body failed"})
		return
	}
	in, err := h.parser.Parse(c.Request.Context(), body)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, signal.ErrAuthentication):
			status = http.StatusUnauthorized
		case errors.Is(err, signal.ErrValidation), errors.Is(err, signal.ErrStrategyInactive):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	report, err := h.engine.HandleSignal(c.Request.Context(), in)
	if err != nil {
		logger.Errorf("signal: trace=%s fanout failed: %v", in.TraceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"trace_id": in.TraceID,
		"strategy": gin.H{
			"id":   in.Strategy.ID,
			"name": in.Strategy.Name,
		},
		"signal": gin.H{
			"direction": in.Direction,
			"symbol":    in.Symbol,
		},
		"execution": report,
	})
}

func (h *Handlers) handlePoolStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Status())
}

func (h *Handlers) handleLimiterStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Limiter().Status())
}

// handleLimiterReset 人工清空限流计数，仅运维兜底使用。
func (h *Handlers) handleLimiterReset(c *gin.Context) {
	h.pool.Limiter().Reset()
	logger.Warnf("admin: limiter reset by %s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleClearInvalid 清除账户的 invalid 标记（远端账户修复后）。
func (h *Handlers) handleClearInvalid(c *gin.Context) {
	account := strings.TrimSpace(c.Param("account"))
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "account is required"})
		return
	}
	h.pool.ClearInvalid(account)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) handleTrades(c *gin.Context) {
	q := tradelog.Query{
		TraceID: c.Query("trace_id"),
	}
	if v, err := strconv.ParseUint(c.Query("strategy_id"), 10, 32); err == nil {
		q.StrategyID = uint(v)
	}
	if v, err := strconv.ParseUint(c.Query("account_id"), 10, 32); err == nil {
		q.AccountID = uint(v)
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		q.Limit = v
	}
	records, err := h.trades.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}

// adminAuth 校验管理请求的 Bearer token。token 未配置时直接拒绝，
// 避免裸跑的管理面。
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "admin api disabled"})
			return
		}
		header := c.GetHeader("Authorization")
		provided := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if provided == "" {
			provided = strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		}
		if provided != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}
