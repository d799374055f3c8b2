package pool

import (
	"sync"
	"time"

	"trademux/internal/logger"
)

// Limiter 是进程级连接限流器。远端 broker 的并发会话上限是全局的，
// 所以计数跨所有策略/账户共享。
type Limiter struct {
	mu sync.Mutex

	maxPending  int
	backoffBase time.Duration
	backoffMax  time.Duration

	pending       int
	failureStreak int
	rateLimitHits int
	backoffUntil  time.Time

	nowFn func() time.Time
}

// 连续普通失败达到该阈值后也进入退避窗口，提升下一个信号的连接成功率。
const failureStreakBackoffThreshold = 5

// NewLimiter 构建限流器。maxPending 对应远端订阅条款的硬上限。
func NewLimiter(maxPending int, backoffBase, backoffMax time.Duration) *Limiter {
	if maxPending <= 0 {
		maxPending = 1
	}
	if backoffBase <= 0 {
		backoffBase = 30 * time.Second
	}
	if backoffMax < backoffBase {
		backoffMax = backoffBase
	}
	return &Limiter{
		maxPending:  maxPending,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		nowFn:       time.Now,
	}
}

// SetMaxPending 热更新并发上限（配置 reload 时调用）。
func (l *Limiter) SetMaxPending(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.maxPending = n
	l.mu.Unlock()
}

// ShouldSkip 快速判断当前是否不值得排队（退避窗口内或已满）。
func (l *Limiter) ShouldSkip(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nowFn().Before(l.backoffUntil) {
		return true
	}
	return l.pending >= l.maxPending
}

// Acquire 申请一个连接尝试名额；拒绝时返回 false。
// 名额必须由 Release 归还（无论尝试成败）。
func (l *Limiter) Acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if now.Before(l.backoffUntil) {
		logger.Debugf("limiter: %s denied, backoff until %s", key, l.backoffUntil.Format(time.RFC3339))
		return false
	}
	if l.pending >= l.maxPending {
		logger.Debugf("limiter: %s denied, pending=%d/%d", key, l.pending, l.maxPending)
		return false
	}
	l.pending++
	return true
}

// Release 归还一个名额。
func (l *Limiter) Release() {
	l.mu.Lock()
	if l.pending > 0 {
		l.pending--
	}
	l.mu.Unlock()
}

// RecordSuccess 清空失败计数并解除退避。
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	l.failureStreak = 0
	l.rateLimitHits = 0
	l.backoffUntil = time.Time{}
	l.mu.Unlock()
}

// RecordFailure 累计普通失败；连续失败过多时进入一个基础退避窗口。
func (l *Limiter) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureStreak++
	if l.failureStreak >= failureStreakBackoffThreshold {
		until := l.nowFn().Add(l.backoffBase)
		if until.After(l.backoffUntil) {
			l.backoffUntil = until
			logger.Warnf("limiter: %d consecutive failures, backoff %s", l.failureStreak, l.backoffBase)
		}
	}
}

// RecordRateLimitError 记录远端限流，退避窗口按命中次数指数增长。
func (l *Limiter) RecordRateLimitError() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rateLimitHits++
	window := l.backoffBase
	for i := 1; i < l.rateLimitHits; i++ {
		window *= 2
		if window >= l.backoffMax {
			window = l.backoffMax
			break
		}
	}
	l.backoffUntil = l.nowFn().Add(window)
	logger.Warnf("limiter: remote rate limit hit #%d, backoff %s", l.rateLimitHits, window)
}

// Reset 清空所有计数，仅供人工运维接口调用。
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.pending = 0
	l.failureStreak = 0
	l.rateLimitHits = 0
	l.backoffUntil = time.Time{}
	l.mu.Unlock()
	logger.Infof("limiter: counters reset")
}

// LimiterStatus 是限流器的运维视图。
type LimiterStatus struct {
	MaxPending    int       `json:"max_pending"`
	Pending       int       `json:"pending"`
	FailureStreak int       `json:"failure_streak"`
	RateLimitHits int       `json:"rate_limit_hits"`
	BackoffUntil  time.Time `json:"backoff_until,omitempty"`
	InBackoff     bool      `json:"in_backoff"`
}

// Status 返回当前状态快照。
func (l *Limiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStatus{
		MaxPending:    l.maxPending,
		Pending:       l.pending,
		FailureStreak: l.failureStreak,
		RateLimitHits: l.rateLimitHits,
		BackoffUntil:  l.backoffUntil,
		InBackoff:     l.nowFn().Before(l.backoffUntil),
	}
}
