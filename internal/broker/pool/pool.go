package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"trademux/internal/broker"
	"trademux/internal/logger"
)

// Handle 是池化会话的最小句柄。具体 broker 适配器对其做类型断言。
type Handle interface {
	Disconnect(ctx context.Context) error
}

// Dialer 负责真正建立一个 broker 会话。实现必须尊重 ctx 超时，并用
// broker.ErrAccountNotProvisioned / broker.ErrRemoteRateLimited 标记
// 不可重试与限流两类失败。
type Dialer interface {
	Dial(ctx context.Context, accountID string, cred broker.Credential) (Handle, error)
}

// Options 控制池行为。
type Options struct {
	MaxConnections int
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	ConnectTimeout time.Duration
}

type entry struct {
	handle   Handle
	lastUsed time.Time
	leases   int
	token    uint64
}

type attempt struct {
	token  uint64
	done   chan struct{}
	handle Handle
	err    error
}

// Pool 按外部账户 ID 缓存并复用 broker 会话。进程内唯一，注入使用。
type Pool struct {
	dialer  Dialer
	limiter *Limiter
	opts    Options

	mu       sync.Mutex
	entries  map[string]*entry
	pending  map[string]*attempt
	invalid  map[string]string
	tokenSeq uint64

	nowFn func() time.Time
}

// New 构建连接池。
func New(dialer Dialer, limiter *Limiter, opts Options) *Pool {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	return &Pool{
		dialer:  dialer,
		limiter: limiter,
		opts:    opts,
		entries: make(map[string]*entry),
		pending: make(map[string]*attempt),
		invalid: make(map[string]string),
		nowFn:   time.Now,
	}
}

// Limiter 返回池所用的限流器（运维接口共用）。
func (p *Pool) Limiter() *Limiter {
	return p.limiter
}

// Get 返回 accountID 的会话句柄。复用缓存会话；必要时经限流器拨号新建。
// 用完必须调用 Release。
func (p *Pool) Get(ctx context.Context, accountID string, cred broker.Credential) (Handle, error) {
	p.mu.Lock()
	if reason, bad := p.invalid[accountID]; bad {
		p.mu.Unlock()
		logger.Debugf("pool: account %s marked invalid (%s)", accountID, reason)
		return nil, broker.ErrAccountInvalid
	}
	if e := p.entries[accountID]; e != nil {
		e.leases++
		e.lastUsed = p.nowFn()
		h := e.handle
		p.mu.Unlock()
		return h, nil
	}
	if att := p.pending[accountID]; att != nil {
		p.mu.Unlock()
		return p.await(ctx, accountID, att)
	}
	var reclaimed []Handle
	if len(p.entries) >= p.opts.MaxConnections {
		// 容量已满：先做一次强制回收（清掉所有空闲条目）再判断。
		// 被回收的会话要在放锁后真正断开，否则远端槽位不会释放。
		reclaimed = p.sweepLocked(true)
		if len(p.entries) >= p.opts.MaxConnections {
			p.mu.Unlock()
			logger.Warnf("pool: capacity %d reached, no idle entry to reclaim", p.opts.MaxConnections)
			return nil, broker.ErrPoolExhausted
		}
	}
	if !p.limiter.Acquire(accountID) {
		p.mu.Unlock()
		disconnectAll(reclaimed)
		return nil, broker.ErrRateLimited
	}
	p.tokenSeq++
	att := &attempt{token: p.tokenSeq, done: make(chan struct{})}
	p.pending[accountID] = att
	p.mu.Unlock()
	disconnectAll(reclaimed)

	go p.dial(accountID, cred, att)
	return p.await(ctx, accountID, att)
}

// await 等待一次拨号尝试完成并（在成功时）取得租约。
func (p *Pool) await(ctx context.Context, accountID string, att *attempt) (Handle, error) {
	select {
	case <-att.done:
	case <-ctx.Done():
		// 调用方放弃等待；尝试本身继续跑完，迟到的成功会被缓存为空闲会话。
		return nil, broker.ErrConnectTimeout
	}
	if att.err != nil {
		return nil, att.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[accountID]
	if e == nil || e.token != att.token {
		// 会话在我们拿到租约前已被回收或替换。
		return nil, broker.ErrNotConnected
	}
	e.leases++
	e.lastUsed = p.nowFn()
	return e.handle, nil
}

// dial 在固定超时内建立会话，并把结果上报限流器。
// 迟到的成功只有在本次尝试仍是该账户的当前尝试时才会落入缓存，
// 否则直接断开，绝不覆盖别人的槽位。
func (p *Pool) dial(accountID string, cred broker.Credential, att *attempt) {
	dctx, cancel := context.WithTimeout(context.Background(), p.opts.ConnectTimeout)
	handle, err := p.dialer.Dial(dctx, accountID, cred)
	timedOut := errors.Is(dctx.Err(), context.DeadlineExceeded)
	cancel()

	switch {
	case err == nil:
		p.limiter.RecordSuccess()
	case errors.Is(err, broker.ErrRemoteRateLimited):
		p.limiter.RecordRateLimitError()
	default:
		p.limiter.RecordFailure()
	}
	p.limiter.Release()

	p.mu.Lock()
	current := p.pending[accountID] == att
	if current {
		delete(p.pending, accountID)
	}
	if err == nil && current && len(p.entries) < p.opts.MaxConnections {
		p.entries[accountID] = &entry{
			handle:   handle,
			lastUsed: p.nowFn(),
			token:    att.token,
		}
		handle = nil
	}
	p.mu.Unlock()

	if handle != nil && err == nil {
		// 尝试已被放弃或池已满，丢弃这条迟到的会话。
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = handle.Disconnect(dropCtx)
		dropCancel()
		logger.Debugf("pool: late session for %s discarded", accountID)
	}

	if err != nil {
		if errors.Is(err, broker.ErrAccountNotProvisioned) {
			p.MarkInvalid(accountID, "not provisioned")
		}
		if timedOut && !errors.Is(err, broker.ErrRemoteRateLimited) {
			err = broker.ErrConnectTimeout
		}
		logger.Warnf("pool: dial %s failed: %v", accountID, err)
	}

	att.err = err
	close(att.done)
}

// Release 归还租约并刷新空闲时间戳。
func (p *Pool) Release(accountID string) {
	p.mu.Lock()
	if e := p.entries[accountID]; e != nil {
		if e.leases > 0 {
			e.leases--
		}
		e.lastUsed = p.nowFn()
	}
	p.mu.Unlock()
}

// MarkInvalid 把账户标记为不可用（远端未开通等不可恢复失败）。
func (p *Pool) MarkInvalid(accountID, reason string) {
	p.mu.Lock()
	p.invalid[accountID] = reason
	p.mu.Unlock()
	logger.Warnf("pool: account %s marked invalid: %s", accountID, reason)
}

// ClearInvalid 清除无效标记（运维修复账户后调用）。
func (p *Pool) ClearInvalid(accountID string) {
	p.mu.Lock()
	delete(p.invalid, accountID)
	p.mu.Unlock()
}

// Run 启动独立的空闲回收定时器，直到 ctx 取消。
func (p *Pool) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Shutdown()
			return nil
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Sweep 回收空闲超时的会话。使用中的条目永不回收。
func (p *Pool) Sweep() {
	p.mu.Lock()
	reclaimed := p.sweepLocked(false)
	p.mu.Unlock()
	if len(reclaimed) > 0 {
		logger.Infof("pool: swept %d idle sessions", len(reclaimed))
	}
	disconnectAll(reclaimed)
}

// sweepLocked 在持锁状态下挑出可回收条目并从缓存移除。
// force 为 true 时无视空闲时长，回收所有未被租用的条目。
func (p *Pool) sweepLocked(force bool) []Handle {
	now := p.nowFn()
	var reclaimed []Handle
	for id, e := range p.entries {
		if e.leases > 0 {
			continue
		}
		if !force && now.Sub(e.lastUsed) < p.opts.IdleTimeout {
			continue
		}
		reclaimed = append(reclaimed, e.handle)
		delete(p.entries, id)
	}
	return reclaimed
}

// Shutdown 断开所有未被租用的会话（进程退出路径）。
func (p *Pool) Shutdown() {
	p.mu.Lock()
	reclaimed := p.sweepLocked(true)
	p.mu.Unlock()
	disconnectAll(reclaimed)
}

func disconnectAll(handles []Handle) {
	for _, h := range handles {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.Disconnect(ctx); err != nil {
			logger.Warnf("pool: disconnect failed: %v", err)
		}
		cancel()
	}
}

// ConnStatus 是单条池条目的运维视图。
type ConnStatus struct {
	AccountID string    `json:"account_id"`
	InUse     bool      `json:"in_use"`
	Leases    int       `json:"leases"`
	LastUsed  time.Time `json:"last_used"`
}

// Status 是连接池的运维视图。
type Status struct {
	Size        int          `json:"size"`
	Max         int          `json:"max"`
	PendingDial int          `json:"pending_dials"`
	Invalid     []string     `json:"invalid_accounts,omitempty"`
	Connections []ConnStatus `json:"connections"`
}

// Status 返回池状态快照。
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Size:        len(p.entries),
		Max:         p.opts.MaxConnections,
		PendingDial: len(p.pending),
	}
	for id := range p.invalid {
		st.Invalid = append(st.Invalid, id)
	}
	for id, e := range p.entries {
		st.Connections = append(st.Connections, ConnStatus{
			AccountID: id,
			InUse:     e.leases > 0,
			Leases:    e.leases,
			LastUsed:  e.lastUsed,
		})
	}
	return st
}
