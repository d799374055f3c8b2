package metasync

import (
	"context"
	"fmt"

	"trademux/internal/broker"
	"trademux/internal/broker/pool"
)

// SessionAdapter 把池化的 MetaSync 会话包装成统一执行接口。
// 每次执行按凭据构造一个，轻量无状态，会话由池持有。
type SessionAdapter struct {
	pool *pool.Pool
	cred broker.Credential
}

// NewSessionAdapter 构建绑定单个凭据的会话适配器。
func NewSessionAdapter(p *pool.Pool, cred broker.Credential) *SessionAdapter {
	return &SessionAdapter{pool: p, cred: cred}
}

func (a *SessionAdapter) Name() string {
	return "metasync"
}

// lease 从池中租用会话并断言为 MetaSync 会话。
func (a *SessionAdapter) lease(ctx context.Context) (*Session, func(), error) {
	key := a.cred.ExternalAccountID
	h, err := a.pool.Get(ctx, key, a.cred)
	if err != nil {
		return nil, nil, err
	}
	sess, ok := h.(*Session)
	if !ok {
		a.pool.Release(key)
		return nil, nil, fmt.Errorf("池中句柄类型不是 metasync 会话: %T", h)
	}
	return sess, func() { a.pool.Release(key) }, nil
}

func (a *SessionAdapter) Place(ctx context.Context, req broker.PlaceRequest) (*broker.PlaceResult, error) {
	sess, release, err := a.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return sess.Place(ctx, req)
}

func (a *SessionAdapter) Close(ctx context.Context, req broker.CloseRequest) (*broker.CloseResult, error) {
	sess, release, err := a.lease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return sess.Close(ctx, req)
}

func (a *SessionAdapter) Price(ctx context.Context, symbol string) (broker.Quote, error) {
	sess, release, err := a.lease(ctx)
	if err != nil {
		return broker.Quote{}, err
	}
	defer release()
	return sess.Price(ctx, symbol)
}
