package engine

import (
	"fmt"

	"trademux/internal/broker"
	"trademux/internal/broker/exchange"
	"trademux/internal/broker/metasync"
	"trademux/internal/broker/pool"
	"trademux/internal/store/model"
)

// AdapterSet 按凭据类型装配执行后端。会话型走连接池，
// 无状态型每次调用独立建客户端，模拟盘共用一个撮合器。
type AdapterSet struct {
	paper        broker.Adapter
	pool         *pool.Pool
	exchangeOpts exchange.Options
}

func NewAdapterSet(paper broker.Adapter, sessionPool *pool.Pool, exchangeOpts exchange.Options) *AdapterSet {
	return &AdapterSet{
		paper:        paper,
		pool:         sessionPool,
		exchangeOpts: exchangeOpts,
	}
}

// Paper 返回模拟盘后端。
func (s *AdapterSet) Paper() broker.Adapter {
	return s.paper
}

// ForCredential 按凭据类型返回实盘后端。
func (s *AdapterSet) ForCredential(cred *model.BrokerCredential) (broker.Adapter, error) {
	bc := broker.Credential{
		ID:                cred.ID,
		AccountID:         cred.AccountID,
		Segment:           cred.Segment,
		ExternalAccountID: cred.ExternalAccountID,
		SessionSecret:     cred.SessionSecret,
		APIKey:            cred.APIKey,
		APISecret:         cred.APISecret,
		Passphrase:        cred.Passphrase,
	}
	switch cred.Kind {
	case model.CredentialSession:
		return metasync.NewSessionAdapter(s.pool, bc), nil
	case model.CredentialStateless:
		return exchange.New(bc, s.pool.Limiter(), s.exchangeOpts), nil
	default:
		return nil, fmt.Errorf("未知凭据类型 %q", cred.Kind)
	}
}
