package metasync

import (
	"context"

	"trademux/internal/broker"
	"trademux/internal/broker/pool"
	"trademux/internal/logger"
)

// Dialer 把 Client.CreateSession 适配成连接池的拨号接口。
type Dialer struct {
	client *Client
}

// NewDialer 构建拨号器。
func NewDialer(client *Client) *Dialer {
	return &Dialer{client: client}
}

// Dial 为外部账户建立会话。错误分类已在 Client 内完成：
// 未开通账户与远端限流分别以哨兵错误返回，池据此处置。
func (d *Dialer) Dial(ctx context.Context, accountID string, cred broker.Credential) (pool.Handle, error) {
	token, err := d.client.CreateSession(ctx, cred.ExternalAccountID, cred.SessionSecret)
	if err != nil {
		return nil, err
	}
	logger.Infof("metasync: session established for account %s", accountID)
	return &Session{
		client:    d.client,
		accountID: accountID,
		token:     token,
	}, nil
}
