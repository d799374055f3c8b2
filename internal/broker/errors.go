package broker

import "errors"

var (
	// ErrNotConnected 表示账户没有可用的 broker 凭据或会话。
	ErrNotConnected = errors.New("broker not connected")
	// ErrRateLimited 表示连接被全局限流拒绝，触发退避。
	ErrRateLimited = errors.New("broker connection rate limited")
	// ErrPoolExhausted 表示连接池已达容量上限且无可回收条目。
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrAccountInvalid 表示远端账户不可用（未开通等），不再重试。
	ErrAccountInvalid = errors.New("broker account invalid")
	// ErrAccountNotProvisioned 由拨号器返回：远端未开通该账户。
	// 连接池据此把账户标记为 invalid。
	ErrAccountNotProvisioned = errors.New("broker account not provisioned")
	// ErrRemoteRateLimited 由拨号器返回：远端限流（429 类）。
	ErrRemoteRateLimited = errors.New("broker remote rate limited")
	// ErrConnectTimeout 表示会话创建超时。
	ErrConnectTimeout = errors.New("broker connect timeout")
)
