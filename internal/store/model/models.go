package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeMode 区分模拟盘与实盘执行。
type TradeMode string

const (
	ModePaper TradeMode = "paper"
	ModeLive  TradeMode = "live"
)

// PositionStatus 表示仓位生命周期状态。
type PositionStatus string

const (
	PositionOpen   PositionStatus = "Open"
	PositionClosed PositionStatus = "Closed"
)

// CredentialKind 区分两类 broker 接入方式。
type CredentialKind string

const (
	// CredentialSession 会话型：长连接，经连接池复用。
	CredentialSession CredentialKind = "session"
	// CredentialStateless 无状态型：每次调用新建客户端。
	CredentialStateless CredentialKind = "stateless"
)

// Strategy 是信号的归属单元。核心引擎只读，管理流程在外部系统。
type Strategy struct {
	ID            uint   `gorm:"primaryKey"`
	OwnerID       uint   `gorm:"index"`
	Name          string `gorm:"size:128"`
	WebhookSecret string `gorm:"uniqueIndex;size:64"`
	Symbol        string `gorm:"size:32"`
	Active        bool
	BaseLot       float64
	RiskConfig    datatypes.JSON
	ChargeEnabled bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subscription 把账户绑定到策略。同一 (account, strategy) 可能因重复
// 订阅存在多行，解析订阅者时以 ID 最大者为准。
type Subscription struct {
	ID            uint `gorm:"primaryKey"`
	AccountID     uint `gorm:"index:idx_sub_account_strategy"`
	StrategyID    uint `gorm:"index:idx_sub_account_strategy"`
	LotMultiplier float64
	TradeMode     TradeMode `gorm:"size:8"`
	Active        bool
	Paused        bool
	CreatedAt     time.Time
}

// BrokerCredential 保存账户在某个交易 segment 下的 broker 凭据。
// 同一 webhook 调用内视为不可变。
type BrokerCredential struct {
	ID        uint           `gorm:"primaryKey"`
	AccountID uint           `gorm:"index"`
	Segment   string         `gorm:"size:16;index"`
	Kind      CredentialKind `gorm:"size:16"`

	// 会话型字段
	ExternalAccountID string `gorm:"size:64"`
	SessionSecret     string `gorm:"size:128"`

	// 无状态型字段
	APIKey     string `gorm:"size:128"`
	APISecret  string `gorm:"size:128"`
	Passphrase string `gorm:"size:128"`

	Active    bool
	IsDefault bool
	CreatedAt time.Time
}

// StrategyBrokerSelection 记录账户对某个策略显式指定的 broker 凭据，
// 选择凭据时优先于账户默认项。
type StrategyBrokerSelection struct {
	ID           uint `gorm:"primaryKey"`
	StrategyID   uint `gorm:"index:idx_sel_strategy_account"`
	AccountID    uint `gorm:"index:idx_sel_strategy_account"`
	CredentialID uint
	CreatedAt    time.Time
}

// PaperPosition 是模拟盘仓位。每个 (account, strategy, symbol) 至多一条 Open。
type PaperPosition struct {
	ID          uint   `gorm:"primaryKey"`
	AccountID   uint   `gorm:"index:idx_paper_key"`
	StrategyID  uint   `gorm:"index:idx_paper_key"`
	Symbol      string `gorm:"size:32;index:idx_paper_key"`
	Direction   string `gorm:"size:8"`
	Quantity    float64
	OpenPrice   float64
	MarkPrice   float64
	RealizedPnL float64        `gorm:"column:realized_pnl"`
	OrderID     string         `gorm:"size:64"`
	Status      PositionStatus `gorm:"size:8;index"`
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// LivePosition 是实盘仓位记录，OrderID 指向 broker 侧订单。
type LivePosition struct {
	ID           uint   `gorm:"primaryKey"`
	AccountID    uint   `gorm:"index:idx_live_key"`
	StrategyID   uint   `gorm:"index:idx_live_key"`
	Symbol       string `gorm:"size:32;index:idx_live_key"`
	Direction    string `gorm:"size:8"`
	Quantity     float64
	OpenPrice    float64
	RealizedPnL  float64 `gorm:"column:realized_pnl"`
	OrderID      string  `gorm:"size:64"`
	CredentialID uint
	Status       PositionStatus `gorm:"size:8;index"`
	Raw          datatypes.JSON
	OpenedAt     time.Time
	ClosedAt     *time.Time
}

// WalletAccount 是账户钱包余额。跟单扣费从这里划扣。
type WalletAccount struct {
	AccountID uint `gorm:"primaryKey"`
	Balance   float64
	UpdatedAt time.Time
}

// WalletEntry 是钱包流水，借记为负。
type WalletEntry struct {
	ID        uint `gorm:"primaryKey"`
	AccountID uint `gorm:"index"`
	Amount    float64
	Balance   float64
	Reason    string `gorm:"size:128"`
	CreatedAt time.Time
}
