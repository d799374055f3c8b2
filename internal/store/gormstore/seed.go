package gormstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"trademux/internal/logger"
	"trademux/internal/store/model"

	"gopkg.in/yaml.v3"
)

// SeedFile 描述开发环境的初始数据文件。
type SeedFile struct {
	Strategies    []SeedStrategy     `yaml:"strategies"`
	Subscriptions []SeedSubscription `yaml:"subscriptions"`
	Credentials   []SeedCredential   `yaml:"credentials"`
	Wallets       []SeedWallet       `yaml:"wallets"`
}

type SeedStrategy struct {
	OwnerID       uint    `yaml:"owner_id"`
	Name          string  `yaml:"name"`
	WebhookSecret string  `yaml:"webhook_secret"`
	Symbol        string  `yaml:"symbol"`
	Active        bool    `yaml:"active"`
	BaseLot       float64 `yaml:"base_lot"`
	ChargeEnabled bool    `yaml:"charge_enabled"`
}

type SeedSubscription struct {
	AccountID     uint    `yaml:"account_id"`
	StrategyName  string  `yaml:"strategy"`
	LotMultiplier float64 `yaml:"lot_multiplier"`
	TradeMode     string  `yaml:"trade_mode"`
	Active        bool    `yaml:"active"`
	Paused        bool    `yaml:"paused"`
}

type SeedCredential struct {
	AccountID         uint   `yaml:"account_id"`
	Segment           string `yaml:"segment"`
	Kind              string `yaml:"kind"`
	ExternalAccountID string `yaml:"external_account_id"`
	SessionSecret     string `yaml:"session_secret"`
	APIKey            string `yaml:"api_key"`
	APISecret         string `yaml:"api_secret"`
	Passphrase        string `yaml:"passphrase"`
	Active            bool   `yaml:"active"`
	IsDefault         bool   `yaml:"is_default"`
}

type SeedWallet struct {
	AccountID uint    `yaml:"account_id"`
	Balance   float64 `yaml:"balance"`
}

// ApplySeed 在策略表为空时导入种子数据，重复执行无副作用。
func (s *Store) ApplySeed(ctx context.Context, path string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Strategy{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Debugf("seed: strategies already present, skip")
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file failed: %w", err)
	}
	var file SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return fmt.Errorf("parse seed file failed: %w", err)
	}

	byName := make(map[string]uint, len(file.Strategies))
	for _, seed := range file.Strategies {
		st := model.Strategy{
			OwnerID:       seed.OwnerID,
			Name:          seed.Name,
			WebhookSecret: seed.WebhookSecret,
			Symbol:        seed.Symbol,
			Active:        seed.Active,
			BaseLot:       seed.BaseLot,
			ChargeEnabled: seed.ChargeEnabled,
		}
		if err := s.db.WithContext(ctx).Create(&st).Error; err != nil {
			return fmt.Errorf("seed strategy %q failed: %w", seed.Name, err)
		}
		byName[seed.Name] = st.ID
	}
	for _, seed := range file.Subscriptions {
		strategyID, ok := byName[seed.StrategyName]
		if !ok {
			return fmt.Errorf("seed subscription references unknown strategy %q", seed.StrategyName)
		}
		sub := model.Subscription{
			AccountID:     seed.AccountID,
			StrategyID:    strategyID,
			LotMultiplier: seed.LotMultiplier,
			TradeMode:     model.TradeMode(seed.TradeMode),
			Active:        seed.Active,
			Paused:        seed.Paused,
		}
		if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
			return fmt.Errorf("seed subscription for account %d failed: %w", seed.AccountID, err)
		}
	}
	for _, seed := range file.Credentials {
		cred := model.BrokerCredential{
			AccountID:         seed.AccountID,
			Segment:           seed.Segment,
			Kind:              model.CredentialKind(seed.Kind),
			ExternalAccountID: seed.ExternalAccountID,
			SessionSecret:     seed.SessionSecret,
			APIKey:            seed.APIKey,
			APISecret:         seed.APISecret,
			Passphrase:        seed.Passphrase,
			Active:            seed.Active,
			IsDefault:         seed.IsDefault,
		}
		if err := s.db.WithContext(ctx).Create(&cred).Error; err != nil {
			return fmt.Errorf("seed credential for account %d failed: %w", seed.AccountID, err)
		}
	}
	for _, seed := range file.Wallets {
		wallet := model.WalletAccount{
			AccountID: seed.AccountID,
			Balance:   seed.Balance,
			UpdatedAt: time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(&wallet).Error; err != nil {
			return fmt.Errorf("seed wallet for account %d failed: %w", seed.AccountID, err)
		}
	}
	logger.Infof("seed: imported %d strategies, %d subscriptions, %d credentials",
		len(file.Strategies), len(file.Subscriptions), len(file.Credentials))
	return nil
}
