package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trademux/internal/store/model"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// payloadSchema 约束 webhook 请求体的外形；字段语义校验在 Parse 内完成。
const payloadSchema = `{
	"type": "object",
	"required": ["secret", "signal"],
	"properties": {
		"secret": {"type": "string", "minLength": 1},
		"signal": {"type": ["string", "number"]},
		"symbol": {"type": "string"}
	}
}`

// StrategyLookup 由存储层实现：按 secret 查找策略，未命中返回 (nil, nil)。
type StrategyLookup interface {
	StrategyBySecret(ctx context.Context, secret string) (*model.Strategy, error)
}

// Inbound 是认证并归一化后的入站信号。
type Inbound struct {
	TraceID   string
	Strategy  *model.Strategy
	Direction Direction
	Symbol    string
}

// Parser 负责 webhook 载荷的认证与归一化。
type Parser struct {
	strategies StrategyLookup
	schema     *jsonschema.Schema
}

// NewParser 编译载荷 schema 并构建 parser。
func NewParser(strategies StrategyLookup) (*Parser, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("signal.json", strings.NewReader(payloadSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("signal.json")
	if err != nil {
		return nil, err
	}
	return &Parser{strategies: strategies, schema: schema}, nil
}

// Parse 校验请求体、认证 secret 并归一化信号。认证/校验失败终止整个
// 请求，不进入 fanout。
func (p *Parser) Parse(ctx context.Context, body []byte) (*Inbound, error) {
	if !gjson.ValidBytes(body) {
		return nil, wrapValidation("request body is not valid JSON")
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, wrapValidation("request body decode failed: %v", err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	parsed := gjson.ParseBytes(body)
	secret := strings.TrimSpace(parsed.Get("secret").String())
	strategy, err := p.strategies.StrategyBySecret(ctx, secret)
	if err != nil {
		return nil, fmt.Errorf("strategy lookup failed: %w", err)
	}
	if strategy == nil {
		return nil, ErrAuthentication
	}
	if !strategy.Active {
		return nil, ErrStrategyInactive
	}

	direction, err := Normalize(parsed.Get("signal"))
	if err != nil {
		return nil, err
	}

	symbol := strings.ToUpper(strings.TrimSpace(parsed.Get("symbol").String()))
	if symbol == "" {
		symbol = strings.ToUpper(strings.TrimSpace(strategy.Symbol))
	}
	if symbol == "" {
		return nil, wrapValidation("symbol missing from payload and strategy %d has none configured", strategy.ID)
	}

	return &Inbound{
		TraceID:   uuid.NewString(),
		Strategy:  strategy,
		Direction: direction,
		Symbol:    symbol,
	}, nil
}
