package signal

import (
	"context"
	"testing"

	"trademux/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeLookup struct {
	strategies map[string]*model.Strategy
}

func (f *fakeLookup) StrategyBySecret(_ context.Context, secret string) (*model.Strategy, error) {
	return f.strategies[secret], nil
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    Direction
		wantErr bool
	}{
		{name: "正数为买", raw: `{"signal": 1}`, want: Buy},
		{name: "负数为卖", raw: `{"signal": -2.5}`, want: Sell},
		{name: "零为平仓", raw: `{"signal": 0}`, want: Close},
		{name: "BUY 字符串", raw: `{"signal": "BUY"}`, want: Buy},
		{name: "小写 sell", raw: `{"signal": " sell "}`, want: Sell},
		{name: "数值字符串", raw: `{"signal": "-1"}`, want: Sell},
		{name: "零字符串", raw: `{"signal": "0"}`, want: Close},
		{name: "不可解析", raw: `{"signal": "hold"}`, wantErr: true},
		{name: "缺失", raw: `{}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(gjson.Get(tc.raw, "signal"))
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOpposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, Close, Close.Opposite())
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	lookup := &fakeLookup{strategies: map[string]*model.Strategy{
		"good-secret": {ID: 7, WebhookSecret: "good-secret", Symbol: "BTCUSDT", Active: true},
		"inactive":    {ID: 8, WebhookSecret: "inactive", Symbol: "BTCUSDT", Active: false},
		"no-symbol":   {ID: 9, WebhookSecret: "no-symbol", Active: true},
	}}
	p, err := NewParser(lookup)
	require.NoError(t, err)
	return p
}

func TestParseAuthentication(t *testing.T) {
	p := newTestParser(t)

	_, err := p.Parse(context.Background(), []byte(`{"secret":"wrong","signal":1}`))
	assert.ErrorIs(t, err, ErrAuthentication)

	_, err = p.Parse(context.Background(), []byte(`{"signal":1}`))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = p.Parse(context.Background(), []byte(`{"secret":"inactive","signal":1}`))
	assert.ErrorIs(t, err, ErrStrategyInactive)
}

func TestParseSymbolResolution(t *testing.T) {
	p := newTestParser(t)

	in, err := p.Parse(context.Background(), []byte(`{"secret":"good-secret","signal":"SELL"}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", in.Symbol)
	assert.Equal(t, Sell, in.Direction)
	assert.NotEmpty(t, in.TraceID)

	in, err = p.Parse(context.Background(), []byte(`{"secret":"good-secret","signal":1,"symbol":"ethusdt"}`))
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", in.Symbol)

	_, err = p.Parse(context.Background(), []byte(`{"secret":"no-symbol","signal":1}`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseRejectsMalformedBody(t *testing.T) {
	p := newTestParser(t)

	_, err := p.Parse(context.Background(), []byte(`{"secret":`))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = p.Parse(context.Background(), []byte(`{"secret":"good-secret","signal":[1]}`))
	assert.ErrorIs(t, err, ErrValidation)
}
