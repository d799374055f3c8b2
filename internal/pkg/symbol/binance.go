package symbol

import "strings"

// BinanceConverter 在内部符号（BASE/QUOTE）与交易所符号（BASEQUOTE）
// 之间转换。合约与现货端点都只接受无分隔符的大写形式。
type BinanceConverter struct{}

// ToExchange 去掉分隔符并转大写。对已是交易所形式的输入是幂等的。
func (BinanceConverter) ToExchange(internal string) string {
	s := strings.ToUpper(strings.TrimSpace(internal))
	return strings.ReplaceAll(s, "/", "")
}

// FromExchange 把交易所符号解析回内部形式；解析失败返回空串。
func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

var Binance = BinanceConverter{}
