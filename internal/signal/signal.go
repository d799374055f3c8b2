package signal

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Direction 是归一化后的信号方向。
type Direction string

const (
	Buy   Direction = "BUY"
	Sell  Direction = "SELL"
	Close Direction = "CLOSE"
)

// Opposite 返回相反方向；CLOSE 没有相反方向，原样返回。
func (d Direction) Opposite() Direction {
	switch d {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return d
	}
}

// Normalize 把原始 signal 字段归一化为方向：
// 数值 >0 → BUY，<0 → SELL，==0 → CLOSE；
// 字符串 "BUY"/"SELL" 直接接受，其余字符串按数值规则解析。
func Normalize(raw gjson.Result) (Direction, error) {
	switch raw.Type {
	case gjson.Number:
		return fromNumber(raw.Num), nil
	case gjson.String:
		s := strings.ToUpper(strings.TrimSpace(raw.Str))
		switch s {
		case string(Buy):
			return Buy, nil
		case string(Sell):
			return Sell, nil
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(raw.Str), 64)
		if err != nil {
			return "", wrapValidation("signal %q is neither BUY/SELL nor numeric", raw.Str)
		}
		return fromNumber(n), nil
	default:
		return "", wrapValidation("signal field is missing or has unsupported type")
	}
}

func fromNumber(n float64) Direction {
	switch {
	case n > 0:
		return Buy
	case n < 0:
		return Sell
	default:
		return Close
	}
}
