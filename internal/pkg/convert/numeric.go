// Package convert 归一化 broker 响应里外形不稳定的数值字段。
package convert

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToFloat64 把远端返回的数值字段归一为 float64。桥接服务的 profit 等
// 字段随版本在 number/string 之间摇摆，nil 与解析失败都按 0 处理。
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}
