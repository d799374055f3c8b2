package notifier

import (
	"strings"
	"time"
)

// Telegram 对单条消息有长度硬限制，渲染时超长直接截断。
const maxMessageLen = 3800

// Section 是事件消息中的一组明细行（如一笔交易的各字段）。
type Section struct {
	Title string
	Lines []string
}

// Message 是推送给管理群的交易/告警事件，渲染为 Markdown。
type Message struct {
	Icon      string
	Title     string
	Sections  []Section
	Timestamp time.Time
}

// RenderMarkdown 生成推送文本。空段落被跳过，明细行放进代码块，
// 避免符号名、订单号被 Telegram 的 Markdown 解析吃掉。
func (m Message) RenderMarkdown() string {
	var b strings.Builder
	if header := strings.TrimSpace(strings.TrimSpace(m.Icon) + " " + strings.TrimSpace(m.Title)); header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	if block := renderDetailBlock(m.Sections); block != "" {
		b.WriteString(block)
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}

func renderDetailBlock(secs []Section) string {
	rendered := make([]Section, 0, len(secs))
	for _, sec := range secs {
		lines := make([]string, 0, len(sec.Lines))
		for _, line := range sec.Lines {
			if text := strings.TrimSpace(line); text != "" {
				lines = append(lines, text)
			}
		}
		if len(lines) > 0 {
			rendered = append(rendered, Section{Title: strings.TrimSpace(sec.Title), Lines: lines})
		}
	}
	if len(rendered) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for idx, sec := range rendered {
		if sec.Title != "" {
			b.WriteString(escapeFence(sec.Title))
			b.WriteString("\n")
		}
		for _, line := range sec.Lines {
			b.WriteString("- ")
			b.WriteString(escapeFence(line))
			b.WriteString("\n")
		}
		if idx != len(rendered)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("```\n\n")
	return b.String()
}

// escapeFence 防止明细内容里的反引号提前闭合代码块。
func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
