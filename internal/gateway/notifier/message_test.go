package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	ts := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	msg := Message{
		Icon:  "📣",
		Title: "trade.open",
		Sections: []Section{
			{Title: "账户 7", Lines: []string{"BTC/USDT BUY 0.1", "order paper-abc"}},
			{Lines: []string{"  ", ""}}, // 全空段落被跳过
		},
		Timestamp: ts,
	}
	out := msg.RenderMarkdown()

	assert.True(t, strings.HasPrefix(out, "📣 trade.open"))
	assert.Contains(t, out, "```\n账户 7\n- BTC/USDT BUY 0.1\n- order paper-abc\n```")
	assert.Contains(t, out, "时间：2026-08-31 12:00:00 UTC")
}

func TestRenderMarkdownEmptySections(t *testing.T) {
	out := Message{Title: "ping"}.RenderMarkdown()
	assert.Equal(t, "ping", out)
	assert.NotContains(t, out, "```")
}

func TestRenderMarkdownEscapesFence(t *testing.T) {
	out := Message{
		Title:    "alert",
		Sections: []Section{{Lines: []string{"payload ``` injected"}}},
	}.RenderMarkdown()
	assert.Contains(t, out, "payload ''' injected")
}

func TestRenderMarkdownTruncates(t *testing.T) {
	long := strings.Repeat("x", maxMessageLen)
	out := Message{Title: "big", Sections: []Section{{Lines: []string{long}}}}.RenderMarkdown()
	assert.LessOrEqual(t, len(out), maxMessageLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}
