package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"trademux/internal/logger"
)

// EventSink 是执行引擎的实时事件出口。实现必须是 fire-and-forget：
// 推送失败只记日志，绝不影响已落库的交易结果。
type EventSink interface {
	EmitAccountEvent(accountID uint, eventType string, payload any)
	EmitAdminEvent(eventType string, payload any)
}

// TextNotifier 是管理事件的文本推送出口，保持最小以便替换实现。
type TextNotifier interface {
	SendText(text string) error
}

// Events 默认实现：账户事件写结构化日志（实时推送通道在外部系统），
// 管理事件可选推送 Telegram。
type Events struct {
	admin TextNotifier
}

// NewEvents 构建事件出口。admin 为 nil 时管理事件只记日志。
func NewEvents(admin TextNotifier) *Events {
	return &Events{admin: admin}
}

func (e *Events) EmitAccountEvent(accountID uint, eventType string, payload any) {
	logger.Infof("event: account=%d type=%s payload=%s", accountID, eventType, compactJSON(payload))
}

func (e *Events) EmitAdminEvent(eventType string, payload any) {
	logger.Infof("event: admin type=%s payload=%s", eventType, compactJSON(payload))
	if e.admin == nil {
		return
	}
	msg := Message{
		Icon:  "📣",
		Title: eventType,
		Sections: []Section{
			{Lines: payloadLines(payload)},
		},
		Timestamp: time.Now(),
	}
	go func() {
		if err := e.admin.SendText(msg.RenderMarkdown()); err != nil {
			logger.Warnf("event: admin notify failed: %v", err)
		}
	}()
}

func payloadLines(payload any) []string {
	m, ok := payload.(map[string]any)
	if !ok {
		return []string{compactJSON(payload)}
	}
	lines := make([]string, 0, len(m))
	for k, v := range m {
		lines = append(lines, fmt.Sprintf("%s: %v", k, v))
	}
	return lines
}

func compactJSON(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
