package notifier

import (
	"fmt"
	"strings"
	"time"

	"quorum/internal/decision"
	"quorum/internal/exchange"
	"quorum/internal/risk"
)

const maxMessageLen = 3800

// Section 表示通知中的一个段落。
type Section struct {
	Title string
	Lines []string
}

// Message 描述统一格式的推送。
type Message struct {
	Icon      string
	Title     string
	Sections  []Section
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 生成 Markdown 文本，自动裁剪长度。
func (m Message) RenderMarkdown() string {
	var b strings.Builder
	header := strings.TrimSpace(m.Icon + " " + m.Title)
	if header != "" {
		b.WriteString(header + "\n\n")
	}
	if block := renderSections(m.Sections); block != "" {
		b.WriteString(block)
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer))
		b.WriteString("\n")
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

func renderSections(secs []Section) string {
	hasContent := false
	for _, sec := range secs {
		if len(sanitizeLines(sec.Lines)) > 0 {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for idx, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(sanitize(title))
			b.WriteString("\n")
		}
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(sanitize(line))
			b.WriteString("\n")
		}
		if idx != len(secs)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("```\n\n")
	return b.String()
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

// ExecutionMessage 构造一条成交推送。
func ExecutionMessage(d decision.Decision, res exchange.ExecutionResult) Message {
	icon := "✅"
	title := fmt.Sprintf("已执行 %s %s", d.Symbol, d.Action)
	lines := []string{
		fmt.Sprintf("档位: %s  置信度: %.2f", d.Tier, d.Confidence),
		fmt.Sprintf("成交价: %.4f  数量: %.6f", res.FilledPrice, res.FilledAmount),
	}
	if d.StopLoss != nil && d.TakeProfit != nil {
		lines = append(lines, fmt.Sprintf("止损: %.4f  止盈: %.4f", *d.StopLoss, *d.TakeProfit))
	}
	if !res.Success {
		icon = "⚠️"
		title = fmt.Sprintf("执行失败 %s %s", d.Symbol, d.Action)
		lines = append(lines, "错误: "+res.Error)
	}
	if !res.OutcomeKnown {
		icon = "❓"
		title = fmt.Sprintf("执行结果未知 %s %s", d.Symbol, d.Action)
		lines = append(lines, "提交后连接中断，结果待人工核对")
	}
	return Message{
		Icon:      icon,
		Title:     title,
		Sections:  []Section{{Title: "执行", Lines: lines}},
		Timestamp: res.ExecutedAt,
	}
}

// RejectionMessage 构造一条风控拒绝推送。
func RejectionMessage(d decision.Decision, v risk.Verdict) Message {
	return Message{
		Icon:  "🛑",
		Title: fmt.Sprintf("风控拒绝 %s %s", d.Symbol, d.Action),
		Sections: []Section{{
			Title: "原因",
			Lines: append([]string{v.Detail}, v.Reasons...),
		}},
		Timestamp: v.CheckedAt,
	}
}

// HaltMessage 构造一条停机推送（kill-switch 或失败上限）。
func HaltMessage(reason string) Message {
	return Message{
		Icon:      "🚨",
		Title:     "交易代理已停止",
		Sections:  []Section{{Title: "原因", Lines: []string{reason}}},
		Timestamp: time.Now(),
	}
}
