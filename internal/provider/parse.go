package provider

import (
	"fmt"
	"strings"

	"quorum/internal/decision"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// voteSchema 是模型输出的契约。编译一次，全局复用。
var voteSchema = jsonschema.MustCompileString("vote.json", `{
	"type": "object",
	"required": ["action", "confidence"],
	"properties": {
		"action": {"type": "string", "minLength": 1},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"rationale": {"type": "string"},
		"stop_loss_pct": {"type": "number", "minimum": 0, "maximum": 0.5}
	}
}`)

// ParseVote 从模型原始输出中提取并校验投票 JSON。
// 兼容代码块包裹与前后废话：只认第一段平衡的大括号内容。
func ParseVote(raw string) (decision.ProviderVote, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return decision.ProviderVote{}, fmt.Errorf("输出中找不到 JSON 对象")
	}
	if !gjson.Valid(payload) {
		return decision.ProviderVote{}, fmt.Errorf("JSON 格式无效")
	}
	var doc any
	if err := jsonUnmarshal(payload, &doc); err != nil {
		return decision.ProviderVote{}, err
	}
	if err := voteSchema.Validate(doc); err != nil {
		return decision.ProviderVote{}, fmt.Errorf("投票不符合契约: %w", err)
	}

	parsed := gjson.Parse(payload)
	action, ok := decision.NormalizeAction(parsed.Get("action").String())
	if !ok {
		return decision.ProviderVote{}, fmt.Errorf("无法识别的 action: %q", parsed.Get("action").String())
	}
	return decision.ProviderVote{
		Action:      action,
		Confidence:  parsed.Get("confidence").Float(),
		Rationale:   strings.TrimSpace(parsed.Get("rationale").String()),
		StopLossPct: parsed.Get("stop_loss_pct").Float(),
	}, nil
}

// extractJSONObject 返回文本中第一段大括号平衡的 JSON 对象。
func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	// 剥掉 markdown 代码块
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx >= 0 {
			raw = raw[idx+1:]
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}
	return ""
}
