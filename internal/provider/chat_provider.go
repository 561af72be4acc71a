package provider

import (
	"context"
	"fmt"
	"strings"

	"quorum/internal/decision"
	"quorum/internal/logger"
)

// ChatProvider 把一个 OpenAI 兼容模型包装成投票 Provider：
// 渲染行情摘要 → 调用模型 → 校验并解析 JSON 投票。
type ChatProvider struct {
	id           string
	systemPrompt string
	client       *ChatClient
}

func NewChatProvider(id, systemPrompt string, client *ChatClient) *ChatProvider {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &ChatProvider{id: id, systemPrompt: systemPrompt, client: client}
}

func (p *ChatProvider) ID() string { return p.id }

func (p *ChatProvider) Propose(ctx context.Context, input decision.Input) (decision.ProviderVote, error) {
	user := RenderPrompt(input)
	logger.DumpProviderRequest(p.id, p.systemPrompt, user)

	raw, err := p.client.CallWithMessages(ctx, p.systemPrompt, user)
	if err != nil {
		return decision.ProviderVote{}, err
	}
	logger.DumpProviderResponse(p.id, raw)

	vote, err := ParseVote(raw)
	if err != nil {
		return decision.ProviderVote{}, fmt.Errorf("解析模型输出失败: %w", err)
	}
	return vote, nil
}

const defaultSystemPrompt = `你是一名量化交易委员会成员。根据给出的多周期K线与账户状态，
对该交易对给出唯一投票。只输出一个 JSON 对象，不要输出其他文字：
{"action": "buy|sell|hold", "confidence": 0.0~1.0, "rationale": "一句话理由", "stop_loss_pct": 可选的止损距离小数}
注意：buy/sell 表达方向观点即可，持仓语义由系统统一裁决；拿不准就投 hold。`
