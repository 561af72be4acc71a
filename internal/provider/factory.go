package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"quorum/internal/decision"
	"quorum/internal/logger"
)

// Spec 是构造单个 Provider 所需的最小描述（由 app 层从配置映射而来）。
type Spec struct {
	ID       string
	Kind     string
	Enabled  bool
	APIURL   string
	APIKey   string
	Model    string
	Headers  map[string]string
	Interval string
	Timeout  time.Duration
}

// BuildFromSpecs 按配置构造全部启用的 Provider。未启用条目跳过。
func BuildFromSpecs(specs []Spec, profiles *Profiles) ([]decision.ProviderAdapter, error) {
	out := make([]decision.ProviderAdapter, 0, len(specs))
	for _, s := range specs {
		if !s.Enabled {
			continue
		}
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("provider 条目缺少 id")
		}
		switch strings.ToLower(strings.TrimSpace(s.Kind)) {
		case "openai_chat":
			timeout := s.Timeout
			if timeout <= 0 {
				timeout = 60 * time.Second
			}
			client := &ChatClient{
				BaseURL:      s.APIURL,
				APIKey:       s.APIKey,
				Model:        s.Model,
				ExtraHeaders: s.Headers,
				HTTPClient:   &http.Client{Timeout: timeout},
			}
			out = append(out, NewChatProvider(id, profiles.SystemPromptFor(id), client))
		case "rule_trend":
			out = append(out, NewTrendProvider(id, s.Interval))
		case "rule_meanrev":
			out = append(out, NewMeanRevProvider(id, s.Interval))
		default:
			return nil, fmt.Errorf("provider %s: 未知类型 %q", id, s.Kind)
		}
		logger.Infof("provider 就绪: %s (%s)", id, s.Kind)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("没有任何启用的 provider")
	}
	return out, nil
}
