package provider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile 描述一个 Provider 的提示词配置。
type Profile struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// Profiles 是 profiles.yaml 的根结构：provider id -> Profile。
type Profiles struct {
	Providers map[string]Profile `yaml:"providers"`
}

// LoadProfiles 读取提示词配置。文件不存在不算错误（全部用内置提示词）。
func LoadProfiles(path string) (*Profiles, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Profiles{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profiles{}, nil
		}
		return nil, fmt.Errorf("reading profiles failed (%s): %w", path, err)
	}
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profiles failed (%s): %w", path, err)
	}
	return &p, nil
}

// SystemPromptFor 返回指定 Provider 的系统提示词，未配置返回空串。
func (p *Profiles) SystemPromptFor(id string) string {
	if p == nil || p.Providers == nil {
		return ""
	}
	return strings.TrimSpace(p.Providers[id].SystemPrompt)
}
