// Package app 负责应用级编排：加载配置 → 初始化依赖 → 启动循环与 HTTP。
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"quorum/internal/agent"
	"quorum/internal/config"
	"quorum/internal/logger"
	agenthttp "quorum/internal/transport/http"
)

// App 持有全部已构建的组件。构建（NewApp）与运行（Run）分离，
// 测试可以只构建不运行。
type App struct {
	cfg     *config.Config
	agent   *agent.Agent
	http    *agenthttp.Server
	watcher *config.Watcher
	closers []func() error
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动主循环与 HTTP 服务，任一出错整体退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		return a.agent.Run(ctx)
	})

	return group.Wait()
}

// Agent 暴露底层 Agent 实例（测试/控制面用）。
func (a *App) Agent() *agent.Agent {
	if a == nil {
		return nil
	}
	return a.agent
}

// Close 按注册顺序逆序释放资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
		a.watcher = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("关闭组件失败: %v", err)
		}
	}
	a.closers = nil
}
