package agent

import (
	"fmt"

	"quorum/internal/config"
)

// SignalKind 是 operator 指令类型。
type SignalKind string

const (
	// SignalPause 暂停决策循环，已有持仓保持不动。
	SignalPause SignalKind = "pause"
	// SignalResume 恢复被暂停的循环。
	SignalResume SignalKind = "resume"
	// SignalKillSwitch 立即停机，循环进入 Stopped 且不再恢复。
	SignalKillSwitch SignalKind = "kill_switch"
	// SignalReloadConfig 携带新配置快照，在下一个周期边界生效。
	SignalReloadConfig SignalKind = "reload_config"
)

// Signal 是一条 operator 指令。Config 仅在 reload_config 时非空。
type Signal struct {
	Kind   SignalKind
	Reason string
	Config *config.Config
}

// Signal 把指令投递进操作通道。通道只有主循环一个消费者；
// 队列满时返回错误而不是阻塞调用方。
func (a *Agent) Signal(s Signal) error {
	switch s.Kind {
	case SignalPause, SignalResume, SignalKillSwitch:
	case SignalReloadConfig:
		if s.Config == nil {
			return fmt.Errorf("reload_config 信号缺少配置")
		}
	default:
		return fmt.Errorf("未知信号类型: %s", s.Kind)
	}
	select {
	case a.signals <- s:
		return nil
	default:
		return fmt.Errorf("操作通道已满，信号 %s 被丢弃", s.Kind)
	}
}

// drainSignals 在周期边界消费全部待处理指令。指令按到达顺序生效，
// kill-switch 优先级最高：一旦出现，后续指令全部忽略。
func (a *Agent) drainSignals() {
	for {
		select {
		case s := <-a.signals:
			a.applySignal(s)
			if a.halted {
				return
			}
		default:
			return
		}
	}
}
