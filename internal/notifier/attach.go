package notifier

import (
	"context"
	"os"
	"time"

	"quorum/internal/logger"
)

// ReportSource 提供一份可渲染的 HTML 报表（audit.Reporter 满足该接口）。
type ReportSource interface {
	Build(ctx context.Context) error
	Path() string
}

// SnapshotNotifier 装饰一个文本通知器：每次推送之后异步补发一张
// 报表 PNG 快照。快照失败只记日志，文本推送本身不受影响。
type SnapshotNotifier struct {
	Text   TextNotifier
	Photo  PhotoNotifier
	Report ReportSource
}

func (s *SnapshotNotifier) SendText(text string) error {
	err := s.Text.SendText(text)
	go s.attachReport()
	return err
}

func (s *SnapshotNotifier) attachReport() {
	if s.Photo == nil || s.Report == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := s.Report.Build(ctx); err != nil {
		logger.Warnf("生成报表失败，跳过快照: %v", err)
		return
	}
	html, err := os.ReadFile(s.Report.Path())
	if err != nil {
		logger.Warnf("读取报表文件失败: %v", err)
		return
	}
	png, err := SnapshotHTML(ctx, html)
	if err != nil {
		logger.Warnf("渲染报表快照失败: %v", err)
		return
	}
	if err := s.Photo.SendPhoto("最近 7 天净值与决策分布", png); err != nil {
		logger.Warnf("推送报表快照失败: %v", err)
	}
}
