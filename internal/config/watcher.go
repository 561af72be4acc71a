package config

import (
	"strings"
	"time"

	"quorum/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听主配置文件变化。它不直接改写运行中的配置，
// 只通过回调把"配置已变化"这一事实上报（由主循环的 operator
// 通道消费后在周期边界整体替换快照）。
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	debounce time.Duration
	stopCh   chan struct{}
}

func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		path:     path,
		watcher:  fsw,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 编辑器保存往往触发多个事件，合并为一次重载
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// 配置非法时保留旧配置继续运行
		logger.Errorf("配置重载失败（保留旧配置）: %v", err)
		return
	}
	logger.Infof("配置文件已变化，重载成功: %s", shortPath(w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func shortPath(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 && idx+1 < len(p) {
		return p[idx+1:]
	}
	return p
}
