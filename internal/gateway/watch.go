package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch 监听数据库文件（含 -wal/-shm）变化，防抖后调用 Poll。ctx 结束时停止。
func (g *Gateway) Watch(ctx context.Context, dbPath string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("获取绝对路径失败: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监控器失败: %w", err)
	}
	// 监听目录而非文件：WAL 模式下实际写入落在 -wal 文件
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	slog.Info("进度变更监听启动", "path", abs, "debounce", debounce)
	go g.watchLoop(ctx, w, filepath.Base(abs), debounce)
	return nil
}

func (g *Gateway) watchLoop(ctx context.Context, w *fsnotify.Watcher, base string, debounce time.Duration) {
	defer w.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			n, err := g.Poll(ctx)
			if err != nil {
				slog.Warn("检查外部进度变更失败", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("发现外部进度变更", "users", n)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Error("文件监控错误", "error", err)
		}
	}
}
