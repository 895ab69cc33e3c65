package bootstrap

import (
	"context"
	"log/slog"
	"time"
)

// PollInterval 兜底轮询间隔：fsnotify 不可用或漏报时仍能发现外部写入
const PollInterval = 30 * time.Second

// Runtime 长驻进程（server / watch）需要启动的后台任务
type Runtime struct {
	*Core
	Watching bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRuntime 基于 Core 启动跨进程监听与周期任务
func NewRuntime(ctx context.Context, core *Core) *Runtime {
	ctx, cancel := context.WithCancel(ctx)
	rt := &Runtime{Core: core, cancel: cancel, done: make(chan struct{})}

	if core.DB != nil && core.DB.SafeMode {
		// 安全模式：只提供只读诊断，不启动监听
		close(rt.done)
		return rt
	}

	if core.Cfg.Gateway.Watch {
		if err := core.Gateway.Watch(ctx, core.DB.Path, core.Cfg.Gateway.Debounce()); err != nil {
			slog.Warn("数据库变更监听启动失败，退回定时轮询", "error", err)
		} else {
			rt.Watching = true
		}
	}

	go func() {
		defer close(rt.done)
		runPeriodic(ctx, PollInterval, func() {
			if _, err := core.Gateway.Poll(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("轮询文档版本失败", "error", err)
			}
			core.Metrics.SetSessions(core.Services.Progress.OpenSessions())
		})
	}()
	return rt
}

// Close 停止后台任务并关闭 Core
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	rt.cancel()
	<-rt.done
	return rt.Core.Close()
}

// runPeriodic 定时执行函数
func runPeriodic(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
