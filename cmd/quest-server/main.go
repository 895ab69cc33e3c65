package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yuqie6/WrestleQuest/internal/bootstrap"
	"github.com/yuqie6/WrestleQuest/internal/httpapi"
	"github.com/yuqie6/WrestleQuest/internal/pkg/buildinfo"
	"github.com/yuqie6/WrestleQuest/internal/pkg/config"
)

func main() {
	var cfgPath, addr string

	rootCmd := &cobra.Command{
		Use:          "quest-server",
		Short:        "WrestleQuest 本地 HTTP 服务",
		Version:      buildinfo.String(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfgPath, addr)
		},
	}
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "配置文件路径")
	rootCmd.Flags().StringVar(&addr, "addr", "", "监听地址（默认取 server.listen_addr）")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, addr string) error {
	// 首次运行时在可执行文件旁写出默认配置
	if cfgPath == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
				if err := config.WriteFile(p, config.Default()); err != nil {
					slog.Warn("写入默认配置失败", "path", p, "error", err)
				}
			}
			cfgPath = p
		}
	}

	core, err := bootstrap.NewCore(cfgPath)
	if err != nil {
		slog.Error("初始化失败", "error", err)
		return err
	}
	rt := bootstrap.NewRuntime(ctx, core)
	defer rt.Close()

	slog.Info("WrestleQuest 启动中...", "name", rt.Cfg.App.Name, "version", buildinfo.String(),
		"db", rt.DB.Path, "safe_mode", rt.DB.SafeMode, "watching", rt.Watching)

	if addr == "" {
		addr = rt.Cfg.Server.ListenAddr
	}
	srv, err := httpapi.Start(ctx, rt, httpapi.Options{ListenAddr: addr})
	if err != nil {
		slog.Error("启动 HTTP 失败", "error", err)
		return err
	}

	<-ctx.Done()
	slog.Info("收到退出信号，正在关闭", "base_url", srv.BaseURL())
	return nil
}
