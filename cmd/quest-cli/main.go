package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuqie6/WrestleQuest/internal/bootstrap"
	"github.com/yuqie6/WrestleQuest/internal/pkg/buildinfo"
)

// skipCore 标注不需要打开数据库的子命令
const skipCore = "skip-core"

type cliApp struct {
	cfgFile string
	user    string
	asJSON  bool
	core    *bootstrap.Core
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &cliApp{}

	rootCmd := &cobra.Command{
		Use:           "quest",
		Short:         "WrestleQuest - 摔跤训练进度记录",
		Long:          `WrestleQuest 在本地记录训练活动，按技能累计点数、阶位与等级，并维护连续训练天数。`,
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipCore] == "true" {
				return nil
			}
			core, err := bootstrap.NewCore(app.cfgFile)
			if err != nil {
				return fmt.Errorf("初始化失败: %w", err)
			}
			app.core = core
			if app.user == "" {
				app.user = core.DefaultUser()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVarP(&app.user, "user", "u", "", "用户 ID（默认取 engine.default_user）")
	rootCmd.PersistentFlags().BoolVar(&app.asJSON, "json", false, "以 JSON 输出")

	rootCmd.AddCommand(statusCmd(app))
	rootCmd.AddCommand(logCmd(app))
	rootCmd.AddCommand(undoCmd(app))
	rootCmd.AddCommand(catalogCmd(app))
	rootCmd.AddCommand(profileCmd(app))
	rootCmd.AddCommand(historyCmd(app))
	rootCmd.AddCommand(watchCmd(app))
	rootCmd.AddCommand(serveCmd(app))
	rootCmd.AddCommand(initConfigCmd(app))

	// 出错时 PersistentPostRun 不会执行，这里兜底释放
	cobra.OnFinalize(app.close)
	return rootCmd
}

func (a *cliApp) close() {
	if a.core != nil {
		_ = a.core.Close()
		a.core = nil
	}
}
