package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yuqie6/WrestleQuest/internal/bootstrap"
	"github.com/yuqie6/WrestleQuest/internal/catalog"
	"github.com/yuqie6/WrestleQuest/internal/dialog"
	"github.com/yuqie6/WrestleQuest/internal/dto"
	"github.com/yuqie6/WrestleQuest/internal/httpapi"
	"github.com/yuqie6/WrestleQuest/internal/pkg/config"
	"github.com/yuqie6/WrestleQuest/internal/progression"
	"github.com/yuqie6/WrestleQuest/internal/service"
)

// resolveSkill 技能参数：索引 0-6、名称或 slug
func resolveSkill(arg string) (int, catalog.SkillInfo, error) {
	idx, ok := catalog.ResolveSkill(arg)
	if !ok {
		return -1, catalog.SkillInfo{}, fmt.Errorf("%w: %s", progression.ErrInvalidSkill, arg)
	}
	info, _ := catalog.SkillAt(idx)
	return idx, info, nil
}

// statusCmd 查看当前进度
func statusCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看当前进度",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.core.Services.Progress.Get(cmd.Context(), app.user)
			if err != nil && !service.IsPersistError(err) {
				return err
			}
			p := dto.NewProgressDTO(st)
			if app.asJSON {
				return printJSON(cmd.OutOrStdout(), p)
			}
			printProgress(cmd.OutOrStdout(), p)
			return err
		},
	}
}

// logCmd 记录一次活动；省略活动名时进入交互式选择
func logCmd(app *cliApp) *cobra.Command {
	var duration int
	var customName string

	cmd := &cobra.Command{
		Use:   "log <skill> [activity]",
		Short: "记录训练活动",
		Long:  "记录训练活动。技能可用索引（0-6）、名称或 slug；省略活动名时列出目录供选择。",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, info, err := resolveSkill(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var sub dialog.Submission
			var ok bool
			if len(args) == 1 {
				sub, ok, err = dialog.Prompt(cmd.InOrStdin(), out, info.Name)
			} else {
				sub, ok, err = dialog.Submit(info.Name, dialog.Selection{
					Choice:     args[1],
					Duration:   duration,
					CustomName: customName,
				})
				if errors.Is(err, dialog.ErrUnknownActivity) {
					// 目录外的活动照常记录，按 1 点计
					sub, ok, err = dialog.Submission{Activity: args[1], Duration: duration}, true, nil
				}
			}
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "已取消")
				return nil
			}

			res, err := app.core.Services.Progress.Apply(cmd.Context(), app.user, progression.ApplyInput{
				SkillIndex: idx,
				Activity:   sub.Activity,
				Duration:   sub.Duration,
				Custom:     sub.Custom,
			})
			if res == nil {
				return err
			}
			d := dto.NewApplyResultDTO(res)
			if app.asJSON {
				if jerr := printJSON(out, d); jerr != nil {
					return jerr
				}
				return err
			}
			printApply(out, info.Name, d)
			return err
		},
	}

	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "时长（分钟）")
	cmd.Flags().StringVar(&customName, "name", "", "自定义活动名称（配合 Custom 使用）")
	return cmd
}

// undoCmd 撤销一点
func undoCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <skill>",
		Short: "撤销技能的一点",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, info, err := resolveSkill(args[0])
			if err != nil {
				return err
			}
			res, err := app.core.Services.Progress.Undo(cmd.Context(), app.user, idx)
			if res == nil {
				return err
			}
			out := cmd.OutOrStdout()
			d := dto.NewUndoResultDTO(res)
			if app.asJSON {
				if jerr := printJSON(out, d); jerr != nil {
					return jerr
				}
				return err
			}
			if !d.Applied {
				fmt.Fprintf(out, "⚠️  %s 没有可撤销的点数\n", info.Name)
				return err
			}
			printUndo(out, info.Name, d)
			return err
		},
	}
}

// catalogCmd 列出活动目录
func catalogCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:         "catalog [skill]",
		Short:       "查看活动目录",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipCore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				c := dto.NewCatalogDTO()
				if app.asJSON {
					return printJSON(out, c)
				}
				for _, s := range c.Skills {
					printCatalogSkill(out, s)
				}
				return nil
			}
			idx, info, err := resolveSkill(args[0])
			if err != nil {
				return err
			}
			s := dto.NewCatalogSkillDTO(idx, info)
			if app.asJSON {
				return printJSON(out, s)
			}
			printCatalogSkill(out, s)
			return nil
		},
	}
}

// profileCmd 修改名称/目标
func profileCmd(app *cliApp) *cobra.Command {
	var name, quest string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "设置名称与训练目标",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in progression.ProfileInput
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("quest") {
				in.Quest = &quest
			}
			if in.Name == nil && in.Quest == nil {
				return fmt.Errorf("至少指定 --name 或 --quest 之一")
			}
			st, err := app.core.Services.Progress.UpdateProfile(cmd.Context(), app.user, in)
			if errors.Is(err, service.ErrInvalidProfile) {
				return err
			}
			p := dto.NewProgressDTO(st)
			if app.asJSON {
				if jerr := printJSON(cmd.OutOrStdout(), p); jerr != nil {
					return jerr
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ 已更新: %s / %s\n", p.Name, p.Quest)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "名称")
	cmd.Flags().StringVar(&quest, "quest", "", "训练目标")
	return cmd
}

// historyCmd 查看活动流水
func historyCmd(app *cliApp) *cobra.Command {
	var limit int
	var date string
	var totals bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看活动流水",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := app.core.Services.Progress
			if totals {
				sums, err := app.core.Repos.ActivityLog.TotalsBySkill(cmd.Context(), app.user)
				if err != nil {
					return err
				}
				d := dto.NewSkillTotalsDTO(sums)
				if app.asJSON {
					return printJSON(cmd.OutOrStdout(), d)
				}
				printTotals(cmd.OutOrStdout(), d)
				return nil
			}
			var rows []dto.HistoryEntryDTO
			if date != "" {
				logs, err := svc.HistoryOn(cmd.Context(), app.user, date)
				if err != nil {
					return err
				}
				rows = dto.NewHistoryDTO(logs)
			} else {
				logs, err := svc.History(cmd.Context(), app.user, limit)
				if err != nil {
					return err
				}
				rows = dto.NewHistoryDTO(logs)
			}
			if app.asJSON {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			printHistory(cmd.OutOrStdout(), rows, svc.Engine().Location)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "最多显示条数")
	cmd.Flags().StringVar(&date, "date", "", "指定日期 (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&totals, "totals", false, "按技能汇总")
	return cmd
}

// watchCmd 持续输出进度变化，包括其他进程的写入
func watchCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "持续显示进度变化",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt := bootstrap.NewRuntime(ctx, app.core)
			app.core = nil
			defer rt.Close()

			ch, err := rt.Services.Progress.Watch(ctx, app.user)
			if err != nil && !service.IsPersistError(err) {
				return err
			}
			out := cmd.OutOrStdout()
			for st := range ch {
				p := dto.NewProgressDTO(st)
				if app.asJSON {
					if err := printJSONLine(out, p); err != nil {
						return err
					}
					continue
				}
				printProgressLine(out, p)
			}
			return nil
		},
	}
}

// serveCmd 启动本地 HTTP API
func serveCmd(app *cliApp) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动本地 HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, app, addr, cmd)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "监听地址（默认取 server.listen_addr）")
	return cmd
}

func serve(ctx context.Context, app *cliApp, addr string, cmd *cobra.Command) error {
	rt := bootstrap.NewRuntime(ctx, app.core)
	app.core = nil
	defer rt.Close()

	if addr == "" {
		addr = rt.Cfg.Server.ListenAddr
	}
	srv, err := httpapi.Start(ctx, rt, httpapi.Options{ListenAddr: addr})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🚀 已启动: %s\n", srv.BaseURL())
	<-ctx.Done()
	return nil
}

// initConfigCmd 写出默认配置文件
func initConfigCmd(app *cliApp) *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:         "init-config",
		Short:       "生成默认配置文件",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipCore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" {
				target = app.cfgFile
			}
			if target == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				target = p
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("配置文件已存在: %s（使用 --force 覆盖）", target)
			}
			if err := config.WriteFile(target, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ 已写入配置: %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "输出路径（默认为可执行文件旁的 config/config.yaml）")
	cmd.Flags().BoolVar(&force, "force", false, "覆盖已有文件")
	return cmd
}
